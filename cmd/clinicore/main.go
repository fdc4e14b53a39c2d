// Command clinicore runs the clinic data layer: the operations HTTP
// endpoint with the background cloud sync, one-off sync cycles, backlog
// status and audit log exports.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
