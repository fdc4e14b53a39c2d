package changes

import (
	"testing"

	"clinicore/testutil"
)

func TestChangesDoesNotImportSync(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.PackagesForbidden("internal/cloudsync", "internal/core"),
		"the change log is consumed by sync, never the reverse")
}
