package blob

import (
	"context"
	"fmt"

	"clinicore/internal/infra/blob/fs"
	memorystore "clinicore/internal/infra/blob/memory"
	infraS3 "clinicore/internal/infra/blob/s3"
)

// S3Config configures the S3 driver.
type S3Config = infraS3.Config

// Config selects and configures a blob driver. It mirrors the [blob] section
// of the application configuration.
type Config struct {
	Driver string
	FSRoot string
	S3     S3Config
}

// Open constructs the configured driver. An empty driver selects the
// filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns a volatile Store.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests returns an S3 driver talking to an in-process fake.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
