// Package blob is the entry point for object storage. It re-exports the core
// abstractions and constructs drivers from configuration; other packages
// depend on blob.Store and never import the infra drivers directly.
package blob

import (
	"clinicore/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrUnsupported indicates an operation isn't supported by a driver.
	ErrUnsupported = core.ErrUnsupported
	// ErrNotFound is wrapped by Get and Head for missing keys.
	ErrNotFound = core.ErrNotFound
	// ErrExists is wrapped by a create-only Put on a taken key.
	ErrExists = core.ErrExists
)
