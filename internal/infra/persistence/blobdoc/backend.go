// Package blobdoc stores the serialized dataset as a single object in a blob
// store (local directory or S3 bucket).
package blobdoc

import (
	"context"
	"strings"

	"clinicore/internal/blob"
)

// Backend persists the dataset document at a fixed object key.
type Backend struct {
	store blob.Store
	key   string
}

// New returns a backend writing to store. The dataset key is turned into an
// object path ("clinicore:dataset" becomes "clinicore/dataset.json").
func New(store blob.Store, key string) *Backend {
	return &Backend{store: store, key: ObjectKey(key)}
}

// ObjectKey maps a dataset key onto a blob object key.
func ObjectKey(key string) string {
	return strings.ReplaceAll(key, ":", "/") + ".json"
}

// Key returns the object key in use.
func (b *Backend) Key() string { return b.key }

// Load returns the stored document, or ok=false when the object is missing.
func (b *Backend) Load(ctx context.Context) ([]byte, bool, error) {
	return blob.ReadAll(ctx, b.store, b.key)
}

// Save replaces the stored document.
func (b *Backend) Save(ctx context.Context, payload []byte) error {
	_, err := blob.Replace(ctx, b.store, b.key, payload, "application/json")
	return err
}

// Close is a no-op; blob stores hold no exclusive resources.
func (b *Backend) Close() error { return nil }
