package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// ReadAll fetches the whole object at key. Missing keys report ok=false
// without an error.
func ReadAll(ctx context.Context, store Store, key string) ([]byte, bool, error) {
	_, rc, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Replace writes data at key, overwriting any existing object.
func Replace(ctx context.Context, store Store, key string, data []byte, contentType string) (Info, error) {
	return store.Put(ctx, key, bytes.NewReader(data), PutOptions{ContentType: contentType, Overwrite: true})
}
