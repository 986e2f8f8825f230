package blob

import (
	"context"
	"errors"
)

// ErrNotFound reports a missing blob on fetch. Delete treats a missing blob
// as success.
var ErrNotFound = errors.New("blob not found")

// Store hosts reference images behind opaque refs. Implementations carry
// their own bounded timeouts; a stalled media host must not pin a worker.
type Store interface {
	Upload(ctx context.Context, localPath, folder string) (ref string, err error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
