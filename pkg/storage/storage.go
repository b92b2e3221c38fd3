package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage holds deliverable asset payloads. Task results carry asset refs
// ("local://..." or "s3://...") that resolve against one of these backends.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Ref returns the asset reference recorded in task results for a
	// stored path.
	Ref(path string) string
}

// AssetPath builds the storage path for one deliverable of one task.
func AssetPath(taskID, deliverable string) string {
	return fmt.Sprintf("tasks/%s/deliverables/%s", taskID, deliverable)
}
