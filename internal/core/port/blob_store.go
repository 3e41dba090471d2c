package port

import "context"

// BlobStore is the durable local store boundary: named JSON-serializable blobs
// in a key-value shape. A missing key is reported as repository.ErrNotFound,
// never as a generic failure; callers treat absence as "empty", not as an error.
type BlobStore interface {
	// Get returns the raw payload stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites the payload stored under key.
	Set(ctx context.Context, key string, payload []byte) error
	// Delete removes the blob. Deleting a missing key returns repository.ErrNotFound.
	Delete(ctx context.Context, key string) error
	// Update applies mutate to the current payload (nil when absent) and writes
	// the result back as one atomic read-modify-write with no intervening
	// suspension point. Returning a nil payload from mutate deletes the blob.
	Update(ctx context.Context, key string, mutate func(current []byte) ([]byte, error)) error
}
