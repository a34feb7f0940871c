// Package contentstore defines the content-byte storage collaborator
// boundary. The core owns blob metadata only; the ciphertext bytes live
// behind this interface and are removed by path after the metadata row is
// already gone.
package contentstore

import "context"

// Store is the byte-storage abstraction used by the orphan collector.
type Store interface {
	// Delete removes the content at path. It must be idempotent: deleting
	// content that is already absent is success, because the metadata row
	// deletion is the authoritative event and content deletion may lag or
	// be retried.
	Delete(ctx context.Context, path string) error
}
