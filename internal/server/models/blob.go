package models

import "time"

// Blob is the metadata record for one encrypted payload in the content store.
// The ciphertext bytes live at Path in object storage; several messages may
// share one blob, as in a broadcast or a group chat. A blob referenced by no
// message is an orphan and gets reclaimed by the orphan collector.
type Blob struct {
	ID int64
	// Path locates the ciphertext in the content store. Unique.
	Path string
	// Size of the referenced content in bytes, used for accounting and
	// retention decisions.
	Size int64

	CreatedAt time.Time
}
