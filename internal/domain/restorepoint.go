package domain

import "time"

// RestorePointRef is an opaque handle to an OS-level checkpoint. The
// checkpoint itself is owned by the operating system; the engine holds only
// the reference and its creation time.
type RestorePointRef struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
