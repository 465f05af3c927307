package model

// Snapshot is a read-only view of a session's state for rendering.
type Snapshot struct {
	Items []CartLine   `json:"items"`
	Count int          `json:"count"`
	Total int64        `json:"total"`
	User  *UserSession `json:"user,omitempty"`
}
