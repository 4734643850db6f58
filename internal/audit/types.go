package audit

import "time"

// Actions.
const (
	ActionPaired     = "paired"
	ActionPairFailed = "pair_failed"
	ActionRemoved    = "removed"
)

// Sources.
const (
	SourceAPI      = "api"
	SourcePairing  = "pairing"
	SourceProvider = "provider"
)

// EntityDevice is the only entity type recorded so far.
const EntityDevice = "device"

// Entry is one audit record.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Action   string
	EntityID string
	Limit    int // default 50, max 200
	Offset   int
}

// Page is one page of List results.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}
