package model

import "time"

// HubStats is a point-in-time snapshot of the document hub.
type HubStats struct {
	OpenDocuments    int           `json:"open_documents"`
	TotalConnections int           `json:"total_connections"`
	Uptime           time.Duration `json:"uptime"`
}

// FeedStats aggregates the edit feed counters.
type FeedStats struct {
	TotalEdits  uint64            `json:"total_edits"`
	TotalUndos  uint64            `json:"total_undos"`
	PerDocument map[string]uint64 `json:"per_document,omitempty"`
}
