package models

import "time"

// StateRecord is the generic envelope persisted by components that keep a
// small amount of durable state on disk via atomic tmp+rename writes
// (pairing clients, cron dedup markers, session snapshots).
type StateRecord struct {
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      map[string]any  `json:"data"`
}
