package domain

import "time"

type ChangeAction string

const (
	ChangeActionCreated ChangeAction = "created"
	ChangeActionUpdated ChangeAction = "updated"
	ChangeActionDeleted ChangeAction = "deleted"
	ChangeActionSynced  ChangeAction = "synced"
)

// ChangeEvent is broadcast on the feed whenever a record or a single
// translation slot changes. Field and Language are empty for whole-record
// actions (create, delete) and for schema syncs.
type ChangeEvent struct {
	Table    string       `json:"table"`
	PK       int64        `json:"pk,omitempty"`
	Field    string       `json:"field,omitempty"`
	Language string       `json:"language,omitempty"`
	Action   ChangeAction `json:"action"`
	At       time.Time    `json:"at"`
}
