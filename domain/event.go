package domain

import "time"

// ChangeKind is the kind of row change delivered by the realtime feed.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// ChangeEvent describes one row change on the task table. Before is set for
// updates and deletes when the feed carries the old row; After is set for
// inserts and updates.
type ChangeEvent struct {
	Kind     ChangeKind `json:"type"`
	Table    string     `json:"table,omitempty"`
	Before   *Task      `json:"old_record,omitempty"`
	After    *Task      `json:"record,omitempty"`
	CommitAt time.Time  `json:"commit_timestamp"`
}

// TaskID returns the id of the changed row.
func (e ChangeEvent) TaskID() string {
	if e.After != nil && e.After.ID != "" {
		return e.After.ID
	}
	if e.Before != nil {
		return e.Before.ID
	}
	return ""
}
