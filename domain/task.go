package domain

import (
	"errors"
	"time"
)

// Status is the server-side label of a task.
type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
	StatusDiscarded  Status = "Discarded"
)

// StatusKey identifies a board column. Discarded tasks have no column.
type StatusKey string

const (
	KeyToDo       StatusKey = "to-do"
	KeyInProgress StatusKey = "in-progress"
	KeyDone       StatusKey = "done"
)

// StatusKeys lists the board columns in display order.
var StatusKeys = [...]StatusKey{KeyToDo, KeyInProgress, KeyDone}

var ErrUnknownStatus = errors.New("unknown status")

// Label returns the server label for the column. Unknown keys map to "".
func (k StatusKey) Label() Status {
	switch k {
	case KeyToDo:
		return StatusToDo
	case KeyInProgress:
		return StatusInProgress
	case KeyDone:
		return StatusDone
	}
	return ""
}

// Valid reports whether k is one of the three board columns.
func (k StatusKey) Valid() bool {
	return k.Label() != ""
}

// Key returns the column for a label. It reports false for "Discarded"
// and for anything outside the label set.
func (s Status) Key() (StatusKey, bool) {
	switch s {
	case StatusToDo:
		return KeyToDo, true
	case StatusInProgress:
		return KeyInProgress, true
	case StatusDone:
		return KeyDone, true
	}
	return "", false
}

// Valid reports whether s is one of the four server labels.
func (s Status) Valid() bool {
	_, ok := s.Key()
	return ok || s == StatusDiscarded
}

// ParseStatusKey accepts a column identifier as sent by clients.
func ParseStatusKey(raw string) (StatusKey, error) {
	k := StatusKey(raw)
	if !k.Valid() {
		return "", ErrUnknownStatus
	}
	return k, nil
}

// Task is an immutable snapshot of a row in the projects table.
type Task struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	Status               Status    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	Category             string    `json:"category,omitempty"`
	Subcategory          string    `json:"subcategory,omitempty"`
	AmountRawValue       *float64  `json:"amount_rawValue,omitempty"`
	AmountDisplayValue   string    `json:"amount_displayValue,omitempty"`
	HourlyBudgetType     string    `json:"hourlyBudgetType,omitempty"`
	HourlyBudgetMinValue *float64  `json:"hourlyBudgetMin_rawValue,omitempty"`
	HourlyBudgetMaxValue *float64  `json:"hourlyBudgetMax_rawValue,omitempty"`
	TotalApplicants      int       `json:"totalApplicants"`
	Country              string    `json:"prospect_location_country,omitempty"`
}

// WithStatus returns a copy of t carrying the given label.
func (t Task) WithStatus(s Status) Task {
	t.Status = s
	return t
}
