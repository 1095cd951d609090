package domain

import "time"

// AnonymousAuthor is recorded when the commenting user has no email.
const AnonymousAuthor = "Anonymous"

// Comment is a flat entry in a task's discussion thread.
type Comment struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	UserEmail string     `json:"user_email"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// User is the identity of the signed-in person.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Lookups feeds the filter bar option lists.
type Lookups struct {
	Categories    []string            `json:"categories"`
	Subcategories map[string][]string `json:"subcategories"`
	Countries     []string            `json:"countries"`
}
