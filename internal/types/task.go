package types

import "time"

// Task is a unit of work owned by exactly one user. The embedded Author is
// the owner serialized as a public user record (its task list is never
// nested back in, so the cycle stops here). Task JSON stays snake_case for
// created_at/due_date, matching the original public contract.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	DueDate     *time.Time `json:"due_date"`
	UserID      int64      `json:"-"`
	Author      *User      `json:"author,omitempty"`
}

// CreateTaskParams is the typed creation payload. Title and description are
// required; due_date is optional and immutable after creation.
type CreateTaskParams struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskParams carries the whitelisted mutable task fields. There is
// deliberately no DueDate or owner here: the boundary cannot express those
// mutations at all.
type UpdateTaskParams struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}
