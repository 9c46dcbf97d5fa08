// Package issue defines the downloaded-issue schema consumed by the
// importer. Issues are external-sourced and immutable once downloaded; the
// download step itself happens elsewhere and earlier, this package only
// reads the result back.
package issue

import (
	"fmt"
	"time"
)

// Issue is one downloaded issue with its ordered comments.
type Issue struct {
	ID        int64     `json:"id"`
	State     string    `json:"state"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	AuthorID  int64     `json:"author_id"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is one downloaded issue comment.
type Comment struct {
	ID        int64      `json:"id"`
	AuthorID  int64      `json:"author_id"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ValidationError reports a malformed issue. It is recovered per item: the
// batch records it and continues.
type ValidationError struct {
	IssueID int64
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("issue %d: %s %s", e.IssueID, e.Field, e.Reason)
}

// Validate checks the fields the encoder depends on.
func (i *Issue) Validate() error {
	if i.ID == 0 {
		return &ValidationError{IssueID: i.ID, Field: "id", Reason: "missing"}
	}
	if i.Title == "" {
		return &ValidationError{IssueID: i.ID, Field: "title", Reason: "missing"}
	}
	if i.AuthorID == 0 {
		return &ValidationError{IssueID: i.ID, Field: "author_id", Reason: "missing"}
	}
	if i.CreatedAt.IsZero() {
		return &ValidationError{IssueID: i.ID, Field: "created_at", Reason: "missing"}
	}
	for _, c := range i.Comments {
		if c.ID == 0 {
			return &ValidationError{IssueID: i.ID, Field: "comment.id", Reason: "missing"}
		}
		if c.AuthorID == 0 {
			return &ValidationError{IssueID: i.ID, Field: "comment.author_id", Reason: fmt.Sprintf("missing on comment %d", c.ID)}
		}
	}
	return nil
}
