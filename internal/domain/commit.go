package domain

import "time"

// CommitDocument represents one commit's metadata in the Bleve lookup
// index. It carries no file contents; content search goes through the
// history walk, the index only answers metadata lookups.
type CommitDocument struct {
	// Hash is the full commit hash and doubles as the document ID.
	Hash string `json:"hash"`

	// Repository is the absolute path of the repository the commit
	// belongs to.
	Repository string `json:"repository"`

	// Author is the author name as recorded in the commit.
	Author string `json:"author"`

	// AuthorEmail is the author email as recorded in the commit.
	AuthorEmail string `json:"author_email"`

	// Date is the author date of the commit.
	Date time.Time `json:"date"`

	// Message is the full commit message, subject and body.
	Message string `json:"message"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	CommitFieldHash        = "hash"
	CommitFieldRepository  = "repository"
	CommitFieldAuthor      = "author"
	CommitFieldAuthorEmail = "author_email"
	CommitFieldDate        = "date"
	CommitFieldMessage     = "message"
)
