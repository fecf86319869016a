package jira

import "time"

// Stub is the lightweight listing record returned by ListResolved.
// The full ticket is fetched separately per key.
type Stub struct {
	ID         string
	Key        string
	Summary    string
	ResolvedAt time.Time
}

// Ticket is the canonical normalized record for one resolved ticket.
// Immutable once fetched within a poll cycle.
type Ticket struct {
	ID          string
	Key         string
	Summary     string
	Description string
	IssueType   string
	Status      string
	Resolution  string
	Priority    string
	Reporter    string
	Assignee    string
	Labels      []string
	Created     time.Time
	Updated     time.Time
	ResolvedAt  time.Time
	Comments    []Comment
	Attachments []Attachment
}

// Comment is one ticket comment in creation order.
type Comment struct {
	Author  string
	Body    string
	Created time.Time
}

// Attachment is metadata for one ticket attachment. Content is fetched
// on demand (see Client.Download) for types the pipeline can extract.
type Attachment struct {
	ID         string
	Filename   string
	MimeType   string
	Size       int64
	ContentURL string
	Author     string
	Created    time.Time
}
