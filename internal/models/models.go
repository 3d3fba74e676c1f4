// Package models defines the persisted data structures of dtnntp.
package models

import "time"

// Newsgroup represents a locally carried newsgroup. The set of groups is
// reconciled against the configuration at startup; groups dropped from the
// config are deleted together with their articles.
type Newsgroup struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Article is a committed, reader-visible news item. ID is assigned by the
// store in insertion order and doubles as the NNTP article number.
type Article struct {
	ID           int64     `json:"id" db:"id"`
	NewsgroupID  int64     `json:"newsgroup_id" db:"newsgroup_id"`
	FromHeader   string    `json:"from" db:"from_header"`
	Subject      string    `json:"subject" db:"subject"`
	Body         string    `json:"body" db:"body"`
	MessageID    string    `json:"message_id" db:"message_id"`
	References   string    `json:"references" db:"refs"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	Path         string    `json:"path" db:"path"`
	ReplyTo      string    `json:"reply_to" db:"reply_to"`
	Organization string    `json:"organization" db:"organization"`
	UserAgent    string    `json:"user_agent" db:"user_agent"`

	// Newsgroup is the resolved group name, populated by queries that join
	// against the newsgroups table. Not a column of the articles table.
	Newsgroup string `json:"newsgroup" db:"-"`
}

// SpoolEntry is a locally posted article that DTNd has not acknowledged yet.
// Data holds the CBOR payload bytes exactly as sent on the wire. Hash is the
// join key between the outbound post and its later acknowledgement; ErrorLog
// is append-only.
type SpoolEntry struct {
	ID                   int64     `json:"id" db:"id"`
	Source               string    `json:"source" db:"source"`
	Destination          string    `json:"destination" db:"destination"`
	Data                 []byte    `json:"-" db:"data"`
	DeliveryNotification bool      `json:"delivery_notification" db:"delivery_notification"`
	Lifetime             int64     `json:"lifetime" db:"lifetime"` // milliseconds
	Hash                 string    `json:"hash" db:"hash"`
	Retries              int       `json:"retries" db:"retries"`
	ErrorLog             string    `json:"error_log" db:"error_log"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// GroupStats carries the water marks the NNTP GROUP/LISTGROUP/LIST commands
// report for one group.
type GroupStats struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
	Low   int64  `json:"low"`
	High  int64  `json:"high"`
}
