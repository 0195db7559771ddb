// Package domain holds the core record types shared across ingestion,
// deduplication, link validation and the query layer.
package domain

import "time"

// Link is a single share URL with an optional variant label
// drawn from the controlled label vocabulary.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Links maps a provider tag to its ordered share links.
// Keys are unique; within a provider, URLs are unique.
type Links map[string][]Link

// URLCount returns the total number of URLs across all providers.
func (l Links) URLCount() int {
	n := 0
	for _, items := range l {
		n += len(items)
	}

	return n
}

// URLs flattens every URL in provider-key order.
func (l Links) URLs() []string {
	urls := make([]string, 0, l.URLCount())
	for _, items := range l {
		for _, item := range items {
			urls = append(urls, item.URL)
		}
	}

	return urls
}

// Message is the canonical ingestion record. Timestamp is stored in the
// fixed local zone (UTC+8) without zone information.
type Message struct {
	ID           int64
	Timestamp    time.Time
	Title        string
	Description  string
	Links        Links
	Tags         []string
	Source       string
	Channel      string
	GroupName    string
	Bot          string
	NetdiskTypes []string
	CreatedAt    time.Time
}

// Channel is a monitored Telegram channel. Username is either a public
// handle or an invite-hash string of the form +xxxxxxxxxx.
type Channel struct {
	ID            int64
	Username      string
	LastMessageID int64
	CreatedAt     time.Time
}

// Credential holds a Telegram API credential pair.
type Credential struct {
	ID      int64
	APIID   string
	APIHash string
}

// DedupStat records one deduplication run. Inserted carries the size of
// the surviving URL map, matching historical rows.
type DedupStat struct {
	ID       int64
	RunTime  time.Time
	Inserted int
	Deleted  int
}

// Task status values for a validation run.
const (
	CheckStatusRunning     = "running"
	CheckStatusCompleted   = "completed"
	CheckStatusInterrupted = "interrupted"
	CheckStatusFailed      = "failed"
)

// ProviderStat is the per-provider slice of a validation run summary.
type ProviderStat struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// LinkCheckStat is one row per validation run.
type LinkCheckStat struct {
	ID              int64
	CheckTime       time.Time
	TotalMessages   int
	TotalLinks      int
	ValidLinks      int
	InvalidLinks    int
	DeletedMessages int
	UpdatedMessages int
	NetdiskStats    map[string]ProviderStat
	CheckDuration   float64
	Status          string
	CreatedAt       time.Time
}

// LinkCheckDetail is one row per probed URL in a validation run.
// MessageID is zero when the probe is not back-linked to a message.
type LinkCheckDetail struct {
	ID           int64
	CheckTime    time.Time
	MessageID    int64
	NetdiskType  string
	URL          string
	IsValid      bool
	ResponseTime float64
	ErrorReason  string
	ActionTaken  string
	CreatedAt    time.Time
}
