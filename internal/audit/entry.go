package audit

import "time"

// Entry represents a single audit log record: one input line run by the shell.
type Entry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"ts"`
	Session  string    `json:"session"` // shell session that ran the line
	PrevHash string    `json:"prev_hash"`
	Line     string    `json:"line"`            // raw input line
	Stages   []string  `json:"stages"`          // command name of each stage
	State    string    `json:"state"`           // "complete", "aborted", "builtin"
	Launched int       `json:"launched"`        // processes started
	Error    string    `json:"error,omitempty"` // launch error that aborted the run
	Duration float64   `json:"duration_ms"`     // execution time in milliseconds
	Cwd      string    `json:"cwd"`             // working directory after the run
	Hash     string    `json:"hash"`            // SHA-256 of this entry (with hash field empty)
}

// Record carries the per-run fields of an Entry. The logger fills in the
// sequence number, timestamps, session and hashes.
type Record struct {
	Line     string
	Stages   []string
	State    string
	Launched int
	Error    string
	Duration time.Duration
	Cwd      string
}
