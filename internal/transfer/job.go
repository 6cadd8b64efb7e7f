package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Status is the engine-reported state of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	StatusRemoved  Status = "removed"
)

// IsTerminal reports whether no further transitions are expected for the job.
// A complete job with a successor is handled by the caller before this matters.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusRemoved:
		return true
	default:
		return false
	}
}

// Job is a snapshot of one engine download.
type Job struct {
	ID              string
	Name            string
	Status          Status
	Dir             string
	InfoHash        string
	TotalLength     int64
	CompletedLength int64
	DownloadSpeed   int64
	ErrorCode       string
	ErrorMessage    string
	FollowedBy      Successor
}

// Progress formats the completed fraction as "40.0%".
func (j *Job) Progress() string {
	if j.TotalLength <= 0 {
		return "0.0%"
	}

	return fmt.Sprintf("%.1f%%", float64(j.CompletedLength)*100/float64(j.TotalLength))
}

// Speed formats the download rate as "1.2 MB/s".
func (j *Job) Speed() string {
	if j.DownloadSpeed < 0 {
		return "0 B/s"
	}

	return humanize.Bytes(uint64(j.DownloadSpeed)) + "/s"
}

// ETA estimates the remaining time from the current rate, or "-" when it
// cannot be known.
func (j *Job) ETA() string {
	remaining := j.TotalLength - j.CompletedLength
	if j.DownloadSpeed <= 0 || j.TotalLength <= 0 || remaining <= 0 {
		return "-"
	}

	eta := time.Duration(remaining/j.DownloadSpeed) * time.Second

	return eta.String()
}

// SuccessorKind tells which shape the engine used to reference the job that
// continues this one.
type SuccessorKind int

const (
	SuccessorNone SuccessorKind = iota
	SuccessorID
	SuccessorHandle
	SuccessorOpaque
)

// Successor references the job that takes over once a metadata-only job
// completes.
type Successor struct {
	Kind SuccessorKind
	ID   string
}

// Present reports whether the successor can be followed.
func (s Successor) Present() bool {
	return s.Kind != SuccessorNone && s.ID != ""
}

// DecodeSuccessor turns whatever the engine returned for "followed by" into a
// Successor. It never fails: unknown shapes become SuccessorOpaque carrying
// their compact JSON text.
func DecodeSuccessor(raw json.RawMessage) Successor {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Successor{}
	}

	switch trimmed[0] {
	case '"':
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil || id == "" {
			return Successor{}
		}

		return Successor{Kind: SuccessorID, ID: id}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return opaque(trimmed)
		}

		if len(items) == 0 {
			return Successor{}
		}

		return DecodeSuccessor(items[0])
	case '{':
		var handle struct {
			GID *string `json:"gid"`
			ID  *string `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &handle); err != nil {
			return opaque(trimmed)
		}

		switch {
		case handle.GID != nil && *handle.GID != "":
			return Successor{Kind: SuccessorHandle, ID: *handle.GID}
		case handle.ID != nil && *handle.ID != "":
			return Successor{Kind: SuccessorHandle, ID: *handle.ID}
		}

		return opaque(trimmed)
	default:
		return opaque(trimmed)
	}
}

func opaque(raw []byte) Successor {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Successor{Kind: SuccessorOpaque, ID: string(raw)}
	}

	return Successor{Kind: SuccessorOpaque, ID: buf.String()}
}
