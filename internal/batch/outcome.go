package batch

import (
	"time"

	"github.com/jye-lim/wav2vec2-asr/internal/ledger"
)

// Status is the per-row result class.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Reasons recorded for rows that did not produce a transcript.
const (
	ReasonFileNotFound    = "file not found"
	ReasonMissingFilename = "missing filename"
	ReasonCancelled       = "cancelled"
	ReasonOutsideAudioDir = "filename escapes audio dir"

	// ReasonDuplicateFilename is followed by the first row naming the file.
	ReasonDuplicateFilename = "duplicate filename"
)

// Outcome records what happened to one manifest row.
type Outcome struct {
	Row          int
	Filename     string
	Status       Status
	Reason       string
	ErrorKind    string
	Transcript   string
	Duration     string
	AudioDeleted bool
	DeleteError  string
	Elapsed      time.Duration
}

// Report summarizes a run.
type Report struct {
	RunID        string
	ManifestPath string
	OutputPath   string
	Total        int
	Succeeded    int
	Skipped      int
	Failed       int
	Cancelled    bool
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcomes     []Outcome
}

func (r *Report) tally() {
	r.Succeeded, r.Skipped, r.Failed = 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSuccess:
			r.Succeeded++
		case StatusSkipped:
			r.Skipped++
		case StatusFailed:
			r.Failed++
		}
	}
}

func (r Report) ledgerRun(status ledger.RunStatus, errMsg string) ledger.Run {
	return ledger.Run{
		ID:           r.RunID,
		ManifestPath: r.ManifestPath,
		OutputPath:   r.OutputPath,
		Status:       status,
		Total:        r.Total,
		Succeeded:    r.Succeeded,
		Skipped:      r.Skipped,
		Failed:       r.Failed,
		ErrorMessage: errMsg,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

func (o Outcome) ledgerOutcome() ledger.Outcome {
	reason := o.Reason
	if o.DeleteError != "" {
		if reason != "" {
			reason += "; "
		}
		reason += "delete failed: " + o.DeleteError
	}
	return ledger.Outcome{
		Row:          o.Row,
		Filename:     o.Filename,
		Status:       string(o.Status),
		Reason:       reason,
		ErrorKind:    o.ErrorKind,
		Transcript:   o.Transcript,
		Duration:     o.Duration,
		AudioDeleted: o.AudioDeleted,
		Elapsed:      o.Elapsed,
	}
}
