package capture

import "time"

// Report summarises one captured run.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	CommandLine string    `json:"command_line" yaml:"command_line"`
	State       string    `json:"state" yaml:"state"`
	ExitCode    *int      `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	Duration    string    `json:"duration" yaml:"duration"`

	Stdout StreamReport `json:"stdout" yaml:"stdout"`
	Stderr StreamReport `json:"stderr" yaml:"stderr"`
}

// StreamReport describes one captured output stream.
type StreamReport struct {
	Bytes       int64  `json:"bytes" yaml:"bytes"`
	OnDisk      bool   `json:"on_disk" yaml:"on_disk"`
	MIME        string `json:"mime,omitempty" yaml:"mime,omitempty"`
	Digest      string `json:"digest,omitempty" yaml:"digest,omitempty"`
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty"`
	Stored      int64  `json:"stored_bytes,omitempty" yaml:"stored_bytes,omitempty"`
}

// Succeeded reports whether the run completed with exit code 0.
func (r *Report) Succeeded() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}
