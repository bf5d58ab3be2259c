// Package response decodes the job payloads returned by the providers into
// one unified shape. A first-match-wins strategy list recognizes each
// protocol, maps its status vocabulary onto the unified enum and recovers
// results nested inside other protocols.
package response

import "strings"

// JobStatus is the unified remote job status.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusFinished   JobStatus = "finished"
	StatusFailed     JobStatus = "failed"
	StatusTimeout    JobStatus = "timeout"
	StatusCancelled  JobStatus = "cancelled"
	StatusUnknown    JobStatus = "unknown"
)

// Terminal reports whether the status ends a job.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// runpodStatuses maps the Runpod job vocabulary onto the unified enum.
var runpodStatuses = map[string]JobStatus{
	"IN_QUEUE":    StatusQueued,
	"IN_PROGRESS": StatusProcessing,
	"COMPLETED":   StatusFinished,
	"FAILED":      StatusFailed,
	"CANCELLED":   StatusCancelled,
	"TIMED_OUT":   StatusTimeout,
}

// replicateStatuses maps the Replicate prediction vocabulary onto the
// unified enum.
var replicateStatuses = map[string]JobStatus{
	"STARTING":   StatusQueued,
	"BOOTING":    StatusProcessing,
	"PROCESSING": StatusProcessing,
	"SUCCEEDED":  StatusFinished,
	"FAILED":     StatusFailed,
	"CANCELED":   StatusCancelled,
}

// RunpodStatus maps a raw Runpod status string; the second return reports
// whether the string belongs to the Runpod vocabulary at all.
func RunpodStatus(raw string) (JobStatus, bool) {
	s, ok := runpodStatuses[strings.ToUpper(strings.TrimSpace(raw))]
	return s, ok
}

// ReplicateStatus maps a raw Replicate status string.
func ReplicateStatus(raw string) (JobStatus, bool) {
	s, ok := replicateStatuses[strings.ToUpper(strings.TrimSpace(raw))]
	return s, ok
}

// UnifiedStatus maps a status string that already uses the unified
// vocabulary, in any casing. FastTaskAPI servers report these directly.
func UnifiedStatus(raw string) (JobStatus, bool) {
	switch JobStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusQueued:
		return StatusQueued, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusFinished:
		return StatusFinished, true
	case StatusFailed:
		return StatusFailed, true
	case StatusTimeout:
		return StatusTimeout, true
	case StatusCancelled:
		return StatusCancelled, true
	}
	return StatusUnknown, false
}
