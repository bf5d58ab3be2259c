package response

// Protocol identifies the response dialect a payload was decoded from.
type Protocol string

const (
	ProtocolSocaity   Protocol = "socaity"
	ProtocolRunpod    Protocol = "runpod"
	ProtocolReplicate Protocol = "replicate"
)

type (
	// JobResponse is the unified remote job payload. Provider-specific
	// fields hang off the optional metadata structs.
	JobResponse struct {
		ID              string
		Status          JobStatus
		Progress        float64
		ProgressMessage string
		Error           string
		Result          any
		RefreshURL      string
		CancelURL       string
		Protocol        Protocol

		Socaity   *SocaityMeta
		Runpod    *RunpodMeta
		Replicate *ReplicateMeta
	}

	// SocaityMeta carries the FastTaskAPI job timestamps.
	SocaityMeta struct {
		CreatedAt           string
		ExecutionStartedAt  string
		ExecutionFinishedAt string
	}

	// RunpodMeta carries the Runpod worker accounting fields.
	RunpodMeta struct {
		DelayTimeMS     float64
		ExecutionTimeMS float64
		Retries         float64
		WorkerID        string
	}

	// ReplicateMeta carries the prediction bookkeeping fields.
	ReplicateMeta struct {
		Metrics     map[string]any
		StreamURL   string
		Version     string
		Logs        string
		DataRemoved bool
	}
)

// Terminal reports whether the response status ends the job.
func (r *JobResponse) Terminal() bool { return r.Status.Terminal() }

// merge folds the outer response's fields into r wherever r has no value of
// its own. Used for nested recovery, where the inner payload wins.
func (r *JobResponse) merge(outer *JobResponse) {
	if r.ID == "" {
		r.ID = outer.ID
	}
	if r.Status == "" || r.Status == StatusUnknown {
		r.Status = outer.Status
	}
	if r.Progress == 0 {
		r.Progress = outer.Progress
	}
	if r.ProgressMessage == "" {
		r.ProgressMessage = outer.ProgressMessage
	}
	if r.Error == "" {
		r.Error = outer.Error
	}
	if r.Result == nil {
		r.Result = outer.Result
	}
	if r.RefreshURL == "" {
		r.RefreshURL = outer.RefreshURL
	}
	if r.CancelURL == "" {
		r.CancelURL = outer.CancelURL
	}
	if r.Socaity == nil {
		r.Socaity = outer.Socaity
	}
	if r.Runpod == nil {
		r.Runpod = outer.Runpod
	}
	if r.Replicate == nil {
		r.Replicate = outer.Replicate
	}
}
