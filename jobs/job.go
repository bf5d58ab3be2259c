// Package jobs drives submitted calls through their stage pipeline: prepare,
// load files, upload, send, poll and decode. Each job runs on its own
// goroutine; callers observe progress through a channel and collect the
// final result with Wait.
package jobs

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// State is the job lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Stage names one step of a job's task plan.
type Stage string

const (
	StagePreparing  Stage = "preparing"
	StageLoadFiles  Stage = "load_files"
	StageUploading  Stage = "uploading"
	StageSending    Stage = "sending"
	StagePolling    Stage = "polling"
	StageProcessing Stage = "processing"
)

// Progress is one progress observation, forwarded to the job's channel.
type Progress struct {
	Stage    Stage
	Fraction float64
	Message  string
}

// Job is one submitted call travelling through its pipeline. All methods are
// safe for concurrent use.
type Job struct {
	ID         string
	ServiceID  string
	EndpointID string
	Input      map[string]any
	Plan       []Stage

	mu            sync.Mutex
	state         State
	stageOutputs  map[Stage]any
	stageProgress map[Stage]Progress
	result        any
	err           error

	progressCh chan Progress
	done       chan struct{}
	cancel     context.CancelFunc
	cancelOnce sync.Once
}

func newJob(serviceID, endpointID string, input map[string]any, plan []Stage, cancel context.CancelFunc) *Job {
	return &Job{
		ID:            uuid.NewString(),
		ServiceID:     serviceID,
		EndpointID:    endpointID,
		Input:         input,
		Plan:          plan,
		state:         StatePending,
		stageOutputs:  make(map[Stage]any),
		stageProgress: make(map[Stage]Progress),
		progressCh:    make(chan Progress, 32),
		done:          make(chan struct{}),
		cancel:        cancel,
	}
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure, nil while running or on success.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Result returns the decoded final value once the job finished.
func (j *Job) Result() (any, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// StageOutput returns the recorded output of a completed stage. Outputs of
// stages observed before a failure stay inspectable.
func (j *Job) StageOutput(stage Stage) (any, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	v, ok := j.stageOutputs[stage]
	return v, ok
}

// StageProgress returns the last progress observation for a stage.
func (j *Job) StageProgress(stage Stage) (Progress, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p, ok := j.stageProgress[stage]
	return p, ok
}

// Progress returns the progress channel. It closes when the job reaches a
// terminal state.
func (j *Job) Progress() <-chan Progress { return j.progressCh }

// Done returns a channel closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job terminates or the context expires, then returns
// the final result.
func (j *Job) Wait(ctx context.Context) (any, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cooperative cancellation. Idempotent; the pipeline
// observes it between stages and on every poll tick. An in-flight HTTP call
// is not aborted.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() {
		if j.cancel != nil {
			j.cancel()
		}
	})
}

// HasStage reports whether the task plan contains the stage.
func (j *Job) HasStage(stage Stage) bool {
	for _, s := range j.Plan {
		if s == stage {
			return true
		}
	}
	return false
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) recordOutput(stage Stage, output any) {
	j.mu.Lock()
	j.stageOutputs[stage] = output
	j.mu.Unlock()
}

// report forwards a progress observation without ever blocking the
// pipeline; slow consumers miss intermediate ticks, never the terminal one
// (terminal delivery happens through done).
func (j *Job) report(p Progress) {
	j.mu.Lock()
	j.stageProgress[p.Stage] = p
	j.mu.Unlock()
	select {
	case j.progressCh <- p:
	default:
	}
}

func (j *Job) finish(result any) {
	j.mu.Lock()
	j.result = result
	j.state = StateFinished
	j.mu.Unlock()
	close(j.progressCh)
	close(j.done)
}

func (j *Job) fail(state State, err error) {
	j.mu.Lock()
	j.err = err
	j.state = state
	j.mu.Unlock()
	close(j.progressCh)
	close(j.done)
}
