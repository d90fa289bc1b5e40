package services

import "sync"

// Stage is a step of a sync as reported to progress observers.
type Stage string

const (
	StageFetching  Stage = "fetching"
	StageStoring   Stage = "storing"
	StageCompleted Stage = "completed"
	StageError     Stage = "error"
)

func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

func (s Stage) rank() int {
	switch s {
	case StageFetching:
		return 1
	case StageStoring:
		return 2
	case StageCompleted, StageError:
		return 3
	}
	return 0
}

// ProgressEvent is one status update of a sync in progress.
type ProgressEvent struct {
	Stage            Stage  `json:"stage"`
	Message          string `json:"message"`
	TransactionCount int    `json:"transaction_count,omitempty"`
	Institution      string `json:"institution,omitempty"`
	Error            string `json:"error,omitempty"`
	Code             string `json:"code,omitempty"`
	RunID            string `json:"run_id,omitempty"`
}

// ProgressFunc observes progress events. It is called synchronously from the
// sync goroutine.
type ProgressFunc func(ProgressEvent)

// progress forwards events in stage order, each stage at most once, and
// nothing after a terminal stage.
type progress struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last Stage
}

func newProgress(fn ProgressFunc) *progress {
	return &progress{fn: fn}
}

func (p *progress) emit(ev ProgressEvent) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	if p.last.Terminal() || ev.Stage.rank() <= p.last.rank() {
		p.mu.Unlock()
		return
	}
	p.last = ev.Stage
	p.mu.Unlock()
	p.fn(ev)
}
