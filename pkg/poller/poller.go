package poller

import (
	"context"
	"sync"
	"time"

	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/pkg/events"
	"surgical-review-be/pkg/store"
)

// State of the polling machine.
type State int

const (
	Idle State = iota
	Polling
	Succeeded
	Failed // attempt cap exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// TimeoutNoticeText is surfaced to the user when the attempt cap is reached.
const TimeoutNoticeText = "Transcript parsing timed out, please retry"

// StatusFetcher asks the backend for a transcription result. An empty
// transcript with a nil error means the task is still processing.
type StatusFetcher interface {
	ParseStatus(ctx context.Context, taskId string) (string, error)
}

// Poller drives repeated status checks against one transcription task and
// feeds the result into the session store. At most one timer is ever active:
// Start replaces any prior run atomically, Stop cancels outright.
type Poller struct {
	store       *store.Store
	fetcher     StatusFetcher
	noticer     events.Noticer
	log         logger.ILogger
	interval    time.Duration
	maxAttempts int

	mu      sync.Mutex
	state   State
	current *run
}

// run identifies one polling lifecycle so a cancelled goroutine can never
// report a terminal outcome on behalf of its replacement.
type run struct {
	taskId string
	cancel context.CancelFunc
}

func New(st *store.Store, fetcher StatusFetcher, noticer events.Noticer, log logger.ILogger, interval time.Duration, maxAttempts int) *Poller {
	return &Poller{
		store:       st,
		fetcher:     fetcher,
		noticer:     noticer,
		log:         log,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// State reports the current machine state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins polling the given task. A previous run, if any, is cancelled
// first; its timer is gone before the new one exists.
func (p *Poller) Start(taskId string) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{taskId: taskId, cancel: cancel}

	p.mu.Lock()
	if p.current != nil {
		p.current.cancel()
	}
	p.current = r
	p.state = Polling
	p.mu.Unlock()

	p.store.Dispatch(store.SetLoading{Key: store.LoadingParse, Value: true})
	p.log.Info("Poller", "Polling started", map[string]interface{}{"task_id": taskId})

	go p.poll(ctx, r)
}

// Stop cancels any active run. Used when the owning session goes away; the
// parse flag is cleared so nothing is left stuck loading.
func (p *Poller) Stop() {
	p.mu.Lock()
	active := p.current
	p.current = nil
	if p.state == Polling {
		p.state = Idle
	}
	p.mu.Unlock()

	if active != nil {
		active.cancel()
		p.store.Dispatch(store.SetLoading{Key: store.LoadingParse, Value: false})
	}
}

func (p *Poller) poll(ctx context.Context, r *run) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		transcript, err := p.fetcher.ParseStatus(ctx, r.taskId)
		if ctx.Err() != nil {
			return
		}

		if err == nil && transcript != "" {
			if !p.finish(r, Succeeded) {
				return
			}
			p.store.Dispatch(store.SetTranscript{Transcript: transcript})
			p.store.Dispatch(store.SetLoading{Key: store.LoadingParse, Value: false})
			p.log.Info("Poller", "Transcript ready", map[string]interface{}{"task_id": r.taskId, "attempts": attempts + 1})
			return
		}

		// Transport errors are not terminal, they just consume an attempt.
		if err != nil {
			p.log.Warn("Poller", "Status check failed", map[string]interface{}{"task_id": r.taskId, "error": err.Error()})
		}

		attempts++
		if attempts >= p.maxAttempts {
			if !p.finish(r, Failed) {
				return
			}
			p.store.Dispatch(store.SetLoading{Key: store.LoadingParse, Value: false})
			p.noticer.Notice(events.NoticeError, TimeoutNoticeText)
			p.log.Error("Poller", "Polling timed out", map[string]interface{}{"task_id": r.taskId, "attempts": attempts})
			return
		}
	}
}

// finish marks a terminal state if r is still the active run. Returns false
// when the run was replaced or stopped in the meantime.
func (p *Poller) finish(r *run, s State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != r {
		return false
	}
	p.current = nil
	p.state = s
	return true
}
