// Package campaign drives the ad campaign orchestrator function: it
// forwards the agents' thoughts as they stream in and settles each run with
// exactly one Result or one error.
package campaign

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/kolony"
	"github.com/zhengjr9/kolony/internal/session"
	"github.com/zhengjr9/kolony/internal/tracer"
)

// ThoughtFunc receives thoughts in arrival order, synchronously from the
// decode loop. It must not block indefinitely. It may call Run.Cancel but
// not Run.Wait.
type ThoughtFunc func(Thought)

// Orchestrator starts campaign runs.
type Orchestrator struct {
	transport *kolony.Client
	tokens    session.Provider
	logger    *slog.Logger
}

func NewOrchestrator(transport *kolony.Client, tokens session.Provider) *Orchestrator {
	return &Orchestrator{transport: transport, tokens: tokens, logger: slog.Default()}
}

// WithLogger returns a copy of o that logs to l.
func (o *Orchestrator) WithLogger(l *slog.Logger) *Orchestrator {
	cp := *o
	cp.logger = l
	return &cp
}

// Run is one in-flight orchestration.
type Run struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}

	cancelled  atomic.Bool
	inObserver atomic.Bool

	// mu is held for the whole of an observer call.
	mu     sync.Mutex
	result *Result
	err    error
}

// Start launches a run in its own goroutine and returns immediately.
// onThought may be nil.
func (o *Orchestrator) Start(ctx context.Context, req Request, onThought ThoughtFunc) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		res, err := o.run(runCtx, r, req, onThought)
		r.finish(res, err)
	}()
	return r
}

// Orchestrate runs req to completion.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request, onThought ThoughtFunc) (*Result, error) {
	return o.Start(ctx, req, onThought).Wait()
}

// Cancel aborts the run. Once Cancel returns no further thought is
// delivered, and a run that has not settled yet settles with
// errors.ErrCancelled. Calling it again, or after the run settled, has no
// effect.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
	r.cancel()
	if r.inObserver.Load() {
		// The delivery in progress passed its cancellation check before
		// this call; it may also be the caller.
		return
	}
	// Waits for a delivery that is about to start.
	r.mu.Lock()
	r.mu.Unlock() //nolint:staticcheck
}

// Done is closed when the run has settled.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run settles.
func (r *Run) Wait() (*Result, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// emit delivers t unless the run has been cancelled.
func (r *Run) emit(ctx context.Context, fn ThoughtFunc, t Thought) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled.Load() || ctx.Err() != nil {
		return false
	}
	if fn != nil {
		r.inObserver.Store(true)
		defer r.inObserver.Store(false)
		fn(t)
	}
	return true
}

func (r *Run) finish(res *Result, err error) {
	r.mu.Lock()
	if r.cancelled.Load() && !apierrors.IsCancelled(err) {
		res, err = nil, apierrors.ErrCancelled
	}
	r.result, r.err = res, err
	r.mu.Unlock()
	close(r.done)
	r.cancel()
}

func (o *Orchestrator) run(ctx context.Context, r *Run, req Request, onThought ThoughtFunc) (result *Result, err error) {
	ctx, span := tracer.StartSpan(ctx, "campaign.Run", attribute.String("campaign.run_id", r.ID))
	defer func() { tracer.End(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	token, err := session.Resolve(ctx, o.tokens)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With("run_id", r.ID)
	stream, err := o.transport.WithLogger(logger).Open(ctx, kolony.OrchestratorFunction, token, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	thoughts := 0
	for p, err := range stream.All(ctx) {
		if err != nil {
			return nil, err
		}
		ev, derr := DecodeEvent(p)
		if errors.Is(derr, apierrors.ErrBadResult) {
			if result == nil {
				return nil, derr
			}
			logger.Warn("ignoring malformed duplicate campaign result", "error", derr)
			continue
		}
		if derr != nil {
			logger.Warn("skipping malformed campaign envelope", "error", derr)
			continue
		}

		switch ev.Kind {
		case KindThought:
			if !r.emit(ctx, onThought, *ev.Thought) {
				if cerr := apierrors.FromContext(ctx); cerr != nil {
					return nil, cerr
				}
				return nil, apierrors.ErrCancelled
			}
			thoughts++
		case KindResult:
			if result != nil {
				logger.Warn("ignoring duplicate campaign result")
				continue
			}
			result = ev.Result
		case KindError:
			return nil, &apierrors.ServerError{Message: ev.Message}
		}
	}

	span.SetAttributes(attribute.Int("campaign.thoughts", thoughts))
	if result == nil {
		return nil, apierrors.ErrIncompleteRun
	}
	logger.Debug("campaign run completed", "thoughts", thoughts)
	return result, nil
}
