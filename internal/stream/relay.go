package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/observability"
	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/sse"
)

// Sink receives best-effort stream records. Implementations must never block
// the caller for long and must swallow their own failures.
type Sink interface {
	Record(ctx context.Context, event, sessionID string, payload any)
}

// Attempt runs one upstream invocation, delivering results through the
// emitter. Zero, one, or many emitted items are all valid per attempt.
type Attempt func(ctx context.Context, emit *Emitter) error

// Summary describes a completed stream for the terminal done frame.
type Summary struct {
	Items      int
	Processing time.Duration
}

// Options configures one relay run. Invoke is required; everything else has
// a usable zero value.
type Options struct {
	Endpoint    string
	SessionID   string
	InitPayload any

	Invoke Attempt

	// Fallback, when set, is invoked at most once after a classified-retryable
	// primary failure, or after the primary rejected before emitting any item.
	Fallback       Attempt
	Retryable      func(error) bool
	FallbackNotice string

	// DonePayload builds the terminal done frame. Defaults to
	// {type, totalItems, processingTimeMs, timestamp}.
	DonePayload func(Summary) any
	// ErrorPayload builds the terminal error frame. Defaults to
	// {error, timestamp}.
	ErrorPayload func(error) any

	Heartbeat time.Duration
	Sink      Sink
	Metrics   *observability.Metrics

	// Track registers the live stream with a session registry. The returned
	// release func runs once the stream closes.
	Track func(sessionID string, h Handle) (release func())
}

// Handle is a registry's view of one live stream.
type Handle interface {
	// Cancel ends the stream from the host side. Unlike a client abort, the
	// client is still connected, so the terminal error frame is emitted if
	// the stream is still open.
	Cancel(reason string)
	// LastActivity reports when the stream last wrote a non-heartbeat frame.
	LastActivity() time.Time
}

// Relay drives one SSE stream: init frame, heartbeat, upstream invocation
// with single fallback, best-effort recording, and exactly one terminal
// frame unless the client aborted first.
type Relay struct {
	opts         Options
	token        *Token
	writer       *sse.Writer
	items        atomic.Int64
	aborted      atomic.Bool
	started      time.Time
	lastActivity atomic.Int64
}

// Cancel terminates the stream with an error frame naming the reason. Safe
// to call from any goroutine; a stream that already closed is left alone.
func (r *Relay) Cancel(reason string) {
	r.terminate("error", r.errorPayload(errors.New(reason)))
}

// LastActivity reports when the stream last wrote a non-heartbeat frame.
func (r *Relay) LastActivity() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

// Emitter forwards upstream results onto the wire in arrival order.
type Emitter struct {
	relay *Relay
}

// Item writes one named frame. Returns ErrClosed once the stream has closed,
// which invokers should treat as a stop signal.
func (e *Emitter) Item(eventType string, payload any) error {
	return e.relay.emit(eventType, payload, true)
}

// Progress writes a progress frame. Progress is not counted as an item for
// fallback/summary purposes.
func (e *Emitter) Progress(payload any) error {
	return e.relay.emit("progress", payload, false)
}

// Items reports how many item frames have been emitted so far.
func (e *Emitter) Items() int {
	return int(e.relay.items.Load())
}

// Serve runs the stream over the given request/response pair. Validation
// belongs to the caller; by the time Serve writes the init frame the HTTP
// status is committed to 200.
func Serve(w http.ResponseWriter, r *http.Request, opts Options) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}

	relay := &Relay{
		opts:    opts,
		token:   NewToken(),
		writer:  writer,
		started: time.Now(),
	}
	relay.lastActivity.Store(relay.started.UnixNano())
	sse.SetHeaders(w)
	relay.run(r.Context())
}

func (r *Relay) run(ctx context.Context) {
	opts := r.opts

	if m := opts.Metrics; m != nil {
		m.ActiveStreams.Inc()
		defer m.ActiveStreams.Dec()
	}
	if opts.Track != nil {
		if release := opts.Track(opts.SessionID, r); release != nil {
			defer release()
		}
	}

	// Client abort closes the token silently: the client already hung up, so
	// no terminal frame is sent. The same context is threaded into the
	// upstream attempts, cancelling any in-flight provider call.
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			r.aborted.Store(true)
			if r.token.Close() {
				r.record(opts.SessionID, "aborted", nil)
				if m := opts.Metrics; m != nil {
					m.StreamOutcomes.WithLabelValues(opts.Endpoint, "aborted").Inc()
				}
			}
		case <-r.token.Done():
		}
	}()
	defer func() {
		r.token.Close()
		<-watchDone
	}()

	if opts.InitPayload != nil {
		if err := r.emit("init", opts.InitPayload, false); err != nil {
			return
		}
		r.record(opts.SessionID, "init", opts.InitPayload)
	}

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		r.heartbeat(opts.Heartbeat)
	}()
	defer func() { <-heartbeatDone }()

	emitter := &Emitter{relay: r}
	err := opts.Invoke(ctx, emitter)

	if err != nil && !errors.Is(err, ErrClosed) && !r.aborted.Load() && ctx.Err() == nil && opts.Fallback != nil {
		retryable := opts.Retryable != nil && opts.Retryable(err)
		if retryable || emitter.Items() == 0 {
			if m := opts.Metrics; m != nil {
				m.FallbackAttempts.WithLabelValues(opts.Endpoint).Inc()
			}
			notice := opts.FallbackNotice
			if notice == "" {
				notice = "retrying with automatic provider selection"
			}
			_ = emitter.Progress(map[string]any{
				"phase":   "fallback",
				"message": notice,
			})
			primaryErr := err
			if fbErr := opts.Fallback(ctx, emitter); fbErr != nil {
				err = fmt.Errorf("All providers failed: %v; fallback: %v", primaryErr, fbErr)
			} else {
				err = nil
			}
		}
	}

	if r.aborted.Load() || ctx.Err() != nil {
		return
	}

	if err != nil {
		r.terminate("error", r.errorPayload(err))
		return
	}
	r.terminate("done", r.donePayload())
}

func (r *Relay) emit(eventType string, payload any, countItem bool) error {
	err := r.token.Guard(func() error {
		if werr := r.writer.WriteEvent(eventType, payload); werr != nil {
			return werr
		}
		r.lastActivity.Store(time.Now().UnixNano())
		if countItem {
			if r.items.Add(1) == 1 {
				if m := r.opts.Metrics; m != nil {
					m.ObserveFirstItemLatency(time.Since(r.started))
				}
			}
		}
		return nil
	})
	if err == nil {
		if m := r.opts.Metrics; m != nil {
			m.StreamEvents.WithLabelValues(r.opts.Endpoint, eventType).Inc()
		}
		if countItem {
			r.record(r.opts.SessionID, eventType, payload)
		}
	}
	return err
}

func (r *Relay) terminate(outcome string, payload any) {
	err := r.token.CloseGuard(func() error {
		return r.writer.WriteEvent(outcome, payload)
	})
	if err != nil {
		// Lost the close race (client abort) or the write failed; either way
		// the stream is closed and no further frames are attempted.
		if !errors.Is(err, ErrClosed) {
			log.Printf("stream %s: terminal %s frame write failed: %v", r.opts.SessionID, outcome, err)
		}
		return
	}
	r.record(r.opts.SessionID, outcome, payload)
	if m := r.opts.Metrics; m != nil {
		m.StreamEvents.WithLabelValues(r.opts.Endpoint, outcome).Inc()
		m.StreamOutcomes.WithLabelValues(r.opts.Endpoint, outcome).Inc()
	}
}

func (r *Relay) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.token.Done():
			return
		case <-ticker.C:
			// Best effort: write errors are swallowed, a closed token ends
			// the loop on the next select.
			if err := r.token.Guard(func() error { return r.writer.WritePing() }); err == nil {
				if m := r.opts.Metrics; m != nil {
					m.Heartbeats.WithLabelValues(r.opts.Endpoint).Inc()
				}
			}
		}
	}
}

func (r *Relay) donePayload() any {
	summary := Summary{Items: int(r.items.Load()), Processing: time.Since(r.started)}
	if r.opts.DonePayload != nil {
		return r.opts.DonePayload(summary)
	}
	return map[string]any{
		"type":             "done",
		"totalItems":       summary.Items,
		"processingTimeMs": summary.Processing.Milliseconds(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
}

func (r *Relay) errorPayload(err error) any {
	if r.opts.ErrorPayload != nil {
		return r.opts.ErrorPayload(err)
	}
	return map[string]any{
		"error":     err.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

func (r *Relay) record(sessionID, event string, payload any) {
	if r.opts.Sink == nil {
		return
	}
	// Recording is detached from the request context so a client abort does
	// not cancel the write mid-flight.
	r.opts.Sink.Record(context.Background(), event, sessionID, payload)
}
