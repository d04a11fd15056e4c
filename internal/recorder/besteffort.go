package recorder

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/observability"
)

// BestEffort wraps a Store as a fire-and-forget sink: recording latency and
// failures never block or break the stream being recorded. Failures are
// logged and counted here, nowhere else.
type BestEffort struct {
	store   Store
	metrics *observability.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewBestEffort(store Store, metrics *observability.Metrics) *BestEffort {
	return &BestEffort{
		store:   store,
		metrics: metrics,
		timeout: 10 * time.Second,
	}
}

// Record persists the event asynchronously. Payloads implementing Keyed are
// deduplicated on (sessionID, stableKey).
func (b *BestEffort) Record(_ context.Context, event, sessionID string, payload any) {
	if b == nil || b.store == nil {
		return
	}

	var stableKey string
	if keyed, ok := payload.(Keyed); ok {
		stableKey = keyed.StableKey()
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			b.fail(sessionID, event, err)
			return
		}
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		err := b.store.SaveEvent(ctx, StreamRecord{
			SessionID: sessionID,
			Event:     event,
			StableKey: stableKey,
			Payload:   data,
		})
		if err != nil {
			b.fail(sessionID, event, err)
		}
	}()
}

// Flush waits for in-flight writes; used during shutdown and in tests.
func (b *BestEffort) Flush() {
	b.wg.Wait()
}

func (b *BestEffort) fail(sessionID, event string, err error) {
	log.Printf("recorder: drop %s for session %s: %v", event, sessionID, err)
	if b.metrics != nil {
		b.metrics.RecorderErrors.Inc()
	}
}
