package stream

import (
	"errors"
	"sync"
	"testing"
)

func TestTokenFirstCloseWins(t *testing.T) {
	tok := NewToken()
	if !tok.Close() {
		t.Fatal("first Close() = false, want true")
	}
	if tok.Close() {
		t.Fatal("second Close() = true, want false")
	}
	if !tok.Closed() {
		t.Fatal("Closed() = false after Close")
	}
	select {
	case <-tok.Done():
	default:
		t.Fatal("Done() channel not closed after Close")
	}
}

func TestTokenGuardRejectsAfterClose(t *testing.T) {
	tok := NewToken()
	ran := false
	if err := tok.Guard(func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Guard() before close error = %v", err)
	}
	if !ran {
		t.Fatal("Guard() did not run fn while open")
	}

	tok.Close()
	if err := tok.Guard(func() error { t.Fatal("fn ran after close"); return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("Guard() after close error = %v, want ErrClosed", err)
	}
}

func TestTokenCloseGuardRunsExactlyOnce(t *testing.T) {
	tok := NewToken()
	var mu sync.Mutex
	runs := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tok.CloseGuard(func() error {
				mu.Lock()
				runs++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if runs != 1 {
		t.Fatalf("CloseGuard ran %d times, want 1", runs)
	}
}

func TestTokenGuardNeverOverlapsClose(t *testing.T) {
	// Race Guard emissions against Close; a Guard running after the close has
	// completed must see ErrClosed.
	for i := 0; i < 200; i++ {
		tok := NewToken()
		closed := make(chan struct{})
		go func() {
			tok.Close()
			close(closed)
		}()

		<-closed
		if err := tok.Guard(func() error { return nil }); !errors.Is(err, ErrClosed) {
			t.Fatalf("Guard() after observed close error = %v, want ErrClosed", err)
		}
	}
}
