package safego

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the logging goroutine and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	Go("noop", func() {
		defer wg.Done()
	})

	waitFor(t, &wg)
}

func TestGo_RecoversPanicWithContext(t *testing.T) {
	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var wg sync.WaitGroup
	wg.Add(1)

	// Must not crash the test process.
	Go("audit_log", func() {
		defer wg.Done()
		panic("boom")
	}, "tenant_id", "T1", "request_id", "req-1")

	waitFor(t, &wg)

	var entry map[string]any
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if line := bytes.TrimSpace(buf.Bytes()); len(line) > 0 {
			if err := json.Unmarshal(line, &entry); err != nil {
				t.Fatalf("log line is not JSON: %v", err)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if entry == nil {
		t.Fatal("panic was not logged")
	}

	for key, want := range map[string]string{"task": "audit_log", "panic": "boom", "tenant_id": "T1", "request_id": "req-1"} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %s", key, entry[key], want)
		}
	}
	if stack, _ := entry["stack"].(string); stack == "" {
		t.Error("stack missing from panic log")
	}
}
