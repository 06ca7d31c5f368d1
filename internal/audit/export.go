// Package audit records tenant audit entries. Every entry is written to the audit_logs table;
// configured sinks (a JSON-lines file, a webhook) receive a copy so the trail can be fed to a
// log aggregator independently of the database.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dealer-crm/crm-backend/internal/config"
	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/dealer-crm/crm-backend/internal/safego"
)

// Sink receives a copy of each persisted audit entry.
type Sink interface {
	Name() string
	Export(ctx context.Context, entry *models.AuditLog) error
	Close() error
}

// NewSinks builds the sinks enabled in cfg. A file sink is enabled by a path, a webhook sink by
// a URL.
func NewSinks(cfg config.AuditConfig) ([]Sink, error) {
	var sinks []Sink
	if cfg.File.Path != "" {
		fs, err := NewFileSink(cfg.File)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, NewWebhookSink(cfg.Webhook))
	}
	return sinks, nil
}

// WebhookSink posts audit entries as JSON. With a batch size it posts JSON arrays, flushed when
// the batch fills, on the flush interval, and on Close.
type WebhookSink struct {
	cfg       config.AuditWebhookConfig
	client    *http.Client
	batchCh   chan *models.AuditLog
	batch     []*models.AuditLog
	batchMu   sync.Mutex
	closeCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebhookSink creates a webhook sink and, when batching, starts its flush loop.
func NewWebhookSink(cfg config.AuditWebhookConfig) *WebhookSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	ws := &WebhookSink{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		batchCh: make(chan *models.AuditLog, 1000),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.BatchSize > 0 {
		safego.Go("audit_webhook_flush", ws.processBatches)
	} else {
		close(ws.done)
	}
	return ws
}

// Name implements Sink.
func (ws *WebhookSink) Name() string { return "webhook" }

func (ws *WebhookSink) processBatches() {
	defer close(ws.done)
	ticker := time.NewTicker(ws.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-ws.batchCh:
			ws.batchMu.Lock()
			ws.batch = append(ws.batch, entry)
			if len(ws.batch) >= ws.cfg.BatchSize {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ticker.C:
			ws.batchMu.Lock()
			ws.flushBatch()
			ws.batchMu.Unlock()
		case <-ws.closeCh:
			// Drain what was queued before Close.
			ws.batchMu.Lock()
			for len(ws.batchCh) > 0 {
				ws.batch = append(ws.batch, <-ws.batchCh)
			}
			ws.flushBatch()
			ws.batchMu.Unlock()
			return
		}
	}
}

// flushBatch posts the pending batch. Callers hold batchMu.
func (ws *WebhookSink) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}
	n := len(ws.batch)

	data, err := json.Marshal(ws.batch)
	ws.batch = ws.batch[:0]
	if err != nil {
		slog.Error("failed to encode audit batch", "error", err, "entries", n)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.cfg.Timeout)
	defer cancel()
	if err := ws.post(ctx, data); err != nil {
		slog.Error("failed to export audit batch", "sink", ws.Name(), "error", err, "entries", n)
	}
}

// Export implements Sink. A batched entry is queued; when the queue is full it is sent
// immediately instead of being dropped.
func (ws *WebhookSink) Export(ctx context.Context, entry *models.AuditLog) error {
	if ws.cfg.BatchSize > 0 {
		select {
		case ws.batchCh <- entry:
			return nil
		default:
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	return ws.post(ctx, data)
}

func (ws *WebhookSink) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes any batched entries and stops the flush loop.
func (ws *WebhookSink) Close() error {
	ws.closeOnce.Do(func() { close(ws.closeCh) })
	<-ws.done
	return nil
}

// FileSink appends audit entries to a file, one JSON object per line, rotating it to
// path.1 ... path.N once it exceeds MaxSizeMB.
type FileSink struct {
	cfg  config.AuditFileConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileSink opens (or creates) the audit file for appending.
func NewFileSink(cfg config.AuditFileConfig) (*FileSink, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileSink{cfg: cfg, file: file}, nil
}

// Name implements Sink.
func (fs *FileSink) Name() string { return "file" }

// Export implements Sink.
func (fs *FileSink) Export(_ context.Context, entry *models.AuditLog) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (fs *FileSink) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", fs.cfg.Path, i), fmt.Sprintf("%s.%d", fs.cfg.Path, i+1))
	}
	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the file.
func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
