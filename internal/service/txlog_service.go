package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Santy1422/barcos-sub007/internal/model"
	"github.com/Santy1422/barcos-sub007/internal/pkg/logger"
	"github.com/Santy1422/barcos-sub007/internal/pkg/metrics"
)

// TxLogStore is the durable backend behind the service. Implementations
// must be safe for concurrent use.
type TxLogStore interface {
	Insert(ctx context.Context, entry *model.TxLogEntry) error
	List(ctx context.Context, filter model.ListFilter) ([]*model.TxLogEntry, int64, error)
	Stats(ctx context.Context, window time.Duration) (*model.Stats, error)
}

// queued wraps an entry on the async channel. Entries persisted
// synchronously by Append still pass through for the file sink only.
type queued struct {
	entry     *model.TxLogEntry
	skipStore bool
}

// TxLogService owns the capture pipeline's persistence. Record is
// fire-and-forget: the caller's response is never delayed or failed by
// it. Append is the awaited path used by the ingestion endpoint.
type TxLogService struct {
	logChan   chan queued
	logFile   *os.File
	buffer    *txLogBuffer
	store     TxLogStore
	retention time.Duration
}

func NewTxLogService(logDir string, store TxLogStore, retention time.Duration) (*TxLogService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	// 简单的按日轮转文件
	filename := filepath.Join(logDir, "txlog-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}

	svc := &TxLogService{
		logChan:   make(chan queued, 1000),
		logFile:   f,
		buffer:    newTxLogBuffer(1000),
		store:     store,
		retention: retention,
	}

	// 启动消费者 goroutine
	go svc.processEntries()

	return svc, nil
}

// Record hands an entry to the async pipeline. It never blocks and
// never returns an error: if the queue is full the entry is dropped
// and the drop is counted, so a burst cannot back-pressure responses.
func (s *TxLogService) Record(entry *model.TxLogEntry) {
	if entry == nil {
		return
	}
	s.buffer.Add(entry)
	metrics.CapturedTotal.WithLabelValues(string(entry.Source), entry.Module).Inc()
	select {
	case s.logChan <- queued{entry: entry}:
	default:
		// 队列满，丢弃以保护主流程
		metrics.DroppedTotal.Inc()
		logger.Warn("txlog queue full, dropping entry", "path", entry.Path)
	}
}

// Append persists an entry synchronously. This is the ingestion path:
// the write is the purpose of the call and its outcome is reported.
func (s *TxLogService) Append(ctx context.Context, entry *model.TxLogEntry) error {
	if entry == nil {
		return nil
	}
	s.buffer.Add(entry)
	metrics.CapturedTotal.WithLabelValues(string(entry.Source), entry.Module).Inc()

	if s.store != nil {
		if err := s.store.Insert(ctx, entry); err != nil {
			metrics.StoreErrors.WithLabelValues("primary").Inc()
			return err
		}
	}

	// 文件落盘仍走异步通道
	select {
	case s.logChan <- queued{entry: entry, skipStore: true}:
	default:
		metrics.DroppedTotal.Inc()
	}
	return nil
}

// List returns matching entries newest-first plus the total match count.
// Falls back to the in-memory ring when no store is configured or the
// store read fails.
func (s *TxLogService) List(ctx context.Context, filter model.ListFilter) ([]*model.TxLogEntry, int64, error) {
	filter.Normalize()
	if s.store != nil {
		entries, total, err := s.store.List(ctx, filter)
		if err == nil {
			return entries, total, nil
		}
		logger.Warn("txlog store list failed, serving from memory", "error", err.Error())
	}
	entries, total := s.buffer.List(filter, s.RetentionCutoff(time.Now()))
	return entries, total, nil
}

// Stats aggregates entries within the trailing window.
func (s *TxLogService) Stats(ctx context.Context, window time.Duration) (*model.Stats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if s.store != nil {
		stats, err := s.store.Stats(ctx, window)
		if err == nil {
			return stats, nil
		}
		logger.Warn("txlog store stats failed, serving from memory", "error", err.Error())
	}
	return model.Aggregate(s.buffer.Snapshot(), time.Now().Add(-window)), nil
}

// RetentionCutoff returns the oldest timestamp still considered live.
// Entries before it are expired even if the sweeper has not removed
// them yet.
func (s *TxLogService) RetentionCutoff(now time.Time) time.Time {
	return now.Add(-s.retention)
}

func (s *TxLogService) processEntries() {
	encoder := json.NewEncoder(s.logFile)
	for item := range s.logChan {
		if s.store != nil && !item.skipStore {
			if err := s.store.Insert(context.Background(), item.entry); err != nil {
				metrics.StoreErrors.WithLabelValues("primary").Inc()
				logger.Error("failed to persist txlog entry", "error", err.Error(), "path", item.entry.Path)
			}
		}
		if err := encoder.Encode(item.entry); err != nil {
			metrics.StoreErrors.WithLabelValues("file").Inc()
			logger.Error("failed to write txlog file", "error", err.Error())
		}
	}
}

// Close drains the channel and releases the file sink.
func (s *TxLogService) Close() {
	close(s.logChan)
	s.logFile.Close()
}

// txLogBuffer is a fixed-size ring of recent entries. It backs List and
// Stats when no durable store is wired, and keeps tests hermetic.
type txLogBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.TxLogEntry
	nextIndex int
}

func newTxLogBuffer(maxSize int) *txLogBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &txLogBuffer{
		maxSize: maxSize,
		records: make([]*model.TxLogEntry, 0, maxSize),
	}
}

func (b *txLogBuffer) Add(entry *model.TxLogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List walks the ring newest-first applying filter and the retention
// cutoff, then pages the result.
func (b *txLogBuffer) List(filter model.ListFilter, cutoff time.Time) ([]*model.TxLogEntry, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	matched := make([]*model.TxLogEntry, 0, filter.Limit)
	var total int64
	n := len(b.records)
	for i := 0; i < n; i++ {
		idx := (b.nextIndex + n - 1 - i) % n
		entry := b.records[idx]
		if entry == nil {
			continue
		}
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		if !filter.Matches(entry) {
			continue
		}
		total++
		matched = append(matched, entry)
	}

	start := (filter.Page - 1) * filter.Limit
	if start >= len(matched) {
		return []*model.TxLogEntry{}, total
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total
}

func (b *txLogBuffer) Snapshot() []*model.TxLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*model.TxLogEntry, 0, len(b.records))
	for _, entry := range b.records {
		if entry != nil {
			out = append(out, entry)
		}
	}
	return out
}
