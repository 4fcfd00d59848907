package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsFetched           int64
	SourcesFailed          int64
	DuplicatesFiltered     int64
	ItemsClassified        int64
	ClassifyBatchFailures  int64
	TranslateBatchFailures int64
	ItemsPersisted         int64

	// Timings
	LastRunDuration    time.Duration
	TotalRunDuration   time.Duration
	AverageRunDuration time.Duration
	RunCount           int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddItemsFetched(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += n
}

func (m *Metrics) IncrementSourcesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SourcesFailed++
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) AddItemsClassified(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsClassified += n
}

func (m *Metrics) IncrementClassifyBatchFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClassifyBatchFailures++
}

func (m *Metrics) IncrementTranslateBatchFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranslateBatchFailures++
}

func (m *Metrics) AddItemsPersisted(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsPersisted += n
}

func (m *Metrics) RecordRunDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRunDuration = duration
	m.TotalRunDuration += duration
	m.RunCount++

	if m.RunCount > 0 {
		m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.RunCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_fetched":            m.ItemsFetched,
		"sources_failed":           m.SourcesFailed,
		"duplicates_filtered":      m.DuplicatesFiltered,
		"items_classified":         m.ItemsClassified,
		"classify_batch_failures":  m.ClassifyBatchFailures,
		"translate_batch_failures": m.TranslateBatchFailures,
		"items_persisted":          m.ItemsPersisted,
		"last_run_duration_ms":     m.LastRunDuration.Milliseconds(),
		"average_run_duration_ms":  m.AverageRunDuration.Milliseconds(),
		"last_run_time":            m.LastRunTime.Format(time.RFC3339),
		"last_error_time":          m.LastErrorTime.Format(time.RFC3339),
		"last_error":               m.LastError,
		"is_healthy":               m.IsHealthy,
	}
}
