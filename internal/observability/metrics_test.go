package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/appeals/:id/claim", "POST", 200, 15*time.Millisecond)
	m.RecordRequest("/appeals/:id/claim", "POST", 200, 5*time.Millisecond)
	m.RecordError("/appeals/:id/claim", "POST", "ALREADY_OWNED")
	m.RecordTransition("claim", "new", "in_progress")
	m.RecordCheck("overdue", "fired")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/appeals/:id/claim|POST|200"])
	assert.Equal(t, int64(20), snap.LatencyTotalMs["/appeals/:id/claim|POST|200"])
	assert.Equal(t, int64(1), snap.Errors["/appeals/:id/claim|POST|ALREADY_OWNED"])
	assert.Equal(t, int64(1), snap.Transitions["claim|new|in_progress"])
	assert.Equal(t, int64(1), snap.Checks["overdue|fired"])
}

func TestMetricsConcurrentRecording(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordTransition("delegate", "in_progress", "in_progress")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), m.Snapshot().Transitions["delegate|in_progress|in_progress"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCheck("overdue", "skipped")
	assert.Empty(t, m.Snapshot().Checks)
}
