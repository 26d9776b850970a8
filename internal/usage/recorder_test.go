package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/api-guard/internal/models"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]models.TokenUsage
}

func (s *captureSink) CreateBatch(ctx context.Context, records []models.TokenUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]models.TokenUsage, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *captureSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, batch := range s.batches {
		n += len(batch)
	}
	return n
}

func (s *captureSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func record(endpoint string) models.TokenUsage {
	return models.TokenUsage{
		TokenID:    uuid.New(),
		Endpoint:   endpoint,
		Method:     "GET",
		StatusCode: 200,
	}
}

func TestRecorderFlushesFullBatches(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, 100, 5, time.Hour)
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.Record(record("/v1/search"))
	}

	assert.Eventually(t, func() bool { return sink.total() == 5 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sink.batchCount())
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, 100, 50, 20*time.Millisecond)
	defer r.Close()

	r.Record(record("/v1/ping"))
	r.Record(record("/v1/ping"))

	assert.Eventually(t, func() bool { return sink.total() == 2 }, time.Second, 10*time.Millisecond)
}

func TestRecorderCloseDrains(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, 100, 50, time.Hour)

	for i := 0; i < 7; i++ {
		r.Record(record("/v1/search"))
	}

	r.Close()

	assert.Equal(t, 7, sink.total(), "pending records must be flushed on shutdown")
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, 1, 50, time.Hour)

	// Overfill well past the buffer; Record must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			r.Record(record("/v1/search"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	r.Close()
	assert.LessOrEqual(t, sink.total(), 100)
}

func TestRecorderStampsMissingTimestamps(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, 10, 1, time.Hour)

	r.Record(models.TokenUsage{TokenID: uuid.New(), Endpoint: "/v1/ping", Method: "GET", StatusCode: 200})

	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.False(t, sink.batches[0][0].Timestamp.IsZero())
}
