package usage

import (
	"context"
	"log"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
)

// Sink receives flushed usage batches.
type Sink interface {
	CreateBatch(ctx context.Context, records []models.TokenUsage) error
}

// Recorder buffers usage records and batch-inserts them in the background.
// Recording is fire-and-forget: a full buffer drops the record with a log
// line, and sink failures are logged, never propagated. Flushes run on
// their own context so an aborted request cannot cancel them.
type Recorder struct {
	sink       Sink
	records    chan models.TokenUsage
	batchSize  int
	flushEvery time.Duration
	done       chan struct{}
	stopped    chan struct{}
}

func NewRecorder(sink Sink, bufferSize, batchSize int, flushEvery time.Duration) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}

	r := &Recorder{
		sink:       sink,
		records:    make(chan models.TokenUsage, bufferSize),
		batchSize:  batchSize,
		flushEvery: flushEvery,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	go r.run()

	return r
}

// Record queues a usage row. Never blocks the caller.
func (r *Recorder) Record(record models.TokenUsage) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	select {
	case r.records <- record:
	default:
		log.Println("usage: buffer full, dropping usage record")
	}
}

// Close stops the worker, draining and flushing whatever is buffered.
func (r *Recorder) Close() {
	close(r.done)
	<-r.stopped
}

func (r *Recorder) run() {
	defer close(r.stopped)

	batch := make([]models.TokenUsage, 0, r.batchSize)
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case record := <-r.records:
			batch = append(batch, record)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = make([]models.TokenUsage, 0, r.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = make([]models.TokenUsage, 0, r.batchSize)
			}
		case <-r.done:
			for {
				select {
				case record := <-r.records:
					batch = append(batch, record)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []models.TokenUsage) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.sink.CreateBatch(ctx, batch); err != nil {
		log.Printf("usage: failed to insert %d usage records: %v", len(batch), err)
	}
}
