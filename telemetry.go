package coroutine

import (
	"context"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// taskCompletionRecord is one event submitted to the telemetry batcher
// each time a task finishes, successfully or otherwise.
type taskCompletionRecord struct {
	taskID   uint64
	duration time.Duration
	panicked bool
}

// telemetry batches taskCompletionRecord events with
// github.com/joeycumines/go-microbatch before handing them to the Logger,
// trading a small amount of latency (bounded by FlushInterval) for far
// fewer log calls under high task throughput — the same batching trade
// spec.md's charter makes for submission batching in the Reactor, applied
// here to the logging path instead of the I/O path.
type telemetry struct {
	batcher *microbatch.Batcher[taskCompletionRecord]
}

func newTelemetry(logger *Logger) *telemetry {
	return &telemetry{
		batcher: microbatch.NewBatcher(
			&microbatch.BatcherConfig{
				MaxSize:        64,
				FlushInterval:  20 * time.Millisecond,
				MaxConcurrency: 1,
			},
			func(ctx context.Context, jobs []taskCompletionRecord) error {
				var panicked int
				var total time.Duration
				for _, j := range jobs {
					total += j.duration
					if j.panicked {
						panicked++
					}
				}
				logger.Debug().
					Int(`count`, len(jobs)).
					Int(`panicked`, panicked).
					Int64(`total_ns`, total.Nanoseconds()).
					Log(`task completion batch`)
				return nil
			},
		),
	}
}

// record submits a completion event, best-effort: telemetry is diagnostic
// only, so a full batcher (Submit returning an error) is dropped rather
// than blocking the task that is trying to finish.
func (t *telemetry) record(rec taskCompletionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, _ = t.batcher.Submit(ctx, rec)
}

func (t *telemetry) close() {
	_ = t.batcher.Close()
}
