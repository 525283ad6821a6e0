package obs

import (
	"context"
	"deadkm-service/internal/platform/metrics"
	"log"
	"time"
)

type ctxKey string

const (
	RequestIDKey ctxKey = "req_id"
	TaskIDKey    ctxKey = "task_id"
)

// WithTaskID tags ctx so timing lines can be correlated with a task.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// Time starts a timer for op and returns a func to be deferred with a pointer
// to the caller's named error result. It logs one line and observes the
// operation histogram.
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	reqID, _ := ctx.Value(RequestIDKey).(string)
	taskID, _ := ctx.Value(TaskIDKey).(string)

	return func(errp *error) {
		dur := time.Since(start)

		if errp != nil && *errp != nil {
			metrics.OperationDuration.WithLabelValues(name, "error").Observe(dur.Seconds())
			log.Printf("req_id=%s task_id=%s op=%s dur=%dms err=%v", reqID, taskID, name, dur.Milliseconds(), *errp)
			return
		}
		metrics.OperationDuration.WithLabelValues(name, "ok").Observe(dur.Seconds())
		log.Printf("req_id=%s task_id=%s op=%s dur=%dms", reqID, taskID, name, dur.Milliseconds())
	}
}
