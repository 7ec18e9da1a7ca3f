package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Worker relays stored events to the broker as CloudEvents JSON.
type Worker struct {
	Store       Queue
	Producer    Producer
	Interval    time.Duration
	BatchSize   int
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	Logger      *slog.Logger
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				if w.Logger != nil {
					w.Logger.Error("outbox claim failed", "worker", w.ID, "error", err)
				}
			}
		}
	}
}

func (w *Worker) drain(ctx context.Context) error {
	for i := 0; i < w.batchSize(); i++ {
		processed, err := w.processOnce(ctx)
		if err != nil || !processed {
			return err
		}
	}
	return nil
}

func (w *Worker) processOnce(ctx context.Context) (bool, error) {
	env, err := w.Store.Claim(ctx, w.workerID())
	if err != nil || env == nil {
		return false, err
	}
	topic := w.topicFor(env.Name)
	payload, headers, err := w.formatPayload(env)
	if err != nil {
		w.fail(ctx, env, err)
		return true, nil
	}
	if err := w.Producer.Publish(ctx, topic, env.Aggregate, payload, headers); err != nil {
		w.fail(ctx, env, err)
		return true, nil
	}
	if w.Logger != nil {
		w.Logger.Debug("outbox event published", "event", env.Name, "topic", topic, "aggregate", env.Aggregate)
	}
	return true, w.Store.MarkSent(ctx, env.ID)
}

func (w *Worker) fail(ctx context.Context, env *Envelope, cause error) {
	if w.Logger != nil {
		w.Logger.Warn("outbox publish failed", "event", env.Name, "attempts", env.Attempts+1, "error", cause)
	}
	if err := w.Store.MarkFailed(ctx, env.ID, w.nextRetry(env.Attempts), cause.Error()); err != nil && w.Logger != nil {
		w.Logger.Error("outbox mark failed", "event_id", env.ID, "error", err)
	}
}

func (w *Worker) formatPayload(env *Envelope) ([]byte, map[string]string, error) {
	if env.Headers == nil {
		env.Headers = map[string]string{}
	}
	data := map[string]any{}
	if err := json.Unmarshal(env.Payload, &data); err != nil {
		return nil, nil, err
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              env.ID,
		"type":            env.Name + ".v1",
		"source":          w.source(),
		"subject":         env.Aggregate,
		"time":            env.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := env.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
	}
	for k, v := range env.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

func (w *Worker) topicFor(name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	topic := base + ".events.v1"
	if w.TopicPrefix != "" {
		topic = w.TopicPrefix + topic
	}
	return topic
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return 50
	}
	return w.BatchSize
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://kisaanconnect"
}

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")
