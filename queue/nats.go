package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/iqap-dev/iqap-runner/internal/uuidutil"
	"github.com/iqap-dev/iqap-runner/logger"
)

// NATSQueue dispatches runs over a NATS subject with a queue group, so a
// pool of workers shares the stream.
type NATSQueue struct {
	nc      *nats.Conn
	subject string
	group   string
	logger  logger.Logger
}

// NATSConfig configures the NATS dispatch queue.
type NATSConfig struct {
	URL     string
	Subject string
	Group   string
}

// NewNATSQueue connects to NATS and returns a dispatch queue.
func NewNATSQueue(cfg NATSConfig, log logger.Logger) (*NATSQueue, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("iqap-dispatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "iqap.dispatch"
	}
	group := cfg.Group
	if group == "" {
		group = "iqap-workers"
	}

	return &NATSQueue{nc: nc, subject: subject, group: group, logger: log}, nil
}

// Publish enqueues a run for execution.
func (q *NATSQueue) Publish(ctx context.Context, runID uuid.UUID) error {
	if err := q.nc.Publish(q.subject, []byte(runID.String())); err != nil {
		q.logger.Error(ctx, "failed to dispatch run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": runID.String(),
		})
		return err
	}
	return nil
}

// Subscribe joins the worker queue group and feeds dispatched runs to the
// handler. Malformed messages are dropped with a log line rather than
// poisoning the stream.
func (q *NATSQueue) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := q.nc.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		runID, err := uuidutil.Parse(string(msg.Data))
		if err != nil {
			q.logger.Warn(ctx, "dropping malformed dispatch message", map[string]interface{}{
				"error": err.Error(),
				"data":  string(msg.Data),
			})
			return
		}
		if err := handler(ctx, runID); err != nil {
			q.logger.Error(ctx, "run handler failed", map[string]interface{}{
				"error":  err.Error(),
				"run_id": runID.String(),
			})
		}
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()

	return nil
}

// Close drains the connection.
func (q *NATSQueue) Close() error {
	return q.nc.Drain()
}
