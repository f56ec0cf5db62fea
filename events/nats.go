package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/iqap-dev/iqap-runner/logger"
)

// NATSEmitter publishes run progress over NATS core subjects, one subject
// per run so observers can follow a single run.
type NATSEmitter struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        logger.Logger
}

// NATSConfig configures the NATS event emitter.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// NewNATSEmitter connects to NATS and returns an emitter. Reconnection is
// unbounded so a broker restart does not take the workers down with it.
func NewNATSEmitter(cfg NATSConfig, log logger.Logger) (*NATSEmitter, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("iqap-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "iqap.runs"
	}

	return &NATSEmitter{nc: nc, subjectPrefix: prefix, logger: log}, nil
}

// Subject returns the NATS subject carrying one run's events.
func (e *NATSEmitter) Subject(runID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", e.subjectPrefix, runID.String())
}

// Emit publishes one event on the run's subject.
func (e *NATSEmitter) Emit(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := e.nc.Publish(e.Subject(event.RunID), data); err != nil {
		e.logger.Warn(ctx, "failed to publish run event", map[string]interface{}{
			"error":  err.Error(),
			"run_id": event.RunID.String(),
			"type":   event.Type,
		})
		return err
	}
	return nil
}

// Subscribe delivers a run's events to the handler until the context ends.
func (e *NATSEmitter) Subscribe(ctx context.Context, runID uuid.UUID, handler func(Event)) (*nats.Subscription, error) {
	sub, err := e.nc.Subscribe(e.Subject(runID), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err == nil {
			handler(event)
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

// Close drains the connection.
func (e *NATSEmitter) Close() error {
	return e.nc.Drain()
}
