package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/events"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/sethvargo/go-retry"
)

const (
	defaultPublishTimeout = 5 * time.Second
	duplicateWindow       = 10 * time.Minute
	maxPublishRetries     = 4
)

// publisher is the subset of jetstream.JetStream used for publishing.
type publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamEmitter implements events.EventEmitter on a JetStream stream.
type JetStreamEmitter struct {
	js             publisher
	conn           *nats.Conn
	subjectPrefix  string
	publishTimeout time.Duration
	backoff        func() retry.Backoff
	logger         *slog.Logger
}

var _ events.EventEmitter = (*JetStreamEmitter)(nil)

// Connect dials NATS, ensures the event stream exists and returns an emitter
// publishing to it.
func Connect(ctx context.Context, cfg config.EventsConfig, log *slog.Logger) (*JetStreamEmitter, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "natsbus"))

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("genflow"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Duplicates: duplicateWindow,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	log.Info("connected to event stream",
		slog.String("stream", cfg.Stream),
		slog.String("subject_prefix", cfg.SubjectPrefix))

	e := newEmitter(js, cfg, log)
	e.conn = nc
	return e, nil
}

func newEmitter(js publisher, cfg config.EventsConfig, log *slog.Logger) *JetStreamEmitter {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &JetStreamEmitter{
		js:             js,
		subjectPrefix:  cfg.SubjectPrefix,
		publishTimeout: timeout,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(100 * time.Millisecond)
			b = retry.WithCappedDuration(time.Second, b)
			b = retry.WithMaxDuration(timeout, b)
			return retry.WithMaxRetries(maxPublishRetries, b)
		},
		logger: log,
	}
}

// Subject returns the subject an event type is published on.
func (e *JetStreamEmitter) Subject(eventType string) string {
	return e.subjectPrefix + "." + eventType
}

// EmitEvent publishes the event, retrying transient failures. The publish
// timeout bounds the whole call, retries included, so callers on a request
// path are delayed by at most that long.
func (e *JetStreamEmitter) EmitEvent(ctx context.Context, event *events.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	log := logger.FromContextOrDefault(ctx, e.logger)

	ctx, cancel := context.WithTimeout(ctx, e.publishTimeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	msg := nats.NewMsg(e.Subject(event.Type))
	msg.Data = data
	msg.Header.Set(jetstream.MsgIDHeader, event.ID.String())

	attempt := 0
	err = retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		attempt++
		ack, err := e.js.PublishMsg(ctx, msg)
		if err != nil {
			if isTransient(err) && ctx.Err() == nil {
				log.Warn("event publish failed, retrying",
					slog.String("event_id", event.ID.String()),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
				return retry.RetryableError(err)
			}
			return err
		}
		if ack != nil && ack.Duplicate {
			log.Debug("event already published",
				slog.String("event_id", event.ID.String()),
				slog.String("stream", ack.Stream))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", event.Type, event.CorrelationID, err)
	}

	log.Debug("event published",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type),
		slog.String("correlation_id", event.CorrelationID.String()))
	return nil
}

// Close drains the underlying connection.
func (e *JetStreamEmitter) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Drain()
}

func isTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, jetstream.ErrNoStreamResponse)
}
