package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/valuejourney/internal/metrics"
	syncx "github.com/mind-engage/valuejourney/internal/sync"
)

const outboxType = "leaderboard.submit"

// Outbox keeps failed submissions for later delivery.
type Outbox interface {
	Append(ctx context.Context, e syncx.Event) error
	Pending(ctx context.Context, typ string, limit int) ([]syncx.Event, error)
	MarkDone(ctx context.Context, seq int64) error
	MarkFailed(ctx context.Context, seq int64, cause error) error
}

// Publisher fans entries out to every sink. A failing sink never stops the
// others; its submission is parked in the outbox when one is configured.
type Publisher struct {
	sinks   []Sink
	outbox  Outbox
	log     *zap.Logger
	metrics *metrics.Metrics
}

type PublisherOption func(*Publisher)

func WithOutbox(o Outbox) PublisherOption {
	return func(p *Publisher) { p.outbox = o }
}

func WithLogger(l *zap.Logger) PublisherOption {
	return func(p *Publisher) { p.log = l }
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

func NewPublisher(sinks []Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sinks: sinks, log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

type parked struct {
	Sink  string `json:"sink"`
	Entry Entry  `json:"entry"`
}

// Publish submits e to every sink and returns the joined sink errors.
func (p *Publisher) Publish(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range p.sinks {
		err := s.Submit(ctx, e)
		if err == nil {
			continue
		}
		p.metrics.SubmissionFailed(s.Name())
		p.log.Warn("submission failed",
			zap.String("sink", s.Name()),
			zap.String("entry_id", e.ID),
			zap.String("level", e.Level),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		p.park(ctx, s.Name(), e, err)
	}
	return errors.Join(errs...)
}

func (p *Publisher) park(ctx context.Context, sink string, e Entry, cause error) {
	if p.outbox == nil {
		return
	}
	data, err := json.Marshal(parked{Sink: sink, Entry: e})
	if err == nil {
		err = p.outbox.Append(ctx, syncx.Event{
			Type:      outboxType,
			Key:       e.ID,
			DataJSON:  string(data),
			LastError: cause.Error(),
		})
	}
	if err != nil {
		p.log.Error("outbox append failed", zap.String("entry_id", e.ID), zap.Error(err))
	}
}

func (p *Publisher) sink(name string) Sink {
	for _, s := range p.sinks {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Replay retries up to limit parked submissions and reports how many were
// delivered.
func (p *Publisher) Replay(ctx context.Context, limit int) (int, error) {
	if p.outbox == nil {
		return 0, nil
	}
	events, err := p.outbox.Pending(ctx, outboxType, limit)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, ev := range events {
		var pk parked
		if err := json.Unmarshal([]byte(ev.DataJSON), &pk); err != nil {
			_ = p.outbox.MarkFailed(ctx, ev.Seq, err)
			continue
		}
		s := p.sink(pk.Sink)
		if s == nil {
			_ = p.outbox.MarkFailed(ctx, ev.Seq, fmt.Errorf("sink %q not configured", pk.Sink))
			continue
		}
		if err := s.Submit(ctx, pk.Entry); err != nil {
			p.metrics.SubmissionFailed(s.Name())
			_ = p.outbox.MarkFailed(ctx, ev.Seq, err)
			continue
		}
		if err := p.outbox.MarkDone(ctx, ev.Seq); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// Run replays the outbox every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) error {
	if p.outbox == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := p.Replay(ctx, 50)
			if err != nil && ctx.Err() == nil {
				p.log.Warn("outbox replay failed", zap.Error(err))
			}
			if n > 0 {
				p.log.Info("outbox replayed", zap.Int("delivered", n))
			}
		}
	}
}
