package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"drill-service/internal/domain"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, DefaultExchange, nil)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	event := domain.Event{
		Type:          domain.EventAttemptCompleted,
		AttemptID:     "a1",
		UserID:        "u1",
		DrillID:       "fire-1",
		DrillType:     domain.DrillFire,
		AttemptNumber: 2,
		Score:         90,
		Passed:        true,
		PointsAwarded: 50,
		OccurredAt:    now,
	}
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != DefaultExchange || got.key != "drill.attempt.completed" {
		t.Fatalf("unexpected routing %s/%s", got.exchange, got.key)
	}
	if got.msg.DeliveryMode != amqp.Persistent || got.msg.ContentType != "application/json" {
		t.Fatalf("unexpected message properties %+v", got.msg)
	}
	if got.msg.Headers["drill_id"] != "fire-1" || !got.msg.Timestamp.Equal(now) {
		t.Fatalf("unexpected headers %+v", got.msg.Headers)
	}

	var decoded domain.Event
	if err := json.Unmarshal(got.msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.AttemptID != "a1" || decoded.Score != 90 || decoded.PointsAwarded != 50 {
		t.Fatalf("unexpected body %+v", decoded)
	}
}

func TestPublishWrapsChannelError(t *testing.T) {
	boom := errors.New("channel closed")
	p := newPublisher(&fakeChannel{err: boom}, DefaultExchange, nil)
	err := p.Publish(context.Background(), domain.Event{Type: domain.EventAttemptStarted})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped channel error, got %v", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, DefaultExchange, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ch.closed {
		t.Fatalf("expected channel closed")
	}
}
