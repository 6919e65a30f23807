package resultlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newPublisher(t *testing.T) (*RedisPublisher, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisPublisher(client, Config{Enabled: true, TTL: 60}), mr, client
}

func TestPublish_StoresStateWithTTL(t *testing.T) {
	p, mr, _ := newPublisher(t)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), RunResult{
		ReportID:   7,
		ReportName: "headcount",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		RowCount:   3,
	}, nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := p.Last(context.Background(), 7)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if got.Status != "success" || got.DurationMs != 1500 || got.RowCount != 3 {
		t.Errorf("unexpected state: %+v", got)
	}
	if ttl := mr.TTL("sqlassist:report:7:state"); ttl != 60*time.Second {
		t.Errorf("TTL = %v, want 60s", ttl)
	}
}

func TestPublish_FailedRunAndSubscribe(t *testing.T) {
	p, _, client := newPublisher(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, p.Channel(1))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := p.Publish(ctx, RunResult{ReportID: 1}, errors.New("connection refused")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != "sqlassist:report:1" {
			t.Errorf("channel = %q", msg.Channel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	got, err := p.Last(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "failed" || got.Error == nil || *got.Error != "connection refused" {
		t.Errorf("unexpected state: %+v", got)
	}
}

func TestLast_Missing(t *testing.T) {
	p, _, _ := newPublisher(t)
	if _, err := p.Last(context.Background(), 99); !errors.Is(err, redis.Nil) {
		t.Errorf("expected redis.Nil, got %v", err)
	}
}
