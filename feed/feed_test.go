package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

const insertPayload = `{"type":"INSERT","table":"projects","record":{"id":"p1","title":"Logo","status":"To Do","created_at":"2024-05-01T10:00:00.123456+00:00"},"old_record":null,"commit_timestamp":"2024-05-01T10:00:00.2+00:00"}`

type collector struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (c *collector) handle(ev domain.ChangeEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) waitFor(t *testing.T, n int) []domain.ChangeEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := append([]domain.ChangeEvent(nil), c.events...)
		c.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d events", n)
	return nil
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(insertPayload), "projects")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != domain.ChangeInsert || ev.After.ID != "p1" || ev.After.Status != domain.StatusToDo {
		t.Fatalf("unexpected event %#v", ev)
	}
	if ev.CommitAt.IsZero() {
		t.Fatal("commit timestamp not parsed")
	}

	if _, err := Decode([]byte(insertPayload), "comments"); !errors.Is(err, ErrOtherTable) {
		t.Fatalf("expected ErrOtherTable, got %v", err)
	}
	if _, err := Decode([]byte(`{"type":"TRUNCATE","record":{"id":"x"}}`), ""); !errors.Is(err, ErrBadKind) {
		t.Fatalf("expected ErrBadKind, got %v", err)
	}
	if _, err := Decode([]byte(`{"type":"DELETE","record":null}`), ""); err == nil {
		t.Fatal("delete without old_record should fail")
	}
	if _, err := Decode([]byte(`not json`), ""); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBrokerFanOutAndUnsubscribe(t *testing.T) {
	b := NewBroker(nil)
	ctx := context.Background()

	var first, second collector
	stopFirst, _ := b.Subscribe(ctx, first.handle)
	stopSecond, _ := b.Subscribe(ctx, second.handle)

	b.Publish(domain.ChangeEvent{Kind: domain.ChangeInsert, After: &domain.Task{ID: "p1"}})
	first.waitFor(t, 1)
	second.waitFor(t, 1)

	stopFirst()
	stopFirst()
	deadline := time.Now().Add(time.Second)
	for b.Subscribers() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := b.Subscribers(); n != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", n)
	}

	b.Publish(domain.ChangeEvent{Kind: domain.ChangeDelete, Before: &domain.Task{ID: "p1"}})
	second.waitFor(t, 2)
	time.Sleep(20 * time.Millisecond)
	first.mu.Lock()
	defer first.mu.Unlock()
	if len(first.events) != 1 {
		t.Fatalf("unsubscribed handler received %d events", len(first.events))
	}
	stopSecond()
}

func TestRedisSubscriberDeliversChanges(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	src := NewRedis(rc, "realtime:projects", "projects", nil)
	var got collector
	stop, err := src.Subscribe(context.Background(), got.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if err := rc.Publish(context.Background(), "realtime:projects", "garbage").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev := domain.ChangeEvent{Kind: domain.ChangeUpdate, Table: "projects", After: &domain.Task{ID: "p2", Status: domain.StatusDone}}
	if err := src.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	events := got.waitFor(t, 1)
	if events[0].TaskID() != "p2" || events[0].After.Status != domain.StatusDone {
		t.Fatalf("unexpected event %#v", events[0])
	}
}

func TestSSESubscriberParsesDataLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, ": keep-alive\n\n")
		fmt.Fprintf(w, "data: %s\n\n", insertPayload)
		fmt.Fprintf(w, "data: {\"type\":\"DELETE\",\"table\":\"projects\",\"old_record\":{\"id\":\"p1\"}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	src := NewSSE(srv.URL, "secret", "projects", srv.Client(), nil)
	var got collector
	stop, err := src.Subscribe(context.Background(), got.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	events := got.waitFor(t, 2)
	stop()

	if events[0].Kind != domain.ChangeInsert || events[1].Kind != domain.ChangeDelete || events[1].TaskID() != "p1" {
		t.Fatalf("unexpected events %#v", events)
	}
}
