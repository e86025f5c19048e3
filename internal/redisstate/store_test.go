package redisstate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	if got := Key("phishing"); got != "mailpoll:cursor:phishing" {
		t.Errorf("Key() = %q", got)
	}
}

func TestUnreachableServerFails(t *testing.T) {
	s := NewWithClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if _, err := s.LoadState(ctx, "phishing"); err == nil {
		t.Error("LoadState() succeeded without a server")
	}
	if err := s.PersistState(ctx, "phishing", []byte("{}")); err == nil {
		t.Error("PersistState() succeeded without a server")
	}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("MAILPOLL_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	s := New(Options{Addr: addr, DB: 15})
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	return s
}

func TestStateRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := "roundtrip-" + uuid.NewString()
	t.Cleanup(func() { s.DeleteState(context.Background(), key) })

	got, err := s.LoadState(ctx, key)
	if err != nil || got != nil {
		t.Fatalf("LoadState(absent) = %q, %v", got, err)
	}

	state := []byte(`{"folderName":"Inbox","ids":["m1"]}`)
	if err := s.PersistState(ctx, key, state); err != nil {
		t.Fatal(err)
	}
	if got, err = s.LoadState(ctx, key); err != nil || string(got) != string(state) {
		t.Fatalf("LoadState() = %q, %v", got, err)
	}

	if err := s.PersistState(ctx, key, []byte(`{"folderName":"Inbox","ids":[]}`)); err != nil {
		t.Fatal(err)
	}
	if got, _ = s.LoadState(ctx, key); string(got) != `{"folderName":"Inbox","ids":[]}` {
		t.Errorf("state not replaced: %q", got)
	}

	if err := s.DeleteState(ctx, key); err != nil {
		t.Fatal(err)
	}
	if got, err = s.LoadState(ctx, key); err != nil || got != nil {
		t.Errorf("LoadState(deleted) = %q, %v", got, err)
	}
}
