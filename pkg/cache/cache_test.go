package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, opts...), mr
}

func TestEmbeddingRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	vector := []float32{0.1, 0.2, 0.3}
	store.SetEmbedding(ctx, "pump seal inspection", "embed-v1", vector)

	got, ok := store.GetEmbedding(ctx, "pump seal inspection", "embed-v1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != len(vector) {
		t.Fatalf("vector length %d, want %d", len(got), len(vector))
	}
	for i := range vector {
		if got[i] != vector[i] {
			t.Fatalf("vector[%d] = %f, want %f", i, got[i], vector[i])
		}
	}
}

func TestEmbeddingKeyedByModel(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	store.SetEmbedding(ctx, "same content", "model-a", []float32{1})

	if _, ok := store.GetEmbedding(ctx, "same content", "model-b"); ok {
		t.Fatal("different model must not share cache entries")
	}
}

func TestResultRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	type result struct {
		Answer string `json:"answer"`
	}
	store.SetResult(ctx, "hash-1", result{Answer: "42 hours"}, 0)

	var got result
	if !store.GetResult(ctx, "hash-1", &got) {
		t.Fatal("expected cache hit")
	}
	if got.Answer != "42 hours" {
		t.Fatalf("answer = %q", got.Answer)
	}
}

func TestTTLExpiry(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	store.SetResult(ctx, "hash-ttl", "value", time.Minute)

	mr.FastForward(2 * time.Minute)

	var got string
	if store.GetResult(ctx, "hash-ttl", &got) {
		t.Fatal("entry must expire after its TTL")
	}
}

func TestDefaultTTLApplied(t *testing.T) {
	store, mr := setupTestStore(t, WithDefaultTTL(time.Hour))
	ctx := context.Background()

	store.SetResult(ctx, "hash-default", "value", 0)

	mr.FastForward(30 * time.Minute)
	var got string
	if !store.GetResult(ctx, "hash-default", &got) {
		t.Fatal("entry expired before the default TTL")
	}

	mr.FastForward(time.Hour)
	if store.GetResult(ctx, "hash-default", &got) {
		t.Fatal("entry survived past the default TTL")
	}
}

func TestClearNamespace(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	store.SetEmbedding(ctx, "a", "m", []float32{1})
	store.SetEmbedding(ctx, "b", "m", []float32{2})
	store.SetResult(ctx, "hash-keep", "kept", 0)

	if n := store.Clear(ctx, NamespaceEmbedding); n != 2 {
		t.Fatalf("Clear removed %d keys, want 2", n)
	}

	if _, ok := store.GetEmbedding(ctx, "a", "m"); ok {
		t.Fatal("embedding survived Clear")
	}
	var got string
	if !store.GetResult(ctx, "hash-keep", &got) {
		t.Fatal("Clear crossed namespace boundaries")
	}
}

func TestRedisDownDegradesToMiss(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	store.SetEmbedding(ctx, "a", "m", []float32{1})
	mr.Close()

	if _, ok := store.GetEmbedding(ctx, "a", "m"); ok {
		t.Fatal("expected a miss while Redis is unreachable")
	}

	// writes must not panic or block
	store.SetEmbedding(ctx, "b", "m", []float32{2})
	if n := store.Clear(ctx, NamespaceEmbedding); n != 0 {
		t.Fatalf("Clear reported %d deletes while Redis is down", n)
	}
}

func TestNilClient(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	store.SetEmbedding(ctx, "a", "m", []float32{1})
	if _, ok := store.GetEmbedding(ctx, "a", "m"); ok {
		t.Fatal("nil client must always miss")
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatal("Ping must fail without a client")
	}
}
