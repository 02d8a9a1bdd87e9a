package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c, err := s.Create(ctx, strPtr("refactor parser"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(c.ID) != 32 {
		t.Errorf("expected 32-char hex id, got %q", c.ID)
	}
	if c.CreatedAt.Location().String() != "UTC" {
		t.Errorf("expected UTC timestamp, got %s", c.CreatedAt.Location())
	}

	got, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title == nil || *got.Title != "refactor parser" {
		t.Errorf("unexpected title %v", got.Title)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Append(ctx, "missing", "user", "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append: expected ErrNotFound, got %v", err)
	}
	if _, err := s.List(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("List: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_AppendAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c, _ := s.Create(ctx, nil)

	if msgs, _ := s.List(ctx, c.ID); len(msgs) != 0 {
		t.Fatalf("expected empty conversation, got %d", len(msgs))
	}

	s.Append(ctx, c.ID, "user", "Explain this")
	s.Append(ctx, c.ID, "assistant", "It prints hello")

	msgs, err := s.List(ctx, c.ID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("unexpected order %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].ConversationID != c.ID {
		t.Errorf("expected conversation id %s, got %s", c.ID, msgs[0].ConversationID)
	}

	// List returns a copy.
	msgs[0].Content = "changed"
	again, _ := s.List(ctx, c.ID)
	if again[0].Content != "Explain this" {
		t.Error("expected stored messages to be unaffected by caller mutation")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c, _ := s.Create(ctx, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(ctx, c.ID, "user", "x")
			s.List(ctx, c.ID)
		}()
	}
	wg.Wait()

	msgs, _ := s.List(ctx, c.ID)
	if len(msgs) != 50 {
		t.Errorf("expected 50 messages, got %d", len(msgs))
	}
}
