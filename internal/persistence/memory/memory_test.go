package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/agenda/internal/persistence"
)

type recorder struct {
	mu      sync.Mutex
	changes []persistence.Change
}

func (r *recorder) handle(change persistence.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, change)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []persistence.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]persistence.Change, len(r.changes))
	copy(out, r.changes)
	return out
}

func TestContext_SetBroadcastsToSiblingsOnly(t *testing.T) {
	ctx := context.Background()
	scope := NewScope()
	writer := scope.Open()
	sibling := scope.Open()
	t.Cleanup(func() {
		_ = writer.Close()
		_ = sibling.Close()
	})

	var own, other recorder
	writer.OnChange("k", own.handle)
	sibling.OnChange("k", other.handle)

	if err := writer.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	writer.Sync()
	sibling.Sync()

	if got := own.snapshot(); len(got) != 0 {
		t.Fatalf("writer must not observe its own change, got %v", got)
	}
	got := other.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected one change on sibling, got %d", len(got))
	}
	if got[0].Value != "v1" || !got[0].Present || got[0].Origin != writer.ID() {
		t.Fatalf("unexpected change %+v", got[0])
	}

	value, ok, err := sibling.Get(ctx, "k")
	if err != nil || !ok || value != "v1" {
		t.Fatalf("sibling should read shared value, got %q %v %v", value, ok, err)
	}
}

func TestContext_PreservesWriteOrder(t *testing.T) {
	ctx := context.Background()
	scope := NewScope()
	writer := scope.Open()
	reader := scope.Open()
	t.Cleanup(func() {
		_ = writer.Close()
		_ = reader.Close()
	})

	var rec recorder
	reader.OnChange("k", rec.handle)

	for _, v := range []string{"a", "b", "c"} {
		if err := writer.Set(ctx, "k", v); err != nil {
			t.Fatalf("Set returned error: %v", err)
		}
	}
	reader.Sync()

	got := rec.snapshot()
	if len(got) != 3 || got[0].Value != "a" || got[1].Value != "b" || got[2].Value != "c" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestContext_DeleteAndEmit(t *testing.T) {
	ctx := context.Background()
	scope := NewScope()
	a := scope.Open()
	b := scope.Open()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	var rec recorder
	cancel := b.OnChange("k", rec.handle)

	_ = a.Set(ctx, "k", "v")
	if err := a.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := a.Emit(ctx, persistence.Change{Key: "other", Value: "x", Present: true, Origin: "spoofed"}); err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	b.Sync()

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected set and delete changes only, got %+v", got)
	}
	if got[1].Present {
		t.Fatalf("delete must broadcast an absent value")
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be removed")
	}

	cancel()
	cancel()
	_ = a.Set(ctx, "k", "after-cancel")
	b.Sync()
	if len(rec.snapshot()) != 2 {
		t.Fatalf("cancelled handler must not receive changes")
	}
}

func TestScope_Quota(t *testing.T) {
	ctx := context.Background()
	scope := NewScope(WithQuota(10))
	c := scope.Open()
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Set(ctx, "k", "12345"); err != nil {
		t.Fatalf("expected write within quota, got %v", err)
	}
	err := c.Set(ctx, "k", "123456789")
	if !errors.Is(err, persistence.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if value, _ := scope.Raw("k"); value != "12345" {
		t.Fatalf("failed write must leave prior value, got %q", value)
	}

	scope.SetQuota(0)
	if err := c.Set(ctx, "k", "123456789"); err != nil {
		t.Fatalf("expected unlimited write, got %v", err)
	}
}

func TestContext_Closed(t *testing.T) {
	ctx := context.Background()
	scope := NewScope()
	c := scope.Open()
	if err := c.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, persistence.ErrClosed) {
		t.Fatalf("expected ErrClosed from Get, got %v", err)
	}
	if err := c.Set(ctx, "k", "v"); !errors.Is(err, persistence.ErrClosed) {
		t.Fatalf("expected ErrClosed from Set, got %v", err)
	}
	c.Sync()
}
