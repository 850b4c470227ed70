package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/agenda/internal/persistence"
)

func openPair(t *testing.T, mutate func(*Config)) (*Medium, *Medium) {
	t.Helper()

	cfg := TestConfig(filepath.Join(t.TempDir(), "agenda.db"))
	if mutate != nil {
		mutate(&cfg)
	}

	ctx := context.Background()
	first, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open first medium: %v", err)
	}
	second, err := Open(ctx, cfg)
	if err != nil {
		_ = first.Close()
		t.Fatalf("failed to open second medium: %v", err)
	}

	t.Cleanup(func() {
		_ = first.Close()
		_ = second.Close()
	})
	return first, second
}

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

func TestMedium_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	a, b := openPair(t, nil)

	if _, ok, err := a.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := a.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := a.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}

	value, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || value != "v2" {
		t.Fatalf("sibling should read latest value, got %q %v %v", value, ok, err)
	}

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be removed")
	}
}

func TestMedium_PollDeliversSiblingChangesInOrder(t *testing.T) {
	ctx := context.Background()
	writer, reader := openPair(t, func(c *Config) { c.PollInterval = time.Hour })

	var rec recorder
	cancel := reader.OnChange("k", rec.handle)
	defer cancel()

	var own recorder
	cancelOwn := writer.OnChange("k", own.handle)
	defer cancelOwn()

	for _, v := range []string{"a", "b"} {
		if err := writer.Set(ctx, "k", v); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := writer.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := writer.Set(ctx, "other", "ignored"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := reader.Poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if err := writer.Poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	got := rec.snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 changes, got %+v", got)
	}
	if got[0].Value != "a" || got[1].Value != "b" || got[2].Present {
		t.Fatalf("unexpected change sequence %+v", got)
	}
	if got[0].Origin != writer.ID() {
		t.Fatalf("expected origin %s, got %s", writer.ID(), got[0].Origin)
	}
	if len(own.snapshot()) != 0 {
		t.Fatalf("writer must not observe its own changes")
	}

	if err := reader.Poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(rec.snapshot()) != 3 {
		t.Fatalf("changes must be delivered once")
	}
}

func TestMedium_ListenerStartsAtLogEnd(t *testing.T) {
	ctx := context.Background()
	writer, reader := openPair(t, func(c *Config) { c.PollInterval = time.Hour })

	if err := writer.Set(ctx, "k", "before"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var rec recorder
	cancel := reader.OnChange("k", rec.handle)
	defer cancel()

	if err := writer.Set(ctx, "k", "after"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := reader.Poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	got := rec.snapshot()
	if len(got) != 1 || got[0].Value != "after" {
		t.Fatalf("expected only the change after registration, got %+v", got)
	}
}

func TestMedium_WatcherDelivers(t *testing.T) {
	ctx := context.Background()
	writer, reader := openPair(t, nil)

	received := make(chan persistence.Change, 1)
	cancel := reader.OnChange("k", func(change persistence.Change) {
		select {
		case received <- change:
		default:
		}
	})
	defer cancel()

	if err := writer.Set(ctx, "k", "polled"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	select {
	case change := <-received:
		if change.Value != "polled" {
			t.Fatalf("unexpected change %+v", change)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not deliver change")
	}
}

func TestMedium_EmitDoesNotStore(t *testing.T) {
	ctx := context.Background()
	writer, reader := openPair(t, func(c *Config) { c.PollInterval = time.Hour })

	var rec recorder
	cancel := reader.OnChange("k", rec.handle)
	defer cancel()

	if err := writer.Emit(ctx, persistence.Change{Key: "k", Value: "signal", Present: true, Origin: "spoofed"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if err := reader.Poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	got := rec.snapshot()
	if len(got) != 1 || got[0].Value != "signal" || got[0].Origin != writer.ID() {
		t.Fatalf("unexpected emitted change %+v", got)
	}
	if _, ok, _ := reader.Get(ctx, "k"); ok {
		t.Fatalf("Emit must not store a value")
	}
}

func TestMedium_MaxValueBytes(t *testing.T) {
	ctx := context.Background()
	a, _ := openPair(t, func(c *Config) { c.MaxValueBytes = 8 })

	if err := a.Set(ctx, "k", "short"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	err := a.Set(ctx, "k", "much too long")
	if !errors.Is(err, persistence.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if value, _, _ := a.Get(ctx, "k"); value != "short" {
		t.Fatalf("failed write must keep prior value, got %q", value)
	}
}

func TestMedium_ChangeRetention(t *testing.T) {
	ctx := context.Background()
	a, _ := openPair(t, func(c *Config) { c.ChangeRetention = 2 })

	for _, v := range []string{"1", "2", "3", "4"} {
		if err := a.Set(ctx, "k", v); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	var count int
	if err := a.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM kv_changes`); err != nil {
		t.Fatalf("count changes: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 retained changes, got %d", count)
	}
}

func TestMedium_Closed(t *testing.T) {
	ctx := context.Background()
	a, _ := openPair(t, nil)

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, _, err := a.Get(ctx, "k"); !errors.Is(err, persistence.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	a, _ := openPair(t, nil)

	if err := migrate(ctx, a.db); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	versions, err := appliedVersions(ctx, a.db)
	if err != nil {
		t.Fatalf("appliedVersions failed: %v", err)
	}
	if len(versions) != len(migrations) {
		t.Fatalf("expected %d versions, got %v", len(migrations), versions)
	}
	for i, m := range migrations {
		if versions[i] != m.Version {
			t.Fatalf("expected version %s at %d, got %s", m.Version, i, versions[i])
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "empty path", mutate: func(c *Config) { c.Path = " " }, wantErr: true},
		{name: "bad journal", mutate: func(c *Config) { c.JournalMode = "FAST" }, wantErr: true},
		{name: "bad synchronous", mutate: func(c *Config) { c.Synchronous = "SOMETIMES" }, wantErr: true},
		{name: "zero poll", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: true},
		{name: "negative retention", mutate: func(c *Config) { c.ChangeRetention = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("agenda.db")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig("/tmp/agenda.db")
	cfg.MaxPageCount = 64

	dsn := cfg.DSN()
	for _, want := range []string{"file:/tmp/agenda.db?", "busy_timeout%285000%29", "journal_mode%28WAL%29", "max_page_count%2864%29", "_txlock=immediate"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("DSN %q missing %q", dsn, want)
		}
	}
}
