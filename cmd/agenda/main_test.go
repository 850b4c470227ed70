package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/agenda/internal/calendar"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AGENDA_STORAGE_DRIVER", "sqlite")
	t.Setenv("AGENDA_SQLITE_PATH", filepath.Join(t.TempDir(), "agenda.db"))
	t.Setenv("AGENDA_SQLITE_POLL_INTERVAL", "10ms")
	t.Setenv("AGENDA_WRITE_LATENCY", "0s")
	t.Setenv("AGENDA_TIMEZONE", "UTC")
	t.Setenv("AGENDA_LOG_LEVEL", "error")
	t.Setenv("AGENDA_STORAGE_KEY", "")
	t.Setenv("AGENDA_REDIS_ADDR", "")
	t.Setenv("AGENDA_HTTP_ADDR", "")
}

func runCommand(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr syncBuffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func futureKey(days int) string {
	return calendar.DateKey(time.Now().UTC().AddDate(0, 0, days))
}

func TestRun_BookThenSummary(t *testing.T) {
	setupEnv(t)
	date := futureKey(10)

	code, out, errOut := runCommand(t, "book", "-date", date, "-slot", "13:30", "-name", "  Bruna ")
	if code != exitOK {
		t.Fatalf("book exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, "booked "+date+" 13:30 for Bruna") {
		t.Fatalf("unexpected book output %q", out)
	}
	if !strings.Contains(out, "13:30  taken  Bruna") {
		t.Fatalf("expected the booked day to be printed, got %q", out)
	}

	code, out, errOut = runCommand(t, "summary")
	if code != exitOK {
		t.Fatalf("summary exited %d: %s", code, errOut)
	}
	for _, want := range []string{futureKey(2), "10:30  Ana", futureKey(5), "09:00  Sofia", date, "13:30  Bruna"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q in %q", want, out)
		}
	}
}

func TestRun_BookRejectsInvalidInput(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "blank name", args: []string{"-date", futureKey(1), "-slot", "08:00", "-name", "   "}, want: "client name is required"},
		{name: "unknown slot", args: []string{"-date", futureKey(1), "-slot", "07:00", "-name", "Ana"}, want: "slot is not part of the schedule"},
		{name: "bad date", args: []string{"-date", "tomorrow", "-slot", "08:00", "-name", "Ana"}, want: "date must be YYYY-MM-DD"},
		{name: "past day", args: []string{"-date", futureKey(-1), "-slot", "08:00", "-name", "Ana"}, want: "past days cannot be booked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCommand(t, append([]string{"book"}, tt.args...)...)
			if code != exitUsage {
				t.Fatalf("expected usage exit, got %d", code)
			}
			if !strings.Contains(errOut, tt.want) {
				t.Fatalf("expected %q in %q", tt.want, errOut)
			}
		})
	}

	_, out, _ := runCommand(t, "summary")
	if strings.Contains(out, futureKey(1)) {
		t.Fatalf("rejected bookings must not reach the store: %q", out)
	}
}

func TestRun_Days(t *testing.T) {
	setupEnv(t)
	date := futureKey(1)

	for _, slot := range calendar.TimeSlots() {
		if code, _, errOut := runCommand(t, "book", "-date", date, "-slot", slot, "-name", "Carla"); code != exitOK {
			t.Fatalf("book exited %d: %s", code, errOut)
		}
	}

	code, out, errOut := runCommand(t, "days", "-n", "3")
	if code != exitOK {
		t.Fatalf("days exited %d: %s", code, errOut)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out)
	}
	if !strings.HasPrefix(lines[0], futureKey(0)) || !strings.HasSuffix(lines[0], "8 free") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], date) || !strings.HasSuffix(lines[1], "full") {
		t.Fatalf("expected tomorrow to be full, got %q", lines[1])
	}

	if code, _, _ := runCommand(t, "days", "-n", "0"); code != exitUsage {
		t.Fatalf("expected usage exit for -n 0, got %d", code)
	}
}

func TestRun_Watch(t *testing.T) {
	setupEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"watch"}, &stdout, &stderr)
	}()

	waitFor(t, &stdout, "Sofia")

	date := futureKey(3)
	if code, _, errOut := runCommand(t, "book", "-date", date, "-slot", "17:00", "-name", "Dora"); code != exitOK {
		t.Fatalf("book exited %d: %s", code, errOut)
	}
	waitFor(t, &stdout, "17:00  Dora")

	cancel()
	select {
	case code := <-done:
		if code != exitOK {
			t.Fatalf("watch exited %d: %s", code, stderr.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func waitFor(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in %q", want, buf.String())
}

func TestRun_Usage(t *testing.T) {
	setupEnv(t)

	if code, _, errOut := runCommand(t); code != exitUsage || !strings.Contains(errOut, "usage: agenda") {
		t.Fatalf("expected usage for no args, got %d %q", code, errOut)
	}
	if code, _, errOut := runCommand(t, "cancel"); code != exitUsage || !strings.Contains(errOut, `unknown command "cancel"`) {
		t.Fatalf("expected unknown command, got %d %q", code, errOut)
	}
	if code, out, _ := runCommand(t, "help"); code != exitOK || !strings.Contains(out, "commands:") {
		t.Fatalf("expected help on stdout, got %d %q", code, out)
	}

	t.Setenv("AGENDA_STORAGE_DRIVER", "floppy")
	if code, _, errOut := runCommand(t, "summary"); code != exitError || !strings.Contains(errOut, "AGENDA_STORAGE_DRIVER") {
		t.Fatalf("expected configuration error, got %d %q", code, errOut)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestRun_Serve(t *testing.T) {
	setupEnv(t)
	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"serve", "-addr", addr}, &stdout, &stderr)
	}()

	date := futureKey(6)
	if code, _, errOut := runCommand(t, "book", "-date", date, "-slot", "08:00", "-name", "Elisa"); code != exitOK {
		t.Fatalf("book exited %d: %s", code, errOut)
	}

	var body string
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/summary")
		if err == nil {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			body = string(raw)
			if resp.StatusCode == http.StatusOK && strings.Contains(body, "Elisa") {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(body, `"clientName":"Elisa"`) {
		t.Fatalf("expected booking in summary, got %q (stderr %q)", body, stderr.String())
	}

	cancel()
	select {
	case code := <-done:
		if code != exitOK {
			t.Fatalf("serve exited %d: %s", code, stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}
