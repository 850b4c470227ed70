package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/example/agenda/internal/application"
	"github.com/example/agenda/internal/booking"
	"github.com/example/agenda/internal/calendar"
	"github.com/example/agenda/internal/persistence"
	httptransport "github.com/example/agenda/internal/http"
)

type app struct {
	store  *application.BookingStore
	tables *persistence.TableStore
	loc    *time.Location
	now    func() time.Time
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	httpAddr string
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `usage: agenda <command> [flags]

commands:
  book     -date YYYY-MM-DD -slot HH:MM -name NAME   book a slot
  days     [-n 7] [-slots]                          vacancies per day
  summary                                           upcoming bookings
  watch                                             print the summary on every change
  serve    [-addr :8080] [-booking-burst 5]         serve the JSON booking API`)
}

func (a *app) dispatch(ctx context.Context, args []string) int {
	switch args[0] {
	case "book":
		return a.runBook(ctx, args[1:])
	case "days":
		return a.runDays(ctx, args[1:])
	case "summary":
		return a.runSummary(ctx, args[1:])
	case "watch":
		return a.runWatch(ctx, args[1:])
	case "serve":
		return a.runServe(ctx, args[1:])
	case "help", "-h", "--help":
		printUsage(a.stdout)
		return exitOK
	default:
		fmt.Fprintf(a.stderr, "unknown command %q\n", args[0])
		printUsage(a.stderr)
		return exitUsage
	}
}

func (a *app) today() time.Time {
	return a.now().In(a.loc)
}

// snapshot reads the stored table once. One-shot commands skip Subscribe so
// no change listener is armed on the backend.
func (a *app) snapshot(ctx context.Context) booking.Table {
	return a.tables.Load(ctx)
}

func (a *app) runBook(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	date := fs.String("date", "", "day to book (YYYY-MM-DD)")
	slot := fs.String("slot", "", "time slot label")
	name := fs.String("name", "", "client name")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	req, err := booking.Request{Date: *date, Slot: *slot, ClientName: *name}.Validate(a.loc, a.today())
	if err != nil {
		a.logger.Warn("booking rejected", "date", *date, "slot", *slot, "error", err, "error_kind", application.ErrorKind(err))
		fmt.Fprintf(a.stderr, "cannot book: %v\n", err)
		return exitUsage
	}

	var (
		mu     sync.Mutex
		latest booking.Table
	)
	unsubscribe := a.store.Subscribe(ctx, func(t booking.Table) {
		mu.Lock()
		latest = t
		mu.Unlock()
	})
	defer unsubscribe()

	if err := a.store.WriteBooking(ctx, req.Date, req.Slot, req.ClientName); err != nil {
		fmt.Fprintf(a.stderr, "booking failed: %v\n", err)
		return exitError
	}

	mu.Lock()
	table := latest
	mu.Unlock()

	fmt.Fprintf(a.stdout, "booked %s %s for %s\n", req.Date, req.Slot, req.ClientName)
	day, _ := calendar.ParseDateKey(req.Date, a.loc)
	printDay(a.stdout, day, booking.ForDate(table, day, a.today()), true)
	return exitOK
}

func (a *app) runDays(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("days", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	n := fs.Int("n", 7, "number of days to show")
	showSlots := fs.Bool("slots", false, "list every slot")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *n <= 0 {
		fmt.Fprintln(a.stderr, "-n must be positive")
		return exitUsage
	}

	table := a.snapshot(ctx)
	now := a.today()
	for _, day := range calendar.Days(now, *n) {
		printDay(a.stdout, day, booking.ForDate(table, day, now), *showSlots)
	}
	return exitOK
}

func printDay(w io.Writer, day time.Time, availability booking.DayAvailability, showSlots bool) {
	status := fmt.Sprintf("%d free", availability.Vacancies)
	switch {
	case availability.Past:
		status = "past"
	case availability.Vacancies == 0:
		status = "full"
	}
	fmt.Fprintf(w, "%s %s  %s\n", calendar.DateKey(day), day.Weekday().String()[:3], status)

	if !showSlots {
		return
	}
	for _, s := range availability.Slots {
		if s.State == booking.SlotTaken {
			fmt.Fprintf(w, "  %s  %s  %s\n", s.Label, s.State, s.ClientName)
			continue
		}
		fmt.Fprintf(w, "  %s  %s\n", s.Label, s.State)
	}
}

func (a *app) runSummary(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	printSummary(a.stdout, booking.Upcoming(a.snapshot(ctx), calendar.DateKey(a.today())))
	return exitOK
}

func printSummary(w io.Writer, days []booking.DaySummary) {
	if len(days) == 0 {
		fmt.Fprintln(w, "no upcoming bookings")
		return
	}
	for _, day := range days {
		fmt.Fprintln(w, day.Date)
		for _, appt := range day.Appointments {
			fmt.Fprintf(w, "  %s  %s\n", appt.Slot, appt.ClientName)
		}
	}
}

func (a *app) runWatch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	unsubscribe := a.store.Subscribe(ctx, func(t booking.Table) {
		fmt.Fprintf(a.stdout, "-- %s\n", a.now().In(a.loc).Format(time.TimeOnly))
		printSummary(a.stdout, booking.Upcoming(t, calendar.DateKey(a.today())))
	})
	defer unsubscribe()

	a.logger.Info("watching for bookings")
	<-ctx.Done()
	return exitOK
}

func (a *app) runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	addr := fs.String("addr", a.httpAddr, "listen address")
	interval := fs.Duration("booking-interval", time.Second, "one booking token is refilled per interval and client")
	burst := fs.Int("booking-burst", 5, "bookings a client may make at once")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *interval <= 0 || *burst <= 0 {
		fmt.Fprintln(a.stderr, "-booking-interval and -booking-burst must be positive")
		return exitUsage
	}

	view := &httptransport.View{}
	detach := view.Attach(ctx, a.store)
	defer detach()

	events := httptransport.NewEventsHandler(view, a.loc, a.now, a.logger)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Bookings:       httptransport.NewBookingHandler(a.store, view, a.loc, a.now, a.logger),
		Events:         events,
		BookingLimiter: httptransport.NewRateLimiter(*interval, *burst),
		Logger:         a.logger,
		Middleware:     []func(http.Handler) http.Handler{httptransport.RequestLogger(a.logger)},
	})

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		a.logger.Error("failed to listen", "addr", *addr, "error", err)
		return exitError
	}

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(events.Close)

	// In-flight writes must finish before the storage context is closed.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	a.logger.Info("agenda API listening", "addr", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("server encountered error", "error", err)
		return exitError
	}
	<-drained
	return exitOK
}
