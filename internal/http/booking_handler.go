package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/agenda/internal/application"
	"github.com/example/agenda/internal/booking"
	"github.com/example/agenda/internal/calendar"
)

const (
	defaultDays = 7
	maxDays     = 366
)

type BookingHandler struct {
	store     bookingStore
	view      *View
	loc       *time.Location
	now       func() time.Time
	responder responder
}

// NewBookingHandler serves bookings from view and writes them through store.
// view must already be attached to store.
func NewBookingHandler(store bookingStore, view *View, loc *time.Location, now func() time.Time, logger *slog.Logger) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &BookingHandler{store: store, view: view, loc: loc, now: now, responder: newResponder(logger)}
}

func (h *BookingHandler) today() time.Time {
	return h.now().In(h.loc)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.store == nil || h.view == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.route(r.Context(), "POST /bookings", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	now := h.today()
	valid, err := req.toRequest().Validate(h.loc, now)
	if err != nil {
		h.responder.route(r.Context(), "POST /bookings", "date", req.Date, "slot", req.Slot, "error_kind", application.ErrorKind(err)).WarnContext(r.Context(), "booking rejected", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.responder.route(r.Context(), "POST /bookings", "date", valid.Date, "slot", valid.Slot)
	if err := h.store.WriteBooking(r.Context(), valid.Date, valid.Slot, valid.ClientName); err != nil {
		logger.ErrorContext(r.Context(), "booking write failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking written")
	day, _ := calendar.ParseDateKey(valid.Date, h.loc)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, dayResponse{Day: toDayDTO(day, booking.ForDate(h.view.Table(), day, now))})
}

func (h *BookingHandler) ListDays(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.view == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	n := defaultDays
	if raw := strings.TrimSpace(r.URL.Query().Get("n")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxDays {
			h.responder.route(r.Context(), "GET /days", "error_kind", "bad_request").WarnContext(r.Context(), "invalid day count", "n", raw)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDays)
			return
		}
		n = parsed
	}

	now := h.today()
	table := h.view.Table()
	days := calendar.Days(now, n)
	dtos := make([]dayDTO, 0, len(days))
	for _, day := range days {
		dtos = append(dtos, toDayDTO(day, booking.ForDate(table, day, now)))
	}

	h.responder.route(r.Context(), "GET /days", "result_count", len(dtos)).DebugContext(r.Context(), "days listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listDaysResponse{Days: dtos})
}

func (h *BookingHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.view == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	date, _ := DateFromContext(r.Context())
	day, err := calendar.ParseDateKey(date, h.loc)
	if err != nil {
		h.responder.route(r.Context(), "GET /days/{date}", "date", date, "error_kind", "bad_request").WarnContext(r.Context(), "invalid date key", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, dayResponse{Day: toDayDTO(day, booking.ForDate(h.view.Table(), day, h.today()))})
}

func (h *BookingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.view == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	days := booking.Upcoming(h.view.Table(), calendar.DateKey(h.today()))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, summaryResponse{Days: toSummaryDTOs(days)})
}

type bookingRequest struct {
	Date       string `json:"date"`
	Slot       string `json:"slot"`
	ClientName string `json:"clientName"`
}

func (r bookingRequest) toRequest() booking.Request {
	return booking.Request{
		Date:       strings.TrimSpace(r.Date),
		Slot:       strings.TrimSpace(r.Slot),
		ClientName: r.ClientName,
	}
}

type dayResponse struct {
	Day dayDTO `json:"day"`
}

type listDaysResponse struct {
	Days []dayDTO `json:"days"`
}

type summaryResponse struct {
	Days []daySummaryDTO `json:"days"`
}

type dayDTO struct {
	Date      string    `json:"date"`
	Weekday   string    `json:"weekday"`
	Past      bool      `json:"past"`
	Vacancies int       `json:"vacancies"`
	Slots     []slotDTO `json:"slots"`
}

type slotDTO struct {
	Slot       string `json:"slot"`
	State      string `json:"state"`
	ClientName string `json:"clientName,omitempty"`
}

type daySummaryDTO struct {
	Date         string           `json:"date"`
	Appointments []appointmentDTO `json:"appointments"`
}

type appointmentDTO struct {
	Slot       string `json:"slot"`
	ClientName string `json:"clientName"`
}

func toDayDTO(day time.Time, availability booking.DayAvailability) dayDTO {
	slots := make([]slotDTO, 0, len(availability.Slots))
	for _, s := range availability.Slots {
		slots = append(slots, slotDTO{Slot: s.Label, State: s.State.String(), ClientName: s.ClientName})
	}
	return dayDTO{
		Date:      calendar.DateKey(day),
		Weekday:   day.Weekday().String(),
		Past:      availability.Past,
		Vacancies: availability.Vacancies,
		Slots:     slots,
	}
}

func toSummaryDTOs(days []booking.DaySummary) []daySummaryDTO {
	dtos := make([]daySummaryDTO, 0, len(days))
	for _, day := range days {
		appointments := make([]appointmentDTO, 0, len(day.Appointments))
		for _, appt := range day.Appointments {
			appointments = append(appointments, appointmentDTO{Slot: appt.Slot, ClientName: appt.ClientName})
		}
		dtos = append(dtos, daySummaryDTO{Date: day.Date, Appointments: appointments})
	}
	return dtos
}
