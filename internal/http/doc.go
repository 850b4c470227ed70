// Package http exposes the booking store as a small JSON API.
//
// The router exposes the following endpoints:
//   - POST /bookings: books one slot. Body: {"date","slot","clientName"}.
//     Responds 201 with {"day": dayDTO} for the booked date, 400 for a body
//     that is not JSON and 422 with per field messages when the date is past
//     or malformed, the slot is not in the schedule or the name is blank.
//     The response is sent only after the store's write latency has elapsed.
//   - GET /days?n=7: availability of the next n days starting today.
//   - GET /days/{date}: availability of one date. Past dates are reported with
//     every slot unavailable.
//   - GET /summary: upcoming dates with their appointments in slot order.
//   - GET /events: websocket that sends {"today","days"} with the upcoming
//     summary on connect and after every change, local or remote.
//
// When a RateLimiter is configured, POST /bookings answers 429 once a client
// address exhausts its token bucket.
//
// Reads are served from a View that holds the table last delivered to the
// store's subscriber, so bookings made by other contexts on the same storage
// appear without a request touching storage.
package http
