// Package http exposes the lab reservation services over a gin router.
//
// The router exposes the following endpoints:
//   - POST /register: creates an account. Body: {"identity","name","password","role","description"}.
//   - POST /sessions: issues a session token. Body: {"identity","password"}. Response:
//     {"token","expires_at","user"} with the token also set as the `session_token` cookie.
//   - DELETE /sessions/current: revokes the token sent in the Authorization header or cookie.
//   - GET /resources: the lab catalog with declared capacities.
//   - GET /availability?resource=&date=: one entry per catalog slot. Public.
//   - GET /availability/live?resource=&date=: websocket streaming the same view on every
//     refresh tick and whenever a reservation for that lab and date changes.
//   - GET /search?resource=&date=&from=: free slot labels at or after `from`. Public.
//   - POST /reservations: books one slot. Body: {"resource","date","slot","anonymous"}.
//   - GET /reservations/mine: the caller's reservations.
//   - GET /reservations/recent: the first reservations on record for visitors, the
//     caller's own reservations when authenticated.
//   - POST /reservations/{id}/edit: releases a reservation and returns the refreshed
//     availability for re-booking.
//   - DELETE /reservations/{id}: cancels; unknown identifiers succeed with 204.
//   - GET /users, GET /users/{identity}, GET /users/{identity}/reservations,
//     PUT /users/{identity}/description: the user directory and profiles.
//   - GET /health: liveness probe.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
