// Package httpapi exposes an [authservice.Service] over HTTP with
// gorilla/mux.
//
//	POST /api/auth/login          {"username","password"}
//	POST /api/auth/totp/verify    {"code","user_id"}
//	POST /api/auth/logout         Bearer
//	GET  /api/auth/me             Bearer
//	POST /api/auth/totp/enroll    Bearer
//	POST /api/auth/totp/confirm   Bearer {"code"}
//	GET  /healthz
//	GET  /metrics                 when a Prometheus registry is supplied
//
// Every error body is {"detail": "..."}; the detail is what clients show to
// the user.
package httpapi
