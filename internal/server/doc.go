// Package server hosts the synchronization broker over HTTP.
//
// # Router Infrastructure
//
// [Router] registers [Handler] routes and wraps each one in the [Middleware] stack, first added outermost.
// [Logging] records method, path, status and duration for every request; [Recover] turns handler panics into 500s.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns.
//
// # Websocket Hub
//
// [Hub] serves GET /ws?role=agent|display. Every connection becomes a [transport.Peer] whose inbound requests are
// routed by a [transport.Mux]. The newest agent connection is the active agent; when it disconnects the mux forgets it.
// Display connections are sent updateProgress notifications whenever the broker publishes progress.
//
// # HTTP API
//
//   - GET /v1/snapshot?version=basic|pro : the namespace snapshot with its stats
//   - GET /healthz : liveness, attached agent and display count
//   - GET /metrics : Prometheus exposition of the broker registry
//
// Both the hub and the API are [Handler]s: an [http.Handler] that also lists the patterns it serves.
package server
