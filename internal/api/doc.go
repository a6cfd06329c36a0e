// Package api implements the HTTP REST API and WebSocket server for Glove Core.
//
// This package provides:
//   - REST endpoints for accounts, the glove registry, binding lifecycle,
//     stored telemetry queries and learning progress
//   - An HTTP ingest surface mirroring the MQTT telemetry feed
//   - WebSocket hub for live telemetry broadcasts, scoped per user
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between operator dashboards / companion apps and the
// ingest pipeline. Telemetry normally arrives over MQTT via the gateway;
// the /ingest endpoints run the same pipeline for deployments without a
// broker. Accepted events are broadcast to WebSocket clients through the
// hub, which the ingest pipeline holds as its broadcaster.
//
// # Security
//
// Authentication uses HS256 JWT access tokens. Two roles exist: users see
// their own gloves, telemetry and learning records; admins manage the
// registry, accounts, retention and the ingest surface. WebSocket
// connections use single-use tickets to keep tokens out of URLs.
package api
