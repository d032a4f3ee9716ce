// Package api implements the HTTP REST API and WebSocket server for the
// lock bridge.
//
// This package provides:
//   - REST endpoints to list locks, read their state and history, and
//     issue lock, unlock and refresh commands
//   - a WebSocket hub broadcasting "lock.state_changed" events
//   - bearer JWT authentication (HS256, shared secret)
//   - middleware for request IDs, logging, recovery and CORS
//
// # Architecture
//
// Handlers call the smart-lock bridge directly. The bridge serialises
// every vendor call, so an API command waits behind any in-flight MQTT
// command or poll for the same bridge.
//
// # Security
//
// Tokens are minted by the host with security.jwt.secret. Browsers cannot
// set headers on WebSocket upgrades, so the upgrade request may carry the
// token in the "token" query parameter instead.
package api
