// Package lock adapts a single cloud-managed smart lock to the Gray Logic
// device model.
//
// The package has two halves:
//
//   - Initializer resolves the configured lock on the vendor service with a
//     bounded, fixed-delay retry and hands the resulting Adapter to a
//     Registrar (the host bridge).
//   - Adapter exposes the lock's name and locked state and translates
//     lock, unlock, and refresh calls into scoped vendor sessions.
//
// Every vendor command runs inside a Session that is opened immediately
// before the call and released with defer, so a failing command never
// leaks a session.
//
// # Vendor Backends
//
// The Service interface is implemented by sub-packages:
//
//   - lock/cloud: JSON/HTTP client for the lock cloud API
//   - lock/simulator: in-memory locks for development and tests
//
// # Thread Safety
//
// Initializer is safe for concurrent use. Adapter is not: the host is
// expected to serialise calls against a single adapter.
package lock
