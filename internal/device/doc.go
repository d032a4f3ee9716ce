// Package device provides the device registry for the lock bridge.
//
// Every lock the bridge adapts is registered here so the REST API and the
// MQTT surface can list it, read its last known state, and show its recent
// history without talking to the lock service.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │    │    Repository    │    │    Validation    │
//	│   (registry.go)  │───▶│  (repository.go) │    │ (validation.go)  │
//	│                  │    │                  │    │                  │
//	│ • In-memory cache│    │ • SQLite queries │    │ • Enum checks    │
//	│ • Deep copies    │    │ • json_patch     │    │ • Slug generation│
//	└──────────────────┘    └──────────────────┘    └──────────────────┘
//
// State changes are also appended to state_history through a
// StateHistoryRepository, newest first on read.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	created, err := registry.EnsureDevice(ctx, &device.Device{
//	    ID:           "lock-front-door",
//	    Name:         "Front Door",
//	    Type:         device.DeviceTypeDoorLock,
//	    Domain:       device.DomainSecurity,
//	    Protocol:     device.ProtocolSmartLock,
//	    Address:      device.Address{"lock_id": "front-door"},
//	    Capabilities: []device.Capability{device.CapLockUnlock},
//	})
//
//	registry.SetDeviceState(ctx, "lock-front-door", device.State{"locked": true})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. The cache is guarded by a
// read-write mutex and never hands out its own maps.
//
// Schema: migrations/20260301_100000_devices.up.sql
package device
