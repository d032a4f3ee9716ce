// Package influxdb records lock telemetry in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection checks, batched
// non-blocking writes and helpers for the bridge's measurements:
//
//   - lock_state: locked flag and bolt position per observation
//   - lock_command: success and latency of every command
//   - lock_acquisition: lookup attempts needed at startup
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLockState("lock-front-door", "front-door", true, "locked")
package influxdb
