// Package smartlock bridges vendor smart locks onto the Gray Logic MQTT bus.
//
// A Bridge owns the lock adapters registered with it and drives them from
// three directions: MQTT commands, REST API calls and a periodic poll.
// Every adapter call is serialised by the bridge, and each successful call
// updates the device registry, the state history, the retained MQTT state
// topic and any attached state listeners.
//
// Topics:
//
//	graylogic/command/smartlock/{device_id}  (subscribe)
//	graylogic/ack/smartlock/{device_id}      (publish, QoS 1)
//	graylogic/state/smartlock/{device_id}    (publish, QoS 1, retained)
//	graylogic/health/smartlock               (publish, QoS 1, retained)
package smartlock
