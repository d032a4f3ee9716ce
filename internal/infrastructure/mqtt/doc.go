// Package mqtt provides the lock bridge's connection to the home MQTT bus.
//
// It wraps paho.mqtt.golang with:
//   - auto-reconnect and subscription restore
//   - a retained online/offline status with Last Will and Testament
//   - input validation and bounded waits on publish and subscribe
//   - panic recovery around message handlers
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.ProtocolCommands("smartlock"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(topic, payload)
//	    })
//
//	client.Publish(mqtt.Topics{}.BridgeState("smartlock", "lock-front-door"), payload, 1, true)
package mqtt
