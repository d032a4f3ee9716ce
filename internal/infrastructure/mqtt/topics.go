package mqtt

import "fmt"

// Topic roots. Bridge topics use the flat scheme
// graylogic/{category}/{protocol}/{address}.
const (
	TopicPrefixBridge = "graylogic"
	TopicPrefixSystem = "graylogic/system"
)

// Topics builds the MQTT topics the lock bridge publishes and subscribes to.
//
//	topics := mqtt.Topics{}
//	topics.BridgeState("smartlock", "lock-front-door")
//	// graylogic/state/smartlock/lock-front-door
type Topics struct{}

// BridgeState returns the retained state topic for a device.
func (Topics) BridgeState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeCommand returns the command topic for a device.
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeAck returns the command acknowledgement topic for a device.
func (Topics) BridgeAck(protocol, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeHealth returns the retained health topic for a bridge.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// ProtocolCommands matches every command addressed to one protocol.
//
// Pattern: graylogic/command/{protocol}/+
func (Topics) ProtocolCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefixBridge, protocol)
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
