package commands

import "strings"

// DefaultTopicPrefix is the root of every device topic.
const DefaultTopicPrefix = "devices"

// Topics builds the per-device transport channels.
type Topics struct {
	Prefix string
}

// NewTopics constructs topics for a prefix, falling back to the default.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// Command is the outbound command topic of a device.
func (t Topics) Command(deviceID string) string {
	return t.prefix() + "/" + deviceID + "/commands"
}

// Ack is the inbound acknowledgment topic of a device.
func (t Topics) Ack(deviceID string) string {
	return t.prefix() + "/" + deviceID + "/commands/ack"
}

// Status is the inbound device-status topic of a device.
func (t Topics) Status(deviceID string) string {
	return t.prefix() + "/" + deviceID + "/status"
}

// AckSubscription matches every acknowledgment topic.
func (t Topics) AckSubscription() string { return t.Ack("+") }

// StatusSubscription matches every device-status topic.
func (t Topics) StatusSubscription() string { return t.Status("+") }

// DeviceFromAck extracts the device id from an acknowledgment topic.
func (t Topics) DeviceFromAck(topic string) (string, bool) {
	return t.deviceFrom(topic, "/commands/ack")
}

// DeviceFromStatus extracts the device id from a device-status topic.
func (t Topics) DeviceFromStatus(topic string) (string, bool) {
	return t.deviceFrom(topic, "/status")
}

func (t Topics) deviceFrom(topic, suffix string) (string, bool) {
	head := t.prefix() + "/"
	if !strings.HasPrefix(topic, head) || !strings.HasSuffix(topic, suffix) {
		return "", false
	}
	deviceID := strings.TrimSuffix(strings.TrimPrefix(topic, head), suffix)
	if deviceID == "" || strings.Contains(deviceID, "/") {
		return "", false
	}
	return deviceID, true
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}
