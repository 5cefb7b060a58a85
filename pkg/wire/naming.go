package wire

import "strings"

// Event naming constants.
const (
	// HeartbeatSuffix terminates every heartbeat topic.
	HeartbeatSuffix = ".heartbeat"

	// NoDBModifier marks names of servers running without a database.
	NoDBModifier = "#dbase=no"

	// VersionPrefix is prepended to event types sent to version 5+ subscribers.
	VersionPrefix = "idl5_"

	// FillerTopic is the single-part message written to the event socket
	// after each heartbeat to make the transport flush reclaimed buffers.
	// Only catch-all subscribers (empty filter) receive it and must ignore
	// it.
	FillerTopic = "\x00ctlbus-reclaim"
)

// Event types.
const (
	EventChange          = "change"
	EventPeriodic        = "periodic"
	EventArchive         = "archive"
	EventUser            = "user_event"
	EventAttrConf        = "attr_conf"
	EventDataReady       = "data_ready"
	EventInterfaceChange = "intr_change"
	EventPipe            = "pipe"
	EventAlarm           = "alarm"
)

// Name identifies the source of an event.
type Name struct {
	// Prefix is the fully-qualified host prefix, e.g. "ctlbus://host:10000/".
	Prefix string

	// Device is the device name (domain/family/member).
	Device string

	// Object is the attribute or pipe name. Empty for interface-change events.
	Object string

	// NoDB marks devices served without a database.
	NoDB bool
}

// Topic returns the lower-cased event name for eventType.
//
//	<prefix><device>/<object>[#dbase=no].<eventType>
func (n Name) Topic(eventType string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(n.Prefix, "#"))
	b.WriteString(n.Device)
	if n.Object != "" && eventType != EventInterfaceChange {
		b.WriteByte('/')
		b.WriteString(n.Object)
	}
	if n.NoDB {
		b.WriteString(NoDBModifier)
	}
	b.WriteByte('.')
	b.WriteString(eventType)
	return strings.ToLower(b.String())
}

// EventName returns the topic of an event raised on object of device.
func EventName(prefix, device, object, eventType string, noDB bool) string {
	return Name{Prefix: prefix, Device: device, Object: object, NoDB: noDB}.Topic(eventType)
}

// HeartbeatTopic returns the heartbeat topic of a server process.
//
//	<prefix>dserver/<server>[#dbase=no].heartbeat
func HeartbeatTopic(prefix, server string, noDB bool) string {
	name := prefix + "dserver/" + server
	if noDB {
		name += NoDBModifier
	}
	return strings.ToLower(name + HeartbeatSuffix)
}

// AddVersionPrefix returns the event type used for version 5+ subscribers.
// Alarm events postdate the prefix and are returned unchanged.
func AddVersionPrefix(eventType string) string {
	if eventType == EventAlarm || strings.HasPrefix(eventType, VersionPrefix) {
		return eventType
	}
	return VersionPrefix + eventType
}

// RemoveVersionPrefix strips the version prefix from an event type.
func RemoveVersionPrefix(eventType string) string {
	return strings.TrimPrefix(eventType, VersionPrefix)
}

// CounterKey returns the counter registry key for a topic: the topic with
// any version prefix removed from its event type.
func CounterKey(topic string) string {
	i := strings.LastIndexByte(topic, '.')
	if i < 0 {
		return strings.ToLower(topic)
	}
	return strings.ToLower(topic[:i+1] + RemoveVersionPrefix(topic[i+1:]))
}
