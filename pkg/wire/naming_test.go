package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameTopic(t *testing.T) {
	n := Name{Prefix: "ctlbus://Host:10000/", Device: "Sys/Tg/1", Object: "Double_Scalar"}

	assert.Equal(t, "ctlbus://host:10000/sys/tg/1/double_scalar.change", n.Topic(EventChange))
	assert.Equal(t, "ctlbus://host:10000/sys/tg/1/double_scalar.idl5_change", n.Topic(AddVersionPrefix(EventChange)))
	assert.Equal(t, "ctlbus://host:10000/sys/tg/1.intr_change", n.Topic(EventInterfaceChange))
}

func TestNameTopicNoDB(t *testing.T) {
	n := Name{Prefix: "ctlbus://host:10000/#", Device: "a/b/c", Object: "x", NoDB: true}
	assert.Equal(t, "ctlbus://host:10000/a/b/c/x#dbase=no.periodic", n.Topic(EventPeriodic))
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "ctlbus://h:1/a/b/c/attr.user_event", EventName("ctlbus://h:1/", "a/b/c", "Attr", EventUser, false))
}

func TestHeartbeatTopic(t *testing.T) {
	assert.Equal(t, "ctlbus://host:10000/dserver/starter/lab1.heartbeat",
		HeartbeatTopic("ctlbus://host:10000/", "Starter/Lab1", false))
	assert.Equal(t, "dserver/srv/1#dbase=no.heartbeat", HeartbeatTopic("", "srv/1", true))
}

func TestVersionPrefix(t *testing.T) {
	assert.Equal(t, "idl5_change", AddVersionPrefix(EventChange))
	assert.Equal(t, "idl5_change", AddVersionPrefix("idl5_change"))
	assert.Equal(t, EventAlarm, AddVersionPrefix(EventAlarm))
	assert.Equal(t, EventChange, RemoveVersionPrefix("idl5_change"))
}

func TestCounterKey(t *testing.T) {
	assert.Equal(t, "dev/attr.change", CounterKey("dev/attr.idl5_change"))
	assert.Equal(t, "dev/attr.change", CounterKey("Dev/Attr.change"))
	assert.Equal(t, "noevent", CounterKey("NoEvent"))
}
