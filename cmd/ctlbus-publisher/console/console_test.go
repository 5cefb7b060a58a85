package console

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ctlbus/ctlbus-go/pkg/endpoint"
	"github.com/ctlbus/ctlbus-go/pkg/engine"
	"github.com/ctlbus/ctlbus-go/pkg/transport/transporttest"
)

const testPrefix = "ctlbus://host:10000/"

func newTestConsole(t *testing.T, opts ...func(*engine.Config)) (*Console, *transporttest.Factory) {
	t.Helper()

	factory := transporttest.NewFactory()
	resolver := endpoint.NewResolver()
	resolver.InterfaceAddrs = func() ([]net.Addr, error) {
		return []net.Addr{&net.IPNet{IP: net.IPv4(192, 0, 2, 10), Mask: net.CIDRMask(24, 32)}}, nil
	}

	cfg := engine.DefaultConfig()
	cfg.ServerName = "Publisher/console"
	cfg.Prefix = testPrefix
	cfg.HeartbeatPort = endpoint.EphemeralPort()
	cfg.EventPort = endpoint.EphemeralPort()
	cfg.Factory = factory
	cfg.Resolver = resolver
	for _, opt := range opts {
		opt(&cfg)
	}

	e, err := engine.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })

	return NewWithPublisher(e), factory
}

func run(t *testing.T, c *Console, line string) string {
	t.Helper()
	var buf bytes.Buffer
	if !c.Execute(context.Background(), &buf, line) {
		t.Fatalf("%q requested exit", line)
	}
	return buf.String()
}

func TestPublishCommand(t *testing.T) {
	c, factory := newTestConsole(t)

	out := run(t, c, "publish sys/tg/1 temperature change 21.5")
	want := "Published " + testPrefix + "sys/tg/1/temperature.change (counter 1)"
	if !strings.Contains(out, want) {
		t.Errorf("output = %q, want %q", out, want)
	}

	pubs := factory.Pubs()
	if len(pubs) != 2 {
		t.Fatalf("sockets = %d, want heartbeat and event", len(pubs))
	}
	sends := pubs[1].Sends()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	if got := string(sends[0].Parts[len(sends[0].Parts)-1]); got != "21.5" {
		t.Errorf("payload = %q", got)
	}

	out = run(t, c, "counter sys/tg/1 temperature")
	if !strings.HasSuffix(strings.TrimSpace(out), ": 1") {
		t.Errorf("counter output = %q", out)
	}
}

func TestBlobCommandUsesZeroCopy(t *testing.T) {
	c, factory := newTestConsole(t)

	out := run(t, c, "blob sys/cam/1 image 8192")
	if !strings.Contains(out, "Published 8192 bytes") {
		t.Errorf("output = %q", out)
	}
	sends := factory.Pubs()[1].Sends()
	if len(sends) != 1 || !sends[0].ZeroCopy {
		t.Errorf("sends = %+v, want one zero-copy send", sends)
	}

	if out := run(t, c, "blob sys/cam/1 image lots"); !strings.Contains(out, "invalid size") {
		t.Errorf("output = %q", out)
	}
}

func TestRouteCommands(t *testing.T) {
	c, factory := newTestConsole(t)

	out := run(t, c, "route sys/tg/1 temperature change 239.0.0.1:9000 100")
	if !strings.Contains(out, "udp://239.0.0.1:9000") {
		t.Errorf("output = %q", out)
	}
	mc := factory.Multicasts()
	if len(mc) != 1 {
		t.Fatalf("multicast sockets = %d, want 1", len(mc))
	}
	if mc[0].Options().RateKbps != 100 {
		t.Errorf("rate = %d, want 100", mc[0].Options().RateKbps)
	}

	out = run(t, c, "route sys/tg/2 pressure change 239.0.0.2:9000 local")
	if !strings.Contains(out, "(local)") {
		t.Errorf("output = %q", out)
	}
	if len(factory.Multicasts()) != 1 {
		t.Error("local route created a multicast socket")
	}

	out = run(t, c, "routes")
	for _, want := range []string{"sys/tg/1/temperature.change", "sys/tg/2/pressure.change", "multicast: true", "local: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("routes missing %q:\n%s", want, out)
		}
	}

	if out := run(t, c, "route sys/tg/1 temperature change 239.0.0.9:9000"); !strings.Contains(out, "Error:") {
		t.Errorf("conflicting route accepted: %q", out)
	}
	if out := run(t, c, "route sys/tg/3 x change 10.0.0.1:9000"); !strings.Contains(out, "Error:") {
		t.Errorf("unicast group accepted: %q", out)
	}
}

func TestHeartbeatCommands(t *testing.T) {
	c, factory := newTestConsole(t)

	// The first heartbeat is due one threshold after the engine starts.
	out := run(t, c, "heartbeat")
	if !strings.Contains(out, "Heartbeat not due") {
		t.Errorf("output = %q", out)
	}
	if got := factory.Pubs()[0].SendCount(); got != 0 {
		t.Errorf("heartbeat sends = %d, want 0", got)
	}

	c, factory = newTestConsole(t, func(cfg *engine.Config) {
		cfg.Heartbeat.Threshold = time.Nanosecond
	})
	time.Sleep(time.Millisecond)

	out = run(t, c, "heartbeat")
	if !strings.Contains(out, "Heartbeat sent (1 copies)") {
		t.Errorf("output = %q", out)
	}

	run(t, c, "double")
	time.Sleep(time.Millisecond)
	out = run(t, c, "heartbeat")
	if !strings.Contains(out, "Heartbeat sent (2 copies)") {
		t.Errorf("output = %q", out)
	}
	if got := factory.Pubs()[0].SendCount(); got != 3 {
		t.Errorf("heartbeat sends = %d, want 3", got)
	}
}

func TestEndpointsCommand(t *testing.T) {
	c, _ := newTestConsole(t)

	out := run(t, c, "endpoints")
	if !strings.Contains(out, "Heartbeat: tcp://192.0.2.10:") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "not yet created") {
		t.Errorf("event socket reported before first publish: %q", out)
	}

	run(t, c, "publish sys/tg/1 temperature")
	out = run(t, c, "endpoints")
	if !strings.Contains(out, "Event:     tcp://192.0.2.10:") {
		t.Errorf("output = %q", out)
	}
}

func TestDiagnosticsCommands(t *testing.T) {
	c, _ := newTestConsole(t)

	if out := run(t, c, "perf on"); !strings.Contains(out, "monitor on") {
		t.Errorf("output = %q", out)
	}
	run(t, c, "publish sys/tg/1 temperature change 1")

	out := run(t, c, "diag")
	var diag map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &diag); err != nil {
		t.Fatalf("diag output is not JSON: %v\n%s", err, out)
	}
	if _, ok := diag["event_counters"]; !ok {
		t.Errorf("diag missing event_counters: %s", out)
	}

	if out := run(t, c, "perf maybe"); !strings.Contains(out, "usage") {
		t.Errorf("output = %q", out)
	}
	if out := run(t, c, "clients"); !strings.Contains(out, "No recent clients") {
		t.Errorf("output = %q", out)
	}
}

func TestExecuteMisc(t *testing.T) {
	c, _ := newTestConsole(t)

	if out := run(t, c, "frobnicate"); !strings.Contains(out, "Unknown command") {
		t.Errorf("output = %q", out)
	}
	if out := run(t, c, "publish onlydevice"); !strings.Contains(out, "usage") {
		t.Errorf("output = %q", out)
	}
	if out := run(t, c, "   "); out != "" {
		t.Errorf("blank line output = %q", out)
	}
	if c.Execute(context.Background(), &bytes.Buffer{}, "quit") {
		t.Error("quit did not request exit")
	}
}
