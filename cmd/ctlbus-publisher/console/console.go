// Package console provides the interactive command line of ctlbus-publisher.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ctlbus/ctlbus-go/pkg/clients"
	"github.com/ctlbus/ctlbus-go/pkg/endpoint"
	"github.com/ctlbus/ctlbus-go/pkg/engine"
	"github.com/ctlbus/ctlbus-go/pkg/heartbeat"
	"github.com/ctlbus/ctlbus-go/pkg/payload"
	"github.com/ctlbus/ctlbus-go/pkg/route"
	"github.com/ctlbus/ctlbus-go/pkg/wire"
)

// Publisher is the part of the engine the console drives.
type Publisher interface {
	Topic(ev engine.Event) string
	Publish(ctx context.Context, ev engine.Event) error
	DeclareRoute(ctx context.Context, topic, group string, rateKbps int, local bool) (string, error)
	Routes() []route.Info
	Counter(topic string) uint32
	HeartbeatTopic() string
	HeartbeatEndpoint() endpoint.Endpoint
	EventEndpoint() (endpoint.Endpoint, bool)
	HeartbeatStats() heartbeat.Stats
	PushHeartbeat() (int, error)
	RequestDoubleSend()
	Clients() []clients.Client
	EnablePerfMonitoring(on bool)
	QueryDiagnostics() (string, error)
}

var _ Publisher = (*engine.Engine)(nil)

// Console handles interactive mode.
type Console struct {
	pub Publisher
	rl  *readline.Instance
}

// New creates a console reading commands from the terminal.
func New(pub Publisher) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ctlbus> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{pub: pub, rl: rl}, nil
}

// NewWithPublisher creates a console without a terminal, for Execute only.
func NewWithPublisher(pub Publisher) *Console {
	return &Console{pub: pub}
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("publish"),
	readline.PcItem("blob"),
	readline.PcItem("route"),
	readline.PcItem("routes"),
	readline.PcItem("counter"),
	readline.PcItem("heartbeat"),
	readline.PcItem("double"),
	readline.PcItem("endpoints"),
	readline.PcItem("clients"),
	readline.PcItem("perf", readline.PcItem("on"), readline.PcItem("off")),
	readline.PcItem("diag"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output so messages do not garble the input line.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context) {
	defer c.rl.Close()

	go func() {
		<-ctx.Done()
		c.rl.Close()
	}()

	c.printHelp(c.rl.Stdout())

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && ctx.Err() == nil {
				continue
			}
			return
		}
		if !c.Execute(ctx, c.rl.Stdout(), line) {
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			return
		}
	}
}

// Execute runs one command line, writing its output to w. It returns false
// when the console should exit.
func (c *Console) Execute(ctx context.Context, w io.Writer, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp(w)
	case "publish", "p":
		err = c.cmdPublish(ctx, w, args)
	case "blob":
		err = c.cmdBlob(ctx, w, args)
	case "route":
		err = c.cmdRoute(ctx, w, args)
	case "routes":
		c.cmdRoutes(w)
	case "counter":
		err = c.cmdCounter(w, args)
	case "heartbeat", "hb":
		err = c.cmdHeartbeat(w)
	case "double":
		c.pub.RequestDoubleSend()
		fmt.Fprintln(w, "Next heartbeat and next unrouted event will be sent twice")
	case "endpoints", "ep":
		c.cmdEndpoints(w)
	case "clients":
		c.cmdClients(w)
	case "perf":
		err = c.cmdPerf(w, args)
	case "diag":
		err = c.cmdDiag(w)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return true
}

func (c *Console) printHelp(w io.Writer) {
	fmt.Fprint(w, `
Publisher Commands:
  Events:
    publish <device> <object> [type] [value] - Publish a scalar event (type defaults to change)
    blob <device> <object> <bytes>           - Publish an encoded blob of the given size
    counter <device> <object> [type]         - Show the event counter

  Routes:
    route <device> <object> <type> <group> [rate] [local] - Declare a route
    routes                                   - List routes

  Heartbeat:
    heartbeat                                - Push a heartbeat now and show stats
    double                                   - Request a double send

  Diagnostics:
    endpoints                                - Show bound endpoints
    clients                                  - List recent subscribers
    perf on|off                              - Toggle the performance monitor
    diag                                     - Dump diagnostics as JSON

  quit                                       - Exit
`)
}

func event(args []string) engine.Event {
	ev := engine.Event{Device: args[0], Object: args[1], Type: wire.EventChange}
	if len(args) > 2 {
		ev.Type = args[2]
	}
	return ev
}

func (c *Console) cmdPublish(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: publish <device> <object> [type] [value]")
	}
	ev := event(args)
	ev.Payload = payload.NoData()
	if len(args) > 3 {
		ev.Payload = payload.Scalar([]byte(strings.Join(args[3:], " ")))
	}
	if err := c.pub.Publish(ctx, ev); err != nil {
		return err
	}
	topic := c.pub.Topic(ev)
	fmt.Fprintf(w, "Published %s (counter %d)\n", topic, c.pub.Counter(topic))
	return nil
}

func (c *Console) cmdBlob(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: blob <device> <object> <bytes>")
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n < 0 {
		return fmt.Errorf("invalid size: %s", args[2])
	}
	ev := event(args[:2])
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	ev.Payload = payload.Encoded(data)
	if err := c.pub.Publish(ctx, ev); err != nil {
		return err
	}
	fmt.Fprintf(w, "Published %d bytes to %s\n", n, c.pub.Topic(ev))
	return nil
}

func (c *Console) cmdRoute(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 4 {
		return errors.New("usage: route <device> <object> <type> <group> [rate] [local]")
	}
	topic := c.pub.Topic(event(args[:3]))
	rest := args[4:]

	local := false
	if n := len(rest); n > 0 && rest[n-1] == "local" {
		local = true
		rest = rest[:n-1]
	}
	rate := 0
	if len(rest) > 0 {
		r, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid rate: %s", rest[0])
		}
		rate = r
	}

	ep, err := c.pub.DeclareRoute(ctx, topic, args[3], rate, local)
	if err != nil {
		return err
	}
	if local {
		fmt.Fprintf(w, "Route %s: %s (local)\n", topic, ep)
	} else {
		fmt.Fprintf(w, "Route %s: %s\n", topic, ep)
	}
	return nil
}

func (c *Console) cmdRoutes(w io.Writer) {
	routes := c.pub.Routes()
	if len(routes) == 0 {
		fmt.Fprintln(w, "No routes declared")
		return
	}
	for _, r := range routes {
		fmt.Fprintf(w, "  %s\n", r.Name)
		if r.Endpoint != "" {
			fmt.Fprintf(w, "    endpoint: %s\n", r.Endpoint)
		}
		fmt.Fprintf(w, "    multicast: %t  local: %t  double-send: %t\n", r.Multicast, r.Local, r.DoubleSend)
	}
}

func (c *Console) cmdCounter(w io.Writer, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: counter <device> <object> [type]")
	}
	topic := c.pub.Topic(event(args))
	fmt.Fprintf(w, "%s: %d\n", topic, c.pub.Counter(topic))
	return nil
}

func (c *Console) cmdHeartbeat(w io.Writer) error {
	n, err := c.pub.PushHeartbeat()
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(w, "Heartbeat not due")
	} else {
		fmt.Fprintf(w, "Heartbeat sent (%d copies)\n", n)
	}
	stats := c.pub.HeartbeatStats()
	fmt.Fprintf(w, "  sent: %d  failures: %d\n", stats.Sent, stats.Failures)
	if !stats.LastSent.IsZero() {
		fmt.Fprintf(w, "  last: %s\n", stats.LastSent.Format("15:04:05.000"))
	}
	return nil
}

func (c *Console) cmdEndpoints(w io.Writer) {
	fmt.Fprintf(w, "Heartbeat: %s\n", strings.Join(c.pub.HeartbeatEndpoint().All(), ", "))
	fmt.Fprintf(w, "  topic: %s\n", c.pub.HeartbeatTopic())
	if ep, ok := c.pub.EventEndpoint(); ok {
		fmt.Fprintf(w, "Event:     %s\n", strings.Join(ep.All(), ", "))
	} else {
		fmt.Fprintln(w, "Event:     (not yet created)")
	}
}

func (c *Console) cmdClients(w io.Writer) {
	list := c.pub.Clients()
	if len(list) == 0 {
		fmt.Fprintln(w, "No recent clients")
		return
	}
	for _, cl := range list {
		fmt.Fprintf(w, "  %s  last seen %s\n", cl.Identity, cl.LastSeen.Format("15:04:05"))
	}
}

func (c *Console) cmdPerf(w io.Writer, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errors.New("usage: perf on|off")
	}
	c.pub.EnablePerfMonitoring(args[0] == "on")
	fmt.Fprintf(w, "Performance monitor %s\n", args[0])
	return nil
}

func (c *Console) cmdDiag(w io.Writer) error {
	out, err := c.pub.QueryDiagnostics()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}
