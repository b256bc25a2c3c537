// pdsinkctl is an interactive bring-up console for the sink service. It runs
// the full service stack against a simulated source by default, so request
// handling, negotiation and telemetry can be exercised without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"

	"pdsink-go/bus"
	"pdsink-go/drivers/ap33772s"
	"pdsink-go/services/pdsink"
	"pdsink-go/types"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	id := flag.String("id", "", "sink id override")
	flag.Parse()

	cfg := &pdsink.Config{}
	if *cfgPath != "" {
		var err error
		cfg, err = pdsink.Load(*cfgPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
		if err := pdsink.Validate(cfg); err != nil {
			log.Fatalf("config validation failed: %v", err)
		}
	}
	if *id != "" {
		cfg.Sink.ID = *id
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(16)
	sim := ap33772s.NewSimulator()
	svc := pdsink.New(cfg.Sink, sim, slog.Default())
	if err := svc.Start(ctx, b.NewConnection("pdsink")); err != nil {
		log.Fatalf("service start failed: %v", err)
	}

	c := &console{
		ctx:    ctx,
		cancel: cancel,
		conn:   b.NewConnection("pdsinkctl"),
		sinkID: sinkID(cfg.Sink),
	}
	c.run()
}

func sinkID(s pdsink.SinkConfig) string {
	if s.ID != "" {
		return s.ID
	}
	return "main"
}

type console struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *bus.Connection
	sinkID string

	replySeq int
}

func (c *console) topic(leaf string) bus.Topic {
	return bus.Topic{"pdsink", c.sinkID, leaf}
}

func (c *console) run() {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pdsink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("readline init failed: %v", err)
	}
	defer rl.Close()

	c.printHelp()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "exiting")
			c.cancel()
			return
		}
		args, err := shlex.Split(strings.TrimSpace(line))
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		switch strings.ToLower(args[0]) {
		case "help", "?":
			c.printHelp()
		case "profiles", "p":
			c.cmdProfiles()
		case "best", "b":
			c.cmdBest(args[1:])
		case "request", "r":
			c.cmdRequest(args[1:])
		case "status", "st":
			c.cmdStatus()
		case "stats", "s":
			c.cmdStats()
		case "watch", "w":
			c.cmdWatch(args[1:])
		case "exit", "quit", "q":
			c.cancel()
			return
		default:
			fmt.Printf("unknown command %q (try 'help')\n", args[0])
		}
	}
}

func (c *console) printHelp() {
	fmt.Print(`commands:
  profiles              list advertised capability slots
  best <mV> <mA>        show the slot the service would pick
  request <mV> <mA>     negotiate a new operating point (auto slot)
  request <pos> <mV> <mA>  negotiate on an explicit slot
  status                service state and last negotiation
  stats                 telemetry snapshot
  watch [seconds]       stream telemetry (default 5 s)
  exit
`)
}

// retained fetches the current retained payload of a topic, if any.
func (c *console) retained(leaf string) (any, bool) {
	sub := c.conn.Subscribe(c.topic(leaf))
	defer sub.Unsubscribe()
	select {
	case m := <-sub.Channel():
		return m.Payload, true
	case <-time.After(200 * time.Millisecond):
		return nil, false
	}
}

func (c *console) cmdProfiles() {
	v, ok := c.retained("profiles")
	if !ok {
		fmt.Println("no profiles published")
		return
	}
	pt := v.(*types.ProfileTable)
	for _, p := range pt.Profiles {
		if !p.Detected {
			continue
		}
		switch p.Kind {
		case "fixed":
			fmt.Printf("  %2d %s %-8s %5d mV        %5d mA\n",
				p.Position, p.Class, p.Kind, p.Voltage_mV, p.MaxCurrent_mA)
		default:
			fmt.Printf("  %2d %s %-8s %5d..%d mV  %5d mA\n",
				p.Position, p.Class, p.Kind, p.MinVoltage_mV, p.MaxVoltage_mV, p.MaxCurrent_mA)
		}
	}
	for _, f := range pt.Failed {
		fmt.Printf("  %2d undecodable (%s)\n", f.Position, f.Code)
	}
}

func (c *console) cmdBest(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: best <mV> <mA>")
		return
	}
	v, i, err := parsePoint(args[0], args[1])
	if err != nil {
		fmt.Println(err)
		return
	}
	pv, ok := c.retained("profiles")
	if !ok {
		fmt.Println("no profiles published")
		return
	}
	// Re-decode the published table shape into a selection locally.
	best := pickBest(pv.(*types.ProfileTable), v, i)
	if best == nil {
		fmt.Println("no suitable slot")
		return
	}
	fmt.Printf("slot %d (%s %s)\n", best.Position, best.Class, best.Kind)
}

// pickBest mirrors the service's slot selection on the published payload:
// tightest adjustable fit first, then an exact fixed match.
func pickBest(pt *types.ProfileTable, v, i int32) *types.PowerProfile {
	var best *types.PowerProfile
	var bestWidth int32
	for idx := range pt.Profiles {
		p := &pt.Profiles[idx]
		if !p.Detected || (p.Kind != "pps" && p.Kind != "avs") {
			continue
		}
		if v < p.MinVoltage_mV || v > p.MaxVoltage_mV || p.MaxCurrent_mA < i {
			continue
		}
		width := p.MaxVoltage_mV - p.MinVoltage_mV
		if best == nil || width < bestWidth {
			best, bestWidth = p, width
		}
	}
	if best != nil {
		return best
	}
	for idx := range pt.Profiles {
		p := &pt.Profiles[idx]
		if !p.Detected || p.Kind != "fixed" {
			continue
		}
		step := int32(100) // SPR resolution
		if p.Class == "EPR" {
			step = 200
		}
		d := p.Voltage_mV - v
		if d < 0 {
			d = -d
		}
		if d < step && p.MaxCurrent_mA >= i {
			return p
		}
	}
	return nil
}

func (c *console) cmdRequest(args []string) {
	cmd := &types.RequestCommand{}
	var err error
	switch len(args) {
	case 2:
		cmd.Voltage_mV, cmd.Current_mA, err = parsePoint(args[0], args[1])
	case 3:
		var pos int64
		pos, err = strconv.ParseInt(args[0], 10, 8)
		if err == nil {
			cmd.Position = uint8(pos)
			cmd.Voltage_mV, cmd.Current_mA, err = parsePoint(args[1], args[2])
		}
	default:
		fmt.Println("usage: request [pos] <mV> <mA>")
		return
	}
	if err != nil {
		fmt.Println(err)
		return
	}

	c.replySeq++
	replyTopic := bus.Topic{"pdsinkctl", "reply", strconv.Itoa(c.replySeq)}
	sub := c.conn.Subscribe(replyTopic)
	defer sub.Unsubscribe()

	c.conn.Publish(&bus.Message{Topic: c.topic("request"), Payload: cmd, ReplyTo: replyTopic})

	select {
	case m := <-sub.Channel():
		r := m.Payload.(*types.Reply)
		if neg, ok := r.Data.(*types.NegotiationValue); ok {
			fmt.Printf("%s: slot %d, %d mV, %d mA (%s)\n",
				neg.Result, neg.Position, neg.Voltage_mV, neg.Current_mA, neg.Code)
		} else if r.OK {
			fmt.Println("ok")
		} else {
			fmt.Println("failed:", r.Code)
		}
	case <-time.After(5 * time.Second):
		fmt.Println("no reply from service")
	}
}

func (c *console) cmdStatus() {
	if v, ok := c.retained("state"); ok {
		st := v.(*types.ServiceState)
		fmt.Printf("service: %s (%s)\n", st.Level, st.Status)
	}
	if v, ok := c.retained("negotiation"); ok {
		n := v.(*types.NegotiationValue)
		fmt.Printf("last negotiation: slot %d, %d mV, %d mA -> %s (%s)\n",
			n.Position, n.Voltage_mV, n.Current_mA, n.Result, n.Code)
	} else {
		fmt.Println("no negotiation yet")
	}
}

func (c *console) cmdStats() {
	v, ok := c.retained("telemetry")
	if !ok {
		fmt.Println("no telemetry yet")
		return
	}
	printTelemetry(v.(*types.TelemetryValue))
}

func (c *console) cmdWatch(args []string) {
	secs := 5
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Println("usage: watch [seconds]")
			return
		}
		secs = n
	}
	sub := c.conn.Subscribe(c.topic("telemetry"))
	defer sub.Unsubscribe()

	deadline := time.After(time.Duration(secs) * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			printTelemetry(m.Payload.(*types.TelemetryValue))
		case <-deadline:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func printTelemetry(tv *types.TelemetryValue) {
	fmt.Printf("  %5d mV  %5d mA  %6d mW  %3d C   (granted %d mV / %d mA)\n",
		tv.Voltage_mV, tv.Current_mA, tv.Power_mW, tv.TempC,
		tv.ReqVoltage_mV, tv.ReqCurrent_mA)
}

func parsePoint(vs, is string) (int32, int32, error) {
	v, err := strconv.ParseInt(vs, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad voltage %q", vs)
	}
	i, err := strconv.ParseInt(is, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad current %q", is)
	}
	return int32(v), int32(i), nil
}
