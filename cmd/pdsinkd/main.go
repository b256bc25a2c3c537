// pdsinkd runs the sink service headless: load config, start the service and
// a JSON line logger of everything it publishes, stop on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pdsink-go/bus"
	"pdsink-go/drivers/ap33772s"
	"pdsink-go/services/pdsink"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file")
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

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(32)

	// The simulated source stands in for hardware; swap in an I2CBus over a
	// real adapter to drive a controller.
	transport := ap33772s.NewSimulator()

	svc := pdsink.New(cfg.Sink, transport, logger)
	if err := svc.Start(ctx, b.NewConnection("pdsink")); err != nil {
		log.Fatalf("service start failed: %v", err)
	}

	// Mirror every published message to stdout as JSON lines.
	mon := b.NewConnection("monitor")
	sub := mon.Subscribe(bus.Topic{"pdsink", bus.Wildcard, bus.Wildcard})
	go func() {
		enc := json.NewEncoder(os.Stdout)
		for m := range sub.Channel() {
			_ = enc.Encode(map[string]any{"topic": m.Topic.String(), "payload": m.Payload})
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	mon.Disconnect()
}
