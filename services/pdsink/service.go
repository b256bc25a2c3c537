// Package pdsink runs a sink controller as a bus-connected service: it owns
// the device, keeps the capability table and telemetry published as retained
// messages, and executes request commands arriving on the bus.
package pdsink

import (
	"context"
	"log/slog"
	"time"

	"pdsink-go/bus"
	"pdsink-go/drivers/ap33772s"
	"pdsink-go/errcode"
	"pdsink-go/types"
	"pdsink-go/x/timex"
)

// Service wraps one Device. All device I/O happens on the service goroutine;
// bus consumers only ever see published snapshots.
type Service struct {
	cfg SinkConfig
	dev *ap33772s.Device
	log *slog.Logger

	table ap33772s.Table
}

// New builds a service from an open transport. Logger may be nil.
func New(cfg SinkConfig, transport ap33772s.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	dev := ap33772s.New(transport, ap33772s.Config{
		PollInterval:     cfg.pollInterval(),
		NegotiateTimeout: cfg.negotiateTimeout(),
	})
	return &Service{cfg: cfg, dev: dev, log: logger.With("sink", cfg.id())}
}

// Topics. All are rooted at pdsink/<id>/.
func (s *Service) topic(leaf string) bus.Topic {
	return bus.Topic{"pdsink", s.cfg.id(), leaf}
}

// Start probes the device, publishes the initial retained state and launches
// the service loop. It returns without waiting for the first telemetry tick.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if err := s.dev.Probe(); err != nil {
		s.publishState(conn, "stopped", string(errcode.Of(err)))
		return err
	}
	if err := s.applyThresholds(); err != nil {
		s.log.Warn("thresholds not applied", "err", err)
	}
	if err := s.publishProfiles(conn); err != nil {
		s.publishState(conn, "stopped", string(errcode.Of(err)))
		return err
	}
	s.publishInfo(conn)
	s.publishState(conn, "ready", "ok")

	if t := s.cfg.Initial; t != nil && t.Voltage_mV > 0 {
		s.execRequest(ctx, conn, &types.RequestCommand{
			Voltage_mV: t.Voltage_mV,
			Current_mA: t.Current_mA,
		}, nil)
	}

	go s.serviceLoop(ctx, conn)
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	reqSub := conn.Subscribe(s.topic("request"))
	defer reqSub.Unsubscribe()
	thrSub := conn.Subscribe(s.topic("thresholds"))
	defer thrSub.Unsubscribe()

	tick := time.NewTicker(s.cfg.telemetryInterval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("service stopping")
			s.publishState(conn, "stopped", "ok")
			return
		case <-tick.C:
			s.publishTelemetry(conn)
			s.refreshOnNewCapabilities(conn)
		case msg := <-reqSub.Channel():
			cmd, ok := decodeRequestCommand(msg.Payload)
			if !ok {
				s.reply(conn, msg.ReplyTo, types.Reply{OK: false, Code: string(errcode.InvalidPayload)})
				continue
			}
			s.execRequest(ctx, conn, cmd, msg.ReplyTo)
		case msg := <-thrSub.Channel():
			set, ok := msg.Payload.(*types.SetThresholds)
			if !ok {
				s.reply(conn, msg.ReplyTo, types.Reply{OK: false, Code: string(errcode.InvalidPayload)})
				continue
			}
			err := s.setThresholds(set)
			s.reply(conn, msg.ReplyTo, types.Reply{OK: err == nil, Code: string(errcode.Of(err))})
		}
	}
}

// refreshOnNewCapabilities re-reads the capability table when the controller
// flags a new source contract. STATUS clears on read, so the flag is consumed
// here and nowhere else.
func (s *Service) refreshOnNewCapabilities(conn *bus.Connection) {
	st, err := s.dev.Status()
	if err != nil {
		return
	}
	if st.NewPDO {
		s.log.Info("source capabilities changed")
		if err := s.publishProfiles(conn); err != nil {
			s.log.Warn("profile refresh failed", "err", err)
		}
		s.publishInfo(conn) // attachment kind may have changed with the source
	}
}

// publishInfo reads OPMODE and publishes the retained driver envelope.
func (s *Service) publishInfo(conn *bus.Connection) {
	om, err := s.dev.OperationMode()
	if err != nil {
		s.log.Warn("operation mode read failed", "err", err)
		return
	}
	attach := types.AttachNone
	switch {
	case om.PDSource:
		attach = types.AttachPD
	case om.LegacySource:
		attach = types.AttachLegacy
	}
	conn.Publish(&bus.Message{
		Topic: s.topic("info"),
		Payload: &types.Info{
			SchemaVersion: 1,
			Driver:        "ap33772s",
			Detail: types.SinkInfo{
				Attach:   attach,
				Derating: om.Derating,
				CCFlip:   om.CCFlip,
			},
		},
		Retained: true,
	})
}

func (s *Service) publishProfiles(conn *bus.Connection) error {
	table, slotErrs, err := s.dev.ReadTable()
	if err != nil {
		return err
	}
	s.table = table

	pt := types.ProfileTable{TS: timex.NowMs()}
	for p := range table.All() {
		pt.Profiles = append(pt.Profiles, profileOf(p))
	}
	for _, se := range slotErrs {
		pt.Failed = append(pt.Failed, types.SlotFailure{
			Position: uint8(se.Position),
			Code:     string(errcode.Of(se.Err)),
		})
	}
	conn.Publish(&bus.Message{Topic: s.topic("profiles"), Payload: &pt, Retained: true})
	return nil
}

// profileOf flattens a decoded PDO into its bus payload.
func profileOf(p ap33772s.PDO) types.PowerProfile {
	out := types.PowerProfile{
		Position: uint8(p.Position()),
		Class:    p.Class().String(),
		Kind:     p.Kind().String(),
		Detected: p.Detected(),
	}
	switch v := p.(type) {
	case ap33772s.FixedSupply:
		out.Voltage_mV = int32(v.Voltage())
		out.MaxCurrent_mA = int32(v.MaxCurrent())
	case ap33772s.VariableSupply:
		out.MaxVoltage_mV = int32(v.MaxVoltage())
		out.MaxCurrent_mA = int32(v.MaxPowerOrCurrent())
		if minV, err := v.MinVoltage(); err == nil {
			out.MinVoltage_mV = int32(minV)
		}
	case ap33772s.Adjustable:
		out.MaxVoltage_mV = int32(v.MaxVoltage())
		out.MaxCurrent_mA = int32(v.MaxCurrent())
		if minV, err := v.MinVoltage(); err == nil {
			out.MinVoltage_mV = int32(minV)
		}
	}
	return out
}

func (s *Service) publishTelemetry(conn *bus.Connection) {
	stats, err := s.dev.Statistics()
	if err != nil {
		s.log.Warn("telemetry read failed", "err", err)
		return
	}
	conn.Publish(&bus.Message{
		Topic: s.topic("telemetry"),
		Payload: &types.TelemetryValue{
			Voltage_mV:    int32(stats.Voltage),
			Current_mA:    int32(stats.Current),
			Power_mW:      int32(stats.Power),
			TempC:         int32(stats.TemperatureC),
			ReqVoltage_mV: int32(stats.RequestedVoltage),
			ReqCurrent_mA: int32(stats.RequestedCurrent),
			ReqPower_mW:   int32(stats.RequestedPower),
			TS:            timex.NowMs(),
		},
		Retained: true,
	})
}

// execRequest resolves, builds, negotiates and publishes the outcome. The
// command's slot selection rules: an explicit position is honored as-is;
// position 0 delegates to the table (tightest adjustable fit, then fixed).
func (s *Service) execRequest(ctx context.Context, conn *bus.Connection, cmd *types.RequestCommand, replyTo bus.Topic) {
	v := ap33772s.Millivolts(cmd.Voltage_mV)
	i := ap33772s.Milliamps(cmd.Current_mA)

	var pdo ap33772s.PDO
	if cmd.Position != 0 {
		p, ok := s.table.At(ap33772s.Position(cmd.Position))
		if !ok {
			s.finishRequest(conn, replyTo, cmd, ap33772s.ResultBusy, ap33772s.ErrNotDetected)
			return
		}
		pdo = p
	} else {
		p, ok := s.table.FindBestFor(v, i)
		if !ok {
			s.finishRequest(conn, replyTo, cmd, ap33772s.ResultBusy, ap33772s.ErrOutOfRange)
			return
		}
		pdo = p
	}

	req, err := ap33772s.BuildRequest(pdo, v, i)
	if err != nil {
		s.finishRequest(conn, replyTo, cmd, ap33772s.ResultBusy, err)
		return
	}

	res, err := s.dev.Negotiate(ctx, req)
	s.log.Info("negotiation finished",
		"position", req.Position, "voltage_mV", req.Voltage,
		"current_mA", req.Current, "result", res.String())

	neg := types.NegotiationValue{
		Position:   uint8(req.Position),
		Voltage_mV: int32(req.Voltage),
		Current_mA: int32(req.Current),
		Result:     res.String(),
		Code:       string(errcode.Of(err)),
		TS:         timex.NowMs(),
	}
	conn.Publish(&bus.Message{Topic: s.topic("negotiation"), Payload: &neg, Retained: true})
	s.reply(conn, replyTo, types.Reply{OK: err == nil, Code: string(errcode.Of(err)), Data: &neg})

	if err == nil {
		s.publishTelemetry(conn)
	}
}

// finishRequest publishes a failed outcome that never reached the wire.
func (s *Service) finishRequest(conn *bus.Connection, replyTo bus.Topic, cmd *types.RequestCommand, res ap33772s.NegotiationResult, err error) {
	neg := types.NegotiationValue{
		Position:   cmd.Position,
		Voltage_mV: cmd.Voltage_mV,
		Current_mA: cmd.Current_mA,
		Result:     res.String(),
		Code:       string(errcode.Of(err)),
		TS:         timex.NowMs(),
	}
	conn.Publish(&bus.Message{Topic: s.topic("negotiation"), Payload: &neg, Retained: true})
	s.reply(conn, replyTo, types.Reply{OK: false, Code: string(errcode.Of(err)), Data: &neg})
}

func (s *Service) setThresholds(set *types.SetThresholds) error {
	if set.UVP_pct != nil {
		t, err := ap33772s.UVPThresholdForPercent(int(*set.UVP_pct))
		if err != nil {
			return err
		}
		if err := s.dev.SetUnderVoltageThreshold(t); err != nil {
			return err
		}
	}
	if set.OVP_mV != nil {
		if err := s.dev.SetOverVoltageThreshold(ap33772s.Millivolts(*set.OVP_mV)); err != nil {
			return err
		}
	}
	if set.OCP_mA != nil {
		if err := s.dev.SetOverCurrentThreshold(ap33772s.Milliamps(*set.OCP_mA)); err != nil {
			return err
		}
	}
	if set.OTP_C != nil {
		if err := s.dev.SetOverTemperatureThreshold(int(*set.OTP_C)); err != nil {
			return err
		}
	}
	if set.Derating_C != nil {
		if err := s.dev.SetDeratingThreshold(int(*set.Derating_C)); err != nil {
			return err
		}
	}
	if set.SelMin_mV != nil {
		if err := s.dev.SetMinimumSelectionVoltage(ap33772s.Millivolts(*set.SelMin_mV)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) applyThresholds() error {
	th := s.cfg.Thresholds
	if th == nil {
		return nil
	}
	set := types.SetThresholds{}
	if th.UVP_pct > 0 {
		set.UVP_pct = &th.UVP_pct
	}
	if th.OVP_mV > 0 {
		set.OVP_mV = &th.OVP_mV
	}
	if th.OCP_mA > 0 {
		set.OCP_mA = &th.OCP_mA
	}
	if th.OTP_C > 0 {
		set.OTP_C = &th.OTP_C
	}
	if th.Derating_C > 0 {
		set.Derating_C = &th.Derating_C
	}
	if th.SelMin_mV > 0 {
		set.SelMin_mV = &th.SelMin_mV
	}
	return s.setThresholds(&set)
}

func (s *Service) publishState(conn *bus.Connection, level, status string) {
	conn.Publish(&bus.Message{
		Topic:    s.topic("state"),
		Payload:  &types.ServiceState{Level: level, Status: status, TS: timex.NowMs()},
		Retained: true,
	})
}

func (s *Service) reply(conn *bus.Connection, replyTo bus.Topic, r types.Reply) {
	if len(replyTo) == 0 {
		return
	}
	conn.Publish(&bus.Message{Topic: replyTo, Payload: &r})
}

// decodeRequestCommand accepts either the typed payload or the generic map
// shape a JSON frontend produces.
func decodeRequestCommand(payload any) (*types.RequestCommand, bool) {
	switch p := payload.(type) {
	case *types.RequestCommand:
		return p, true
	case types.RequestCommand:
		return &p, true
	case map[string]any:
		cmd := &types.RequestCommand{}
		if v, ok := numField(p, "position"); ok {
			cmd.Position = uint8(v)
		}
		if v, ok := numField(p, "voltage_mV"); ok {
			cmd.Voltage_mV = int32(v)
		}
		if v, ok := numField(p, "current_mA"); ok {
			cmd.Current_mA = int32(v)
		}
		return cmd, cmd.Voltage_mV != 0 || cmd.Position != 0
	}
	return nil, false
}

func numField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
