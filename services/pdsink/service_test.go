package pdsink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdsink-go/bus"
	"pdsink-go/drivers/ap33772s"
	"pdsink-go/errcode"
	"pdsink-go/types"
)

func startService(t *testing.T) (*bus.Bus, *ap33772s.Simulator, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sim := ap33772s.NewSimulator()
	b := bus.NewBus(16)
	svc := New(SinkConfig{ID: "main", PollIntervalMs: 1, TelemetryIntervalMs: 20}, sim, nil)
	require.NoError(t, svc.Start(ctx, b.NewConnection("pdsink")))
	return b, sim, cancel
}

func waitMsg(t *testing.T, sub *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestStartPublishesRetainedState(t *testing.T) {
	b, _, _ := startService(t)
	conn := b.NewConnection("test")

	// Late subscribers see the retained snapshots.
	st := waitMsg(t, conn.Subscribe(bus.Topic{"pdsink", "main", "state"}))
	state := st.Payload.(*types.ServiceState)
	assert.Equal(t, "ready", state.Level)

	pm := waitMsg(t, conn.Subscribe(bus.Topic{"pdsink", "main", "profiles"}))
	table := pm.Payload.(*types.ProfileTable)
	require.NotEmpty(t, table.Profiles)

	var detected []string
	for _, p := range table.Profiles {
		if p.Detected {
			detected = append(detected, p.Kind)
		}
	}
	assert.Equal(t, []string{"fixed", "fixed", "fixed", "pps", "avs"}, detected)
	assert.Empty(t, table.Failed)

	im := waitMsg(t, conn.Subscribe(bus.Topic{"pdsink", "main", "info"}))
	info := im.Payload.(*types.Info)
	assert.Equal(t, "ap33772s", info.Driver)
	assert.Equal(t, types.AttachPD, info.Detail.(types.SinkInfo).Attach)
}

func TestTelemetryTick(t *testing.T) {
	b, _, _ := startService(t)
	conn := b.NewConnection("test")

	tm := waitMsg(t, conn.Subscribe(bus.Topic{"pdsink", "main", "telemetry"}))
	tv := tm.Payload.(*types.TelemetryValue)
	assert.Greater(t, tv.Voltage_mV, int32(0))
	assert.NotZero(t, tv.TS)
}

func TestRequestCommand(t *testing.T) {
	b, _, _ := startService(t)
	conn := b.NewConnection("test")
	replyTopic := bus.Topic{"reply", "req1"}
	replies := conn.Subscribe(replyTopic)

	t.Run("auto slot selection negotiates", func(t *testing.T) {
		conn.Publish(&bus.Message{
			Topic:   bus.Topic{"pdsink", "main", "request"},
			Payload: &types.RequestCommand{Voltage_mV: 17000, Current_mA: 3000},
			ReplyTo: replyTopic,
		})
		r := waitMsg(t, replies).Payload.(*types.Reply)
		require.True(t, r.OK, "code=%s", r.Code)

		neg := r.Data.(*types.NegotiationValue)
		assert.Equal(t, uint8(8), neg.Position) // the AVS slot
		assert.Equal(t, int32(17000), neg.Voltage_mV)
		assert.Equal(t, "success", neg.Result)
	})

	t.Run("explicit slot", func(t *testing.T) {
		conn.Publish(&bus.Message{
			Topic:   bus.Topic{"pdsink", "main", "request"},
			Payload: &types.RequestCommand{Position: 2, Voltage_mV: 9000, Current_mA: 2000},
			ReplyTo: replyTopic,
		})
		r := waitMsg(t, replies).Payload.(*types.Reply)
		require.True(t, r.OK, "code=%s", r.Code)
		assert.Equal(t, uint8(2), r.Data.(*types.NegotiationValue).Position)
	})

	t.Run("no suitable slot", func(t *testing.T) {
		conn.Publish(&bus.Message{
			Topic:   bus.Topic{"pdsink", "main", "request"},
			Payload: &types.RequestCommand{Voltage_mV: 48000, Current_mA: 1000},
			ReplyTo: replyTopic,
		})
		r := waitMsg(t, replies).Payload.(*types.Reply)
		assert.False(t, r.OK)
		assert.Equal(t, string(errcode.OutOfRange), r.Code)
	})

	t.Run("overcurrent ask is refused", func(t *testing.T) {
		conn.Publish(&bus.Message{
			Topic:   bus.Topic{"pdsink", "main", "request"},
			Payload: &types.RequestCommand{Position: 1, Voltage_mV: 5000, Current_mA: 3000},
			ReplyTo: replyTopic,
		})
		// 3000 mA quantizes to 3000 and the 5 V slot allows it.
		r := waitMsg(t, replies).Payload.(*types.Reply)
		assert.True(t, r.OK)

		// Now a slot that cannot carry the ask; the builder refuses locally.
		conn.Publish(&bus.Message{
			Topic:   bus.Topic{"pdsink", "main", "request"},
			Payload: &types.RequestCommand{Position: 1, Voltage_mV: 5000, Current_mA: 4000},
			ReplyTo: replyTopic,
		})
		r = waitMsg(t, replies).Payload.(*types.Reply)
		assert.False(t, r.OK)
		assert.Equal(t, string(errcode.OutOfRange), r.Code)
	})

	t.Run("malformed payload", func(t *testing.T) {
		conn.Publish(&bus.Message{
			Topic:   bus.Topic{"pdsink", "main", "request"},
			Payload: "garbage",
			ReplyTo: replyTopic,
		})
		r := waitMsg(t, replies).Payload.(*types.Reply)
		assert.False(t, r.OK)
		assert.Equal(t, string(errcode.InvalidPayload), r.Code)
	})

	t.Run("negotiation outcome is retained", func(t *testing.T) {
		neg := waitMsg(t, conn.Subscribe(bus.Topic{"pdsink", "main", "negotiation"}))
		assert.IsType(t, &types.NegotiationValue{}, neg.Payload)
	})
}

func TestSetThresholds(t *testing.T) {
	b, _, _ := startService(t)
	conn := b.NewConnection("test")
	replyTopic := bus.Topic{"reply", "thr"}
	replies := conn.Subscribe(replyTopic)

	ovp := int32(10000)
	conn.Publish(&bus.Message{
		Topic:   bus.Topic{"pdsink", "main", "thresholds"},
		Payload: &types.SetThresholds{OVP_mV: &ovp},
		ReplyTo: replyTopic,
	})
	r := waitMsg(t, replies).Payload.(*types.Reply)
	assert.True(t, r.OK)

	uvp, derate := int32(70), int32(100)
	conn.Publish(&bus.Message{
		Topic:   bus.Topic{"pdsink", "main", "thresholds"},
		Payload: &types.SetThresholds{UVP_pct: &uvp, Derating_C: &derate},
		ReplyTo: replyTopic,
	})
	r = waitMsg(t, replies).Payload.(*types.Reply)
	assert.True(t, r.OK)

	badPct := int32(60) // not one of the enumerated percentages
	conn.Publish(&bus.Message{
		Topic:   bus.Topic{"pdsink", "main", "thresholds"},
		Payload: &types.SetThresholds{UVP_pct: &badPct},
		ReplyTo: replyTopic,
	})
	r = waitMsg(t, replies).Payload.(*types.Reply)
	assert.False(t, r.OK)
	assert.Equal(t, string(errcode.OutOfRange), r.Code)

	bad := int32(-5)
	conn.Publish(&bus.Message{
		Topic:   bus.Topic{"pdsink", "main", "thresholds"},
		Payload: &types.SetThresholds{OCP_mA: &bad},
		ReplyTo: replyTopic,
	})
	r = waitMsg(t, replies).Payload.(*types.Reply)
	assert.False(t, r.OK)
	assert.Equal(t, string(errcode.OutOfRange), r.Code)
}

func TestProbeFailureStopsStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(4)
	svc := New(SinkConfig{ID: "dead"}, deadBus{}, nil)
	err := svc.Start(ctx, b.NewConnection("pdsink"))
	require.Error(t, err)

	st := waitMsg(t, b.NewConnection("test").Subscribe(bus.Topic{"pdsink", "dead", "state"}))
	assert.Equal(t, "stopped", st.Payload.(*types.ServiceState).Level)
}

// deadBus answers like an absent device.
type deadBus struct{}

func (deadBus) ReadCommand(cmd byte, buf []byte) error {
	for i := range buf {
		buf[i] = 0xFF
	}
	return nil
}

func (deadBus) WriteCommand(byte, []byte) error { return nil }

func TestValidate(t *testing.T) {
	ok := &Config{Sink: SinkConfig{ID: "main", PollIntervalMs: 10}}
	assert.NoError(t, Validate(ok))

	cases := []struct {
		name string
		cfg  Config
	}{
		{"negative poll interval", Config{Sink: SinkConfig{PollIntervalMs: -1}}},
		{"negative telemetry interval", Config{Sink: SinkConfig{TelemetryIntervalMs: -1}}},
		{"initial target without current", Config{Sink: SinkConfig{Initial: &TargetConfig{Voltage_mV: 9000}}}},
		{"negative threshold", Config{Sink: SinkConfig{Thresholds: &ThresholdConfig{OCP_mA: -1}}}},
		{"unsupported uvp percentage", Config{Sink: SinkConfig{Thresholds: &ThresholdConfig{UVP_pct: 65}}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Error(t, Validate(&c.cfg))
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var s SinkConfig
	assert.Equal(t, "main", s.id())
	assert.Equal(t, defaultPollInterval, s.pollInterval())
	assert.Equal(t, defaultTelemetryInterval, s.telemetryInterval())
	assert.Equal(t, defaultNegotiateTimeout, s.negotiateTimeout())

	s = SinkConfig{ID: "alt", PollIntervalMs: 5, TelemetryIntervalMs: 250, NegotiateTimeoutMs: 2000}
	assert.Equal(t, "alt", s.id())
	assert.Equal(t, 5*time.Millisecond, s.pollInterval())
	assert.Equal(t, 250*time.Millisecond, s.telemetryInterval())
	assert.Equal(t, 2*time.Second, s.negotiateTimeout())
}
