package bridge

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"psbridge/internal/device"
	"psbridge/internal/testutil/testlog"
)

// fakeChannel answers each command from a scripted queue and records
// what was sent.
type fakeChannel struct {
	commands []string
	queue    []string
	err      error
}

func (f *fakeChannel) Exchange(command string) (string, error) {
	f.commands = append(f.commands, command)
	if f.err != nil {
		return "", f.err
	}
	if len(f.queue) == 0 {
		return "", errors.New("fakeChannel: script exhausted")
	}
	reply := f.queue[0]
	f.queue = f.queue[1:]
	return reply, nil
}

func newBridge(replies ...string) (*Bridge, *fakeChannel) {
	ch := &fakeChannel{queue: replies}
	return New(ch, zerolog.Nop()), ch
}

func TestOutputOnDerivesFromStatusBitZero(t *testing.T) {
	testlog.Start(t)
	b, _ := newBridge("#MST:0007")
	on, err := b.OutputOn()
	if err != nil {
		t.Fatalf("output on: %v", err)
	}
	if !on {
		t.Fatalf("status 0x7 must read as output-on")
	}

	b, _ = newBridge("#MST:0006")
	on, err = b.OutputOn()
	if err != nil {
		t.Fatalf("output on: %v", err)
	}
	if on {
		t.Fatalf("status 0x6 must read as output-off")
	}
}

func TestSetOutputOnSendsOnOff(t *testing.T) {
	b, ch := newBridge("#AK", "#AK")
	if err := b.SetOutputOn(true); err != nil {
		t.Fatalf("set on: %v", err)
	}
	if err := b.SetOutputOn(false); err != nil {
		t.Fatalf("set off: %v", err)
	}
	if ch.commands[0] != "MON\r\n" || ch.commands[1] != "MOFF\r\n" {
		t.Fatalf("commands: %q", ch.commands)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	b, ch := newBridge("#AK")
	if b.ResetLatched() {
		t.Fatalf("reset must always read false")
	}
	if err := b.Reset(false); err != nil {
		t.Fatalf("reset(false): %v", err)
	}
	if len(ch.commands) != 0 {
		t.Fatalf("reset(false) must not touch the device: %q", ch.commands)
	}
	if err := b.Reset(true); err != nil {
		t.Fatalf("reset(true): %v", err)
	}
	if len(ch.commands) != 1 || ch.commands[0] != "MRESET\r\n" {
		t.Fatalf("commands: %q", ch.commands)
	}
}

func TestSetpointQueryNakIsError(t *testing.T) {
	b, _ := newBridge("#NAK:13")
	_, err := b.CurrentSetpoint()
	if !errors.Is(err, device.ErrNegativeAck) {
		t.Fatalf("expected ErrNegativeAck, got %v", err)
	}
}

func TestSetpointQueryReadsDeviceTruth(t *testing.T) {
	b, ch := newBridge("#MWI:2.500000", "#MWV:10.000000")
	amps, err := b.CurrentSetpoint()
	if err != nil || amps != 2.5 {
		t.Fatalf("current setpoint: %v err=%v", amps, err)
	}
	volts, err := b.VoltageSetpoint()
	if err != nil || volts != 10.0 {
		t.Fatalf("voltage setpoint: %v err=%v", volts, err)
	}
	if ch.commands[0] != "MWI:?\r\n" || ch.commands[1] != "MWV:?\r\n" {
		t.Fatalf("commands: %q", ch.commands)
	}
}

func TestWriteRegisterAckSemantics(t *testing.T) {
	b, ch := newBridge("#AK")
	if err := b.WriteRegister(7, 1.5); err != nil {
		t.Fatalf("write register: %v", err)
	}
	if ch.commands[0] != "MWG:7:1.500000\r\n" {
		t.Fatalf("command: %q", ch.commands[0])
	}

	b, _ = newBridge("#NAK:2")
	if err := b.WriteRegister(7, 1.5); !errors.Is(err, device.ErrNegativeAck) {
		t.Fatalf("expected ErrNegativeAck, got %v", err)
	}

	b, _ = newBridge("garbage")
	if err := b.WriteRegister(7, 1.5); !errors.Is(err, device.ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
}

func TestSfpMode(t *testing.T) {
	b, ch := newBridge("#UPMODE:SFP", "#AK", "#AK")
	sfp, err := b.SfpMode()
	if err != nil || !sfp {
		t.Fatalf("sfp mode: %v err=%v", sfp, err)
	}
	if err := b.SetSfpMode(true); err != nil {
		t.Fatalf("set sfp: %v", err)
	}
	if err := b.SetSfpMode(false); err != nil {
		t.Fatalf("set normal: %v", err)
	}
	if ch.commands[1] != "UPMODE:SFP\r\n" || ch.commands[2] != "UPMODE:NORMAL\r\n" {
		t.Fatalf("commands: %q", ch.commands)
	}
}

func TestTimeoutSurfacesOnce(t *testing.T) {
	ch := &fakeChannel{err: device.ErrTimeout}
	b := New(ch, zerolog.Nop())
	if _, err := b.Current(); !errors.Is(err, device.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if len(ch.commands) != 1 {
		t.Fatalf("timeouts must not be retried: %q", ch.commands)
	}
}

func TestParametersIncludeRegisters(t *testing.T) {
	registry, err := device.NewRegistry([]device.Register{
		{Number: 3, Name: "RampRate", Description: "output ramp rate"},
		{Number: 9, Name: "Kp", Description: "loop gain"},
	}, 0)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	b, ch := newBridge("#MRG:03:0.250000")
	params := b.Parameters(registry)

	const fixed = 8
	if len(params) != fixed+2 {
		t.Fatalf("parameter count: got %d want %d", len(params), fixed+2)
	}
	if params[fixed].Name != "RampRate" || params[fixed+1].Name != "Kp" {
		t.Fatalf("register order not preserved: %v, %v", params[fixed].Name, params[fixed+1].Name)
	}

	v, err := params[fixed].Source.Read()
	if err != nil {
		t.Fatalf("register read: %v", err)
	}
	if got := v.(Double); got != 0.25 {
		t.Fatalf("register value: %v", got)
	}
	if !strings.HasPrefix(ch.commands[0], "MRG:3") {
		t.Fatalf("register read command: %q", ch.commands[0])
	}
}

func TestReadOnlyParametersRejectWrites(t *testing.T) {
	registry, _ := device.NewRegistry(nil, 0)
	b, ch := newBridge()
	params := b.Parameters(registry)

	for _, p := range params {
		if p.Name == "Current" || p.Name == "Voltage" || p.Name == "DeviceStatus" {
			if err := p.Source.Write(Double(1)); !errors.Is(err, ErrNotWritable) {
				t.Fatalf("%s: expected ErrNotWritable, got %v", p.Name, err)
			}
		}
	}
	if len(ch.commands) != 0 {
		t.Fatalf("read-only writes must not touch the device: %q", ch.commands)
	}
}

func TestOutcomeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeGood},
		{device.ErrTimeout, OutcomeCommFailure},
		{device.ErrMalformedReply, OutcomeCommFailure},
		{device.ErrNegativeAck, OutcomeCommFailure},
		{ErrNotWritable, OutcomeNoData},
		{ErrNoData, OutcomeNoData},
	}
	for _, tc := range cases {
		if got := OutcomeOf(tc.err); got != tc.want {
			t.Fatalf("outcome of %v: got %v want %v", tc.err, got, tc.want)
		}
	}
}

func TestWrongTypedWriteIsNoData(t *testing.T) {
	registry, _ := device.NewRegistry(nil, 0)
	b, _ := newBridge()
	params := b.Parameters(registry)

	// OutputOn expects a bool
	if err := params[0].Source.Write(Double(1)); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
