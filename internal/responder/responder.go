// Package responder answers the binary UDP control protocol.
package responder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"psbridge/internal/device"
	"psbridge/internal/observability"
	"psbridge/internal/udpwire"
)

// DefaultPollInterval is the cooperative sleep between receive polls.
const DefaultPollInterval = 100 * time.Microsecond

// Exchanger is the serialized command channel the responder shares with
// the bridge. device.Channel holds its lock across the full round trip,
// which keeps the two contexts mutually exclusive per exchange.
type Exchanger interface {
	Exchange(command string) (string, error)
}

// Config holds the responder runtime parameters.
type Config struct {
	ListenAddr   string
	PollInterval time.Duration
}

// Responder is the state-free polling loop over the control socket.
//
// Malformed datagrams (wrong length, wrong magic) are dropped without a
// reply and without any device interaction; the protocol defines no
// error reply. A channel error during the mandatory query phase does not
// abort the loop: the failed field is substituted with 0 and the
// best-effort reply is still sent. Reply send failures are logged and the
// loop continues. The one exception is a partial send on the command
// channel, which leaves the device stream desynchronized and terminates
// the loop.
type Responder struct {
	cfg     Config
	ch      Exchanger
	log     zerolog.Logger
	conn    *net.UDPConn
	counter uint64
}

func New(cfg Config, ch Exchanger, logger zerolog.Logger) *Responder {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Responder{cfg: cfg, ch: ch, log: logger}
}

// Listen binds the control socket.
func (r *Responder) Listen() error {
	addr, err := net.ResolveUDPAddr("udp4", r.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("responder: resolve %s: %w", r.cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("responder: bind %s: %w", r.cfg.ListenAddr, err)
	}
	r.conn = conn
	r.log.Info().Str("addr", conn.LocalAddr().String()).Msg("control socket open")
	return nil
}

// LocalAddr returns the bound address, nil before Listen.
func (r *Responder) LocalAddr() *net.UDPAddr {
	if r.conn == nil {
		return nil
	}
	addr, _ := r.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Run polls the control socket until ctx is cancelled, binding it first
// if Listen has not run. The shutdown check happens once per poll; an
// in-flight exchange sequence always runs to completion or timeout.
func (r *Responder) Run(ctx context.Context) error {
	if r.conn == nil {
		if err := r.Listen(); err != nil {
			return err
		}
	}
	conn := r.conn
	defer conn.Close()

	local := localEndpoint(conn)
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Uint64("answered", r.counter).Msg("responder stopped")
			return nil
		default:
		}

		// The deadline doubles as the cooperative sleep between polls.
		if err := conn.SetReadDeadline(time.Now().Add(r.cfg.PollInterval)); err != nil {
			return fmt.Errorf("responder: set read deadline: %w", err)
		}
		n, client, err := conn.ReadFromUDP(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			return fmt.Errorf("responder: receive: %w", err)
		}

		frame, ok, err := r.handle(buf[:n], client, local)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := conn.WriteToUDP(frame, client); err != nil {
			observability.RecordReply(observability.ReplyFailed)
			r.log.Warn().Str("client", client.String()).Err(err).Msg("reply send failed")
			continue
		}
		observability.RecordReply(observability.ReplySent)
	}
}

// handle processes one datagram and returns the reply frame; ok=false
// drops the datagram. A non-nil error is fatal to the loop (partial
// send: order-based correlation cannot be trusted afterwards).
func (r *Responder) handle(datagram []byte, client *net.UDPAddr, local udpwire.Endpoint) ([]byte, bool, error) {
	pkt, err := udpwire.DecodeControl(datagram)
	if err != nil {
		r.dropDatagram(err, len(datagram), client)
		return nil, false, nil
	}

	if pkt.Set != 0 {
		if err := r.applySetpoints(pkt); err != nil {
			return nil, false, err
		}
	}

	resp, err := r.queryAll()
	if err != nil {
		return nil, false, err
	}

	r.counter++
	remote := udpwire.Endpoint{IP: client.IP, Port: uint16(client.Port)}
	frame := udpwire.BuildFrame(local, remote, uint16(r.counter), udpwire.EncodeResponse(resp))
	observability.RecordDatagram(observability.DatagramAnswered)
	return frame, true, nil
}

// applySetpoints issues the two setpoint writes, current first. A
// negative acknowledgement is logged but never aborts the exchange.
func (r *Responder) applySetpoints(pkt udpwire.ControlPacket) error {
	amps := udpwire.Native(pkt.CurrentSetpoint)
	if err := r.write(device.CommandSetCurrent(amps)); err != nil {
		if errors.Is(err, device.ErrPartialSend) {
			return err
		}
		r.log.Warn().Float64("amps", amps).Err(err).Msg("current setpoint rejected")
	}
	volts := udpwire.Native(pkt.VoltageSetpoint)
	if err := r.write(device.CommandSetVoltage(volts)); err != nil {
		if errors.Is(err, device.ErrPartialSend) {
			return err
		}
		r.log.Warn().Float64("volts", volts).Err(err).Msg("voltage setpoint rejected")
	}
	return nil
}

func (r *Responder) write(command string) error {
	reply, err := r.exchange(command)
	if err != nil {
		return err
	}
	return device.Ack(reply)
}

// queryAll performs the five mandatory round trips in fixed order:
// status, current setpoint, voltage setpoint, current readback, voltage
// readback. A failed query leaves its field at 0; the best-effort reply
// is still sent.
func (r *Responder) queryAll() (udpwire.ResponsePacket, error) {
	var resp udpwire.ResponsePacket

	reply, err := r.exchange(device.CommandStatus())
	if err == nil {
		var status uint32
		if status, err = device.ParseStatus(reply); err == nil {
			resp.Status = status
		}
	}
	if err != nil {
		if errors.Is(err, device.ErrPartialSend) {
			return resp, err
		}
		r.log.Warn().Err(err).Msg("status query failed")
	}

	queries := []struct {
		command string
		parse   func(string) (float64, error)
		field   *int64
	}{
		{device.CommandQueryCurrentSetpoint(), device.ParseCurrentSetpoint, &resp.CurrentSetpoint},
		{device.CommandQueryVoltageSetpoint(), device.ParseVoltageSetpoint, &resp.VoltageSetpoint},
		{device.CommandReadCurrent(), device.ParseCurrentReadback, &resp.CurrentReadback},
		{device.CommandReadVoltage(), device.ParseVoltageReadback, &resp.VoltageReadback},
	}
	for _, q := range queries {
		micro, err := r.queryMicro(q.command, q.parse)
		if err != nil {
			return resp, err
		}
		*q.field = micro
	}
	return resp, nil
}

// queryMicro performs one query round trip; only a partial send is
// returned as an error, everything else substitutes 0.
func (r *Responder) queryMicro(command string, parse func(string) (float64, error)) (int64, error) {
	reply, err := r.exchange(command)
	if err != nil {
		if errors.Is(err, device.ErrPartialSend) {
			return 0, err
		}
		r.log.Warn().Str("command", commandKind(command)).Err(err).Msg("query failed")
		return 0, nil
	}
	native, err := parse(reply)
	if err != nil {
		r.log.Warn().Str("command", commandKind(command)).Err(err).Msg("query failed")
		return 0, nil
	}
	return udpwire.Micro(native), nil
}

func (r *Responder) exchange(command string) (string, error) {
	start := time.Now()
	reply, err := r.ch.Exchange(command)
	observability.RecordRoundTrip(commandKind(command), err, time.Since(start))
	return reply, err
}

func (r *Responder) dropDatagram(err error, length int, client *net.UDPAddr) {
	disposition := observability.DatagramBadLength
	if length == udpwire.ControlSize {
		disposition = observability.DatagramBadMagic
	}
	observability.RecordDatagram(disposition)
	r.log.Debug().
		Str("client", client.String()).
		Int("length", length).
		Err(err).
		Msg("dropped control datagram")
}

func localEndpoint(conn *net.UDPConn) udpwire.Endpoint {
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return udpwire.Endpoint{}
	}
	return udpwire.Endpoint{IP: addr.IP, Port: uint16(addr.Port)}
}

func commandKind(command string) string {
	for i := 0; i < len(command); i++ {
		switch command[i] {
		case ':', '\r', '\n':
			return command[:i]
		}
	}
	return command
}
