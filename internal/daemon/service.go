// Package daemon owns the bridge process lifecycle.
package daemon

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"psbridge/internal/bridge"
	"psbridge/internal/config"
	"psbridge/internal/device"
	"psbridge/internal/observability"
	"psbridge/internal/ops"
	"psbridge/internal/responder"
)

// DefaultHeartbeatInterval paces the liveness log line.
const DefaultHeartbeatInterval = 30 * time.Second

// Service wires the command channel, registry, bridge, responder and
// ops server together and runs them until a process signal.
type Service struct {
	cfg       config.Config
	log       zerolog.Logger
	channel   *device.Channel
	registry  *device.Registry
	bridge    *bridge.Bridge
	responder *responder.Responder
	ops       *ops.Server
	heartbeat time.Duration
}

// New validates configuration-derived state and connects the command
// channel. Configuration violations are fatal here, before any listening
// socket is opened.
func New(cfg config.Config, logger zerolog.Logger) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	registry, err := device.NewRegistry(cfg.DeviceRegisters(), cfg.MaxRegisters)
	if err != nil {
		return nil, err
	}

	channel, err := device.Dial(cfg.CommandAddr, cfg.CommandTimeout, logger)
	if err != nil {
		return nil, err
	}

	br := bridge.New(channel, logger)
	resp := responder.New(responder.Config{
		ListenAddr:   cfg.UDPAddr,
		PollInterval: cfg.PollInterval,
	}, channel, logger)

	s := &Service{
		cfg:       cfg,
		log:       logger,
		channel:   channel,
		registry:  registry,
		bridge:    br,
		responder: resp,
		heartbeat: DefaultHeartbeatInterval,
	}
	if cfg.OpsAddr != "" {
		s.ops = ops.New(cfg.DeviceName, br, registry, cfg.CorsOrigins, logger)
	}
	return s, nil
}

// Bridge exposes the parameter adapter for the external object-model
// layer to build its accessors from.
func (s *Service) Bridge() *bridge.Bridge {
	return s.bridge
}

// Parameters returns the full parameter set, fixed parameters first,
// then one accessor per configured register.
func (s *Service) Parameters() []bridge.Parameter {
	return s.bridge.Parameters(s.registry)
}

// Run blocks until SIGINT/SIGTERM. In-flight device round trips run to
// completion or timeout; only the poll points observe cancellation.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx)
}

func (s *Service) serve(ctx context.Context) error {
	defer s.channel.Close()

	observability.RegisterMetrics()
	s.log.Info().
		Str("device", s.cfg.DeviceName).
		Str("command_addr", s.cfg.CommandAddr).
		Str("udp_addr", s.cfg.UDPAddr).
		Int("registers", s.registry.Len()).
		Msg("bridge starting")

	responderErr := make(chan error, 1)
	go func() {
		responderErr <- s.responder.Run(ctx)
	}()

	opsErr := make(chan error, 1)
	if s.ops != nil {
		go func() {
			opsErr <- s.ops.Run(ctx, s.cfg.OpsAddr)
		}()
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("shutdown")
			// let the responder observe cancellation and return;
			// its exit channel has exactly one send and no other
			// branch has consumed it yet
			return <-responderErr
		case err := <-responderErr:
			// the responder returns nil only once ctx is cancelled,
			// so a clean exit ends serve too
			return err
		case err := <-opsErr:
			if err != nil {
				return err
			}
		case <-ticker.C:
			s.log.Info().Str("device", s.cfg.DeviceName).Msg("heartbeat")
		}
	}
}

// IsFatal reports whether an error must terminate the process: a partial
// send breaks order-based correlation for good, and configuration errors
// never self-heal.
func IsFatal(err error) bool {
	return errors.Is(err, device.ErrPartialSend) || errors.Is(err, config.ErrInvalid)
}
