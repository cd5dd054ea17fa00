// Package component wires the eight subscription-engine pieces — wire codec,
// message registry, transport adapter, send/receive engine, event manager,
// service-connection table, subscription loop, and discovery engine — into a
// single embeddable JAUS component. There is no CLI or config file: every
// parameter is a constructor argument or an environment variable read by
// config.Load, matching the reference architecture's posture that a
// component is a library linked into a larger program, not a standalone
// service.
package component

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"jauscore/component/internal/config"
	"jauscore/component/internal/discovery"
	"jauscore/component/internal/engine"
	"jauscore/component/internal/events"
	"jauscore/component/internal/logging"
	"jauscore/component/internal/loop"
	"jauscore/component/internal/messages"
	"jauscore/component/internal/registry"
	"jauscore/component/internal/table"
	"jauscore/component/internal/wire"
	"jauscore/component/internal/xfer"
)

// Component is one running JAUS subsystem/node/component/instance: the
// fully wired subscription engine (C1-C8), ready to have producers
// registered and Run.
type Component struct {
	Self wire.Address

	Registry  *registry.Registry
	Transport *xfer.Adapter
	Engine    *engine.Engine
	Events    *events.Manager
	Table     *table.Table
	Loop      *loop.Loop
	Discovery *discovery.Engine

	log *logging.Logger
	cfg *config.Config
}

// New builds a Component from cfg. cfg.Address must parse as a
// "subsystem.node.component.instance" address (see wire.ParseAddress). now,
// if non-nil, overrides the clock used by the event manager, the
// service-connection table and the subscription loop; the engine and its
// bandwidth limiter always use time.Now. Passing nil uses time.Now
// everywhere, as production embedders should.
func New(cfg *config.Config, log *logging.Logger, now func() time.Time) (*Component, error) {
	self, err := wire.ParseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("component: %w", err)
	}
	if !self.IsValid() {
		return nil, fmt.Errorf("component: address %s may not contain a zero byte", cfg.Address)
	}

	reg := messages.Build()
	transport := xfer.New(cfg, log)
	eng := engine.NewFromConfig(cfg, self, transport, reg, log)

	ev := events.NewManager(eng, reg, log, now)
	tbl := table.New(eng, reg, log, now, 0)

	loopClock := now
	if loopClock == nil {
		loopClock = time.Now
	}
	lp := loop.New(ev, tbl, cfg.LoopInterval, cfg.DiscoveryTTL, cfg.HPTThresholdHz, loopClock)

	nodeManager, err := wire.ParseAddress(fmt.Sprintf("%d.1.1.1", self.Subsystem))
	if err != nil {
		return nil, fmt.Errorf("component: deriving local node manager address: %w", err)
	}

	var allowList []byte
	for _, raw := range cfg.DiscoveryAllowList {
		id, err := parseSubsystemID(raw)
		if err != nil {
			return nil, fmt.Errorf("component: discovery allow-list: %w", err)
		}
		allowList = append(allowList, id)
	}
	disc := discovery.New(self, nodeManager, eng, ev, tbl, log, allowList)
	disc.RegisterReplyHandlers()

	transport.OnStateChange(func(connected bool) {
		if connected {
			return
		}
		ev.InvalidateAll()
		tbl.InvalidateAll()
		disc.DisconnectAll()
	})

	c := &Component{
		Self:      self,
		Registry:  reg,
		Transport: transport,
		Engine:    eng,
		Events:    ev,
		Table:     tbl,
		Loop:      lp,
		Discovery: disc,
		log:       log,
		cfg:       cfg,
	}

	if cfg.ReEstablishByDefault {
		ev.SetReestablishHook(c.reestablishEvent)
		tbl.SetReestablishHook(c.reestablishConnection)
	}

	return c, nil
}

func parseSubsystemID(raw string) (byte, error) {
	id, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid subsystem id %q: %w", raw, err)
	}
	return byte(id), nil
}

// reestablishEvent is the default re-establish policy for lost events: it
// declines to handle anything itself, deferring to the discovery engine's
// Rearm once the provider's subsystem reappears in the subsystem list.
func (c *Component) reestablishEvent(snapshot events.LostEvent) bool {
	c.log.Debug("parking lost event", logging.String("provider", snapshot.Provider.String()),
		logging.Int("event_id", int(snapshot.EventID)))
	return false
}

func (c *Component) reestablishConnection(snapshot table.LostConnection) bool {
	c.log.Debug("parking lost service connection", logging.String("provider", snapshot.Provider.String()),
		logging.Int("instance_id", int(snapshot.InstanceID)))
	return false
}

// Run starts the transport adapter, the send/receive engine's inbound
// dispatch loop, the discovery engine's standing subscription, and the
// subscription loop, blocking until ctx is canceled. Producers should be
// registered on Events/Table, and discovery hooks on Discovery, before Run
// is called.
func (c *Component) Run(ctx context.Context) error {
	errc := make(chan error, 2)
	go func() { errc <- c.Transport.Run(ctx) }()
	go func() { errc <- c.Engine.Run(ctx) }()

	if c.cfg.DiscoveryEnabled {
		if err := c.Discovery.Start(ctx, 5*time.Second); err != nil {
			c.log.Warn("failed to start discovery engine", logging.Error(err))
		}
	}

	go c.Loop.Run(ctx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}
