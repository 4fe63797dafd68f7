package mqttbridge

import (
	"context"
	"sync"

	"github.com/busprobridge/core/internal/bus"
	"github.com/busprobridge/core/internal/cover"
	"github.com/busprobridge/core/internal/device"
	"github.com/busprobridge/core/internal/infrastructure/mqtt"
	"github.com/busprobridge/core/internal/store"
)

// Logger is the narrow logging interface the bridge depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler is the subset of bus.Scheduler the bridge dispatches light
// commands onto. Covers go through cover.Engine instead, which applies its
// own pacing/coalescing rules on top of the same scheduler.
type Scheduler interface {
	EnqueueMotion(addr bus.ChannelAddress, tg bus.Telegram)
}

// Registry is the subset of device.Registry the bridge reads the device
// catalogue through for discovery and command routing.
type Registry interface {
	ListLights() []device.Light
	ListCovers() []device.Cover
	ListCoverGroups() []device.CoverGroup
	ListDryContacts() []device.DryContact
	ListSensors(kind device.Kind) []device.Sensor
	GetCover(addr device.Address) (device.Cover, error)
	GetCoverGroup(id string) (device.CoverGroup, error)
}

// CoverEngine is the subset of cover.Engine the bridge drives cover and
// cover-group commands through.
type CoverEngine interface {
	HandleCommand(ctx context.Context, addr device.Address, cmd cover.Command, target int) error
	Snapshot(addr device.Address) (device.CoverState, bool)
}

// Bridge is the MQTT discovery/state bridge (C7). It holds everything
// needed to (re)publish discovery and state, and to route inbound command
// topics onto the bus scheduler and cover engine.
type Bridge struct {
	mqtt      *mqtt.Client
	topics    mqtt.Topics
	registry  Registry
	cache     *store.Cache
	cover     CoverEngine
	scheduler Scheduler
	logger    Logger

	mu          sync.Mutex
	lightStates map[device.Address]device.LightState
}

// New returns a Bridge publishing under topics and driving commands through
// scheduler (lights) and coverEngine (covers and cover groups).
func New(client *mqtt.Client, topics mqtt.Topics, registry Registry, cache *store.Cache, coverEngine CoverEngine, scheduler Scheduler) *Bridge {
	return &Bridge{
		mqtt:        client,
		topics:      topics,
		registry:    registry,
		cache:       cache,
		cover:       coverEngine,
		scheduler:   scheduler,
		logger:      noopLogger{},
		lightStates: make(map[device.Address]device.LightState),
	}
}

// SetLogger sets the bridge's logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start wires the reconnect hook and performs the initial
// discovery-publish + subscribe. Call once after the MQTT client is
// connected.
func (b *Bridge) Start(ctx context.Context) error {
	b.mqtt.SetOnConnect(func() {
		b.logger.Info("mqtt (re)connected, republishing discovery and resubscribing")
		if err := b.PublishDiscovery(ctx); err != nil {
			b.logger.Error("discovery republish failed", "error", err)
		}
		if err := b.Subscribe(ctx); err != nil {
			b.logger.Error("resubscribe failed", "error", err)
		}
		if err := b.PublishAllStates(ctx); err != nil {
			b.logger.Error("state republish failed", "error", err)
		}
	})

	if err := b.PublishDiscovery(ctx); err != nil {
		return err
	}
	if err := b.Subscribe(ctx); err != nil {
		return err
	}
	return b.PublishAllStates(ctx)
}

// PublishAllStates republishes the last-known state of every cover the
// engine is tracking. Lights have no bus-side readback (§4.6 does not
// decode OpReadStatusOfChannelsResponse), so there is nothing to replay
// for them beyond what the next command will optimistically echo.
func (b *Bridge) PublishAllStates(ctx context.Context) error {
	for _, c := range b.registry.ListCovers() {
		state, ok := b.cover.Snapshot(c.Address)
		if !ok {
			continue
		}
		if err := b.PublishCoverState(ctx, c.Address, state); err != nil {
			return err
		}
	}
	return nil
}
