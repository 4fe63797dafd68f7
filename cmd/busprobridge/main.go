// busprobridge bridges an HDL BusPro field-bus gateway to MQTT, publishing
// Home Assistant MQTT Discovery configs for every light, cover, cover
// group, dry contact, and sensor in its catalogue, and routing inbound
// MQTT commands back onto the bus.
//
// For architecture details, see: SPEC_FULL.md
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/busprobridge/core/internal/api"
	"github.com/busprobridge/core/internal/bus"
	"github.com/busprobridge/core/internal/cover"
	"github.com/busprobridge/core/internal/device"
	"github.com/busprobridge/core/internal/infrastructure/config"
	"github.com/busprobridge/core/internal/infrastructure/logging"
	"github.com/busprobridge/core/internal/infrastructure/mqtt"
	"github.com/busprobridge/core/internal/mqttbridge"
	"github.com/busprobridge/core/internal/sensors"
	"github.com/busprobridge/core/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "/etc/busprobridge/config.yaml"

// sensorSnifferSize bounds how many unrecognized telegrams the sniffer
// keeps for diagnostics when debug is enabled.
const sensorSnifferSize = 200

func main() {
	fmt.Printf("busprobridge %s (%s) built %s\n", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the config file path from BUSPROBRIDGE_CONFIG, or
// defaultConfigPath if unset.
func getConfigPath() string {
	if v := os.Getenv("BUSPROBRIDGE_CONFIG"); v != "" {
		return v
	}
	return defaultConfigPath
}

// run wires every component together and blocks until ctx is cancelled.
// Returning an error, rather than calling os.Exit directly, keeps main
// testable.
func run(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting busprobridge", "version", version, "commit", commit)

	st := store.New(cfg.Store.Path)
	st.SetLogger(logger)

	repo := store.NewDeviceRepository(st)
	registry := device.NewRegistry(repo)
	registry.SetLogger(logger)
	if err := registry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading device catalogue: %w", err)
	}

	cache := store.NewCache()

	transport, err := bus.NewTransport(bus.Config{
		LocalPort:      cfg.Bus.LocalUDPPort,
		GatewayHost:    cfg.Bus.GatewayHost,
		GatewayPort:    cfg.Bus.GatewayPort,
		DebugTelegrams: cfg.DebugTelegram,
	})
	if err != nil {
		return fmt.Errorf("creating bus transport: %w", err)
	}
	transport.SetLogger(logger)

	scheduler := bus.NewScheduler(transport)
	scheduler.SetLogger(logger)

	engine := cover.NewEngine(registry, scheduler)
	engine.SetLogger(logger)
	persisted, _ := st.ReadRaw(ctx)
	for _, c := range registry.ListCovers() {
		engine.Track(c, persisted.Covers[c.Address.String()].Position)
	}

	sniffer := sensors.NewSniffer(sensorSnifferSize)
	if cfg.Debug {
		sniffer.Start()
	}
	dispatcher := sensors.NewDispatcher(registry, sniffer)

	topics := mqtt.NewTopics(cfg.MQTT.Prefix)

	mqttClient, err := mqtt.Connect(cfg.MQTT, topics.Availability())
	if err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	mqttClient.SetLogger(logger)

	bridge := mqttbridge.New(mqttClient, topics, registry, cache, engine, scheduler)
	bridge.SetLogger(logger)

	engine.SetOnUpdate(func(addr device.Address, state device.CoverState) {
		if err := bridge.PublishCoverState(ctx, addr, state); err != nil {
			logger.Error("publishing cover state", "address", addr.String(), "error", err)
		}
		for _, group := range groupsContaining(registry.ListCoverGroups(), addr) {
			if err := bridge.PublishCoverGroupState(ctx, group.ID); err != nil {
				logger.Error("publishing cover group state", "group", group.ID, "error", err)
			}
		}
	})

	transport.SetOnTelegram(func(tg bus.Telegram) {
		handleTelegram(ctx, tg, registry, engine, dispatcher, bridge, logger)
	})

	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Auth:     cfg.Auth,
		Logger:   logger,
		Registry: registry,
		MQTT:     mqttClient,
		Topics:   topics,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("starting bus transport: %w", err)
	}
	scheduler.Start(ctx)
	engine.Start(ctx)

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting mqtt bridge: %w", err)
	}

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	logger.Info("busprobridge running")
	<-ctx.Done()

	logger.Info("shutdown signal received, cleaning up")

	if err := apiServer.Close(); err != nil {
		logger.Error("closing api server", "error", err)
	}
	engine.Stop()
	scheduler.Stop()
	if err := transport.Close(); err != nil {
		logger.Error("closing bus transport", "error", err)
	}
	if err := mqttClient.Close(); err != nil {
		logger.Error("closing mqtt client", "error", err)
	}
	sniffer.Stop()

	logger.Info("busprobridge stopped")
	return nil
}

// groupsContaining returns every group that lists addr as a member, used
// to republish aggregated group state whenever one of its members moves.
func groupsContaining(groups []device.CoverGroup, addr device.Address) []device.CoverGroup {
	var out []device.CoverGroup
	for _, g := range groups {
		for _, member := range g.MemberAddresses {
			if member == addr {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// handleTelegram routes one decoded bus telegram to whichever subsystem
// owns its opcode: cover motion status reconciles the cover engine, every
// other recognized opcode goes through the sensor dispatcher, and dry
// contact readings are republished immediately since they have no engine
// of their own to hold state.
func handleTelegram(ctx context.Context, tg bus.Telegram, registry *device.Registry, engine *cover.Engine, dispatcher *sensors.Dispatcher, bridge *mqttbridge.Bridge, logger *logging.Logger) {
	switch tg.OpCode {
	case bus.OpCurtainSwitchStatusResponse, bus.OpControlPanelControlResponse:
		handleCoverBusStatus(tg, registry, engine)
		return
	}

	readings, contact := dispatcher.Handle(tg)
	for _, r := range readings {
		if err := bridge.PublishSensorState(ctx, r.Kind, r.Address, r.SensorID, r.Value); err != nil {
			logger.Error("publishing sensor state", "address", r.Address.String(), "error", err)
		}
	}
	if contact != nil {
		state := device.DryContactState{On: contact.On, X: contact.X}
		if err := bridge.PublishDryContactState(ctx, contact.Address, state); err != nil {
			logger.Error("publishing dry contact state", "address", contact.Address.String(), "error", err)
		}
	}
}

// handleCoverBusStatus reconciles every cover sharing the telegram's
// subnet/device with the bus-observed motion status. The status telegram
// carries no channel, so every cover at that node address is notified;
// HandleBusStatus is a no-op for a cover the engine isn't tracking.
func handleCoverBusStatus(tg bus.Telegram, registry *device.Registry, engine *cover.Engine) {
	if len(tg.Payload) == 0 {
		return
	}
	status := cover.BusStatus(tg.Payload[0])
	for _, c := range registry.ListCovers() {
		if c.Address.Subnet == tg.SourceAddress.Subnet && c.Address.Device == tg.SourceAddress.Device {
			engine.HandleBusStatus(c.Address, status)
		}
	}
}
