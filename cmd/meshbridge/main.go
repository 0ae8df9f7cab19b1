package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MatusOllah/slogcolor"

	"github.com/kabili207/mesh-discord-bridge/internal/web"
	"github.com/kabili207/mesh-discord-bridge/pkg/bridge"
	"github.com/kabili207/mesh-discord-bridge/pkg/config"
	"github.com/kabili207/mesh-discord-bridge/pkg/directory"
	"github.com/kabili207/mesh-discord-bridge/pkg/store"
	"github.com/kabili207/mesh-discord-bridge/pkg/topology"
	"github.com/kabili207/mesh-discord-bridge/pkg/transport/broker"
	"github.com/kabili207/mesh-discord-bridge/pkg/transport/mqtt"
	"github.com/kabili207/mesh-discord-bridge/pkg/transport/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("bridge exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Configuration, log *slog.Logger) error {
	stores, err := store.Open(cfg.Database.Path, log, store.Options{
		PoolSize:             cfg.Database.PoolSize,
		Retention:            cfg.Database.Retention,
		VacuumThresholdBytes: cfg.Database.VacuumThresholdBytes,
		MaintenanceInterval:  cfg.Database.MaintenanceInterval,
	})
	if err != nil {
		return err
	}
	defer stores.Close()

	if cfg.Broker.Enabled {
		bk, err := broker.New(broker.Options{
			Address:  cfg.Broker.Address,
			Username: cfg.Broker.Username,
			Password: cfg.Broker.Password,
		}, log)
		if err != nil {
			return err
		}
		bk.Start()
		defer bk.Close()
	}

	dir := directory.New(stores.Nodes, log)
	defer dir.Stop()

	chat := webhook.New(cfg.Chat.WebhookURL, log)

	// The radio transport needs the packet pipeline and the bridge needs
	// the radio, so the transport is built first against the bridge's
	// processor once the bridge exists.
	var radio *mqtt.Transport
	b := bridge.New(nil, chat, stores, dir, bridge.Options{
		QueueSize:         cfg.Bridge.QueueSize,
		BatchSize:         cfg.Bridge.BatchSize,
		DrainInterval:     cfg.Bridge.DrainInterval,
		RefreshInterval:   cfg.Bridge.RefreshInterval,
		CleanupInterval:   cfg.Bridge.CleanupInterval,
		SummaryInterval:   time.Minute,
		MovementThreshold: cfg.Bridge.MovementThreshold,
		ChannelName:       cfg.Chat.ChannelName,
	}, log)

	radio, err = mqtt.New(mqtt.Options{
		BrokerURL:  cfg.Mesh.BrokerURL,
		ClientID:   cfg.Mesh.ClientID,
		Username:   cfg.Mesh.Username,
		Password:   cfg.Mesh.Password,
		TopicRoot:  cfg.Mesh.TopicRoot,
		Channel:    cfg.Mesh.Channel,
		ChannelKey: cfg.Mesh.ChannelKey,
		GatewayID:  cfg.Mesh.GatewayID,
	}, b.Processor(), log)
	if err != nil {
		return err
	}
	b.SetRadio(radio)

	if err := radio.Connect(); err != nil {
		return err
	}
	defer radio.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b.Start(ctx)
	defer b.Stop()

	topo := topology.New(stores)
	status := web.NewStatusServer(cfg.ListenAddr, stores, b, topo, log)
	status.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status.Shutdown(shutdownCtx)
	}()

	log.Info("bridge running",
		"mesh_broker", cfg.Mesh.BrokerURL,
		"channel", cfg.Mesh.Channel,
		"listen_addr", cfg.ListenAddr)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func newLogger(level string) *slog.Logger {
	opts := *slogcolor.DefaultOptions
	opts.Level = parseLevel(level)
	return slog.New(slogcolor.NewHandler(os.Stderr, &opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
