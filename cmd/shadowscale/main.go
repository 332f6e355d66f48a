// Command shadowscale runs the deterministic world-simulation server: the
// single-writer simulation loop, the command ingress, the two snapshot
// broadcast listeners, the optional log stream, and the config watchers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/shadow-scale/internal/catalogstore"
	"github.com/talgya/shadow-scale/internal/command"
	"github.com/talgya/shadow-scale/internal/ecs"
	"github.com/talgya/shadow-scale/internal/engine"
	"github.com/talgya/shadow-scale/internal/netio"
	"github.com/talgya/shadow-scale/internal/scriptbridge"
	"github.com/talgya/shadow-scale/internal/simstate"
	"github.com/talgya/shadow-scale/internal/watch"
	"github.com/talgya/shadow-scale/internal/worldconfig"
)

func main() {
	logServer := &netio.LogStreamServer{}

	var logOut io.Writer = os.Stdout
	logOut = io.MultiWriter(logOut, logServer)
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		// Non-interactive runs (systemd, containers) get full source refs
		// for log aggregation; terminals stay compact.
		opts.AddSource = true
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, opts)))

	slog.Info("Shadow-Scale world simulation server")

	configs := worldconfig.NewRegistry()
	cfg := buildConfig(configs)
	configs.SetSimulation(cfg)

	queue := command.NewQueue()
	sim := engine.New(configs, queue)

	bridge := scriptbridge.NewManager(queue)
	sim.OnEvents = bridge.Dispatch
	sim.OnCommandApplied = bridge.NotifyApplied

	if path := os.Getenv("SHADOWSCALE_CATALOG_DB"); path != "" {
		store, err := catalogstore.Open(path)
		if err != nil {
			slog.Warn("catalog store unavailable", "path", path, "error", err)
		} else {
			defer store.Close()
			persistCatalogs(store, sim)
			prev := sim.OnCommandApplied
			sim.OnCommandApplied = func(cmd command.Command) {
				store.AppendAudit(sim.Tick(), fmt.Sprintf("%T", cmd), auditDetail(cmd))
				prev(cmd)
			}
		}
	}

	// Bind all four sockets up front; a bind failure is the one fatal
	// startup condition.
	ingress := &netio.CommandServer{Queue: queue}
	binaryCast := &netio.BroadcastServer{Name: "binary"}
	flatCast := &netio.BroadcastServer{Name: "flat"}

	if err := ingress.Listen(cfg.CommandBindAddr); err != nil {
		slog.Error("failed to bind command ingress", "addr", cfg.CommandBindAddr, "error", err)
		os.Exit(1)
	}
	if err := binaryCast.Listen(cfg.SnapshotBindAddr); err != nil {
		slog.Error("failed to bind snapshot listener", "addr", cfg.SnapshotBindAddr, "error", err)
		os.Exit(1)
	}
	if err := flatCast.Listen(cfg.SnapshotFlatBindAddr); err != nil {
		slog.Error("failed to bind flat snapshot listener", "addr", cfg.SnapshotFlatBindAddr, "error", err)
		os.Exit(1)
	}
	logEnabled := cfg.LogBindAddr != ""
	if logEnabled {
		if err := logServer.Listen(cfg.LogBindAddr); err != nil {
			slog.Error("failed to bind log stream", "addr", cfg.LogBindAddr, "error", err)
			os.Exit(1)
		}
	}

	sim.Broadcast = func(binary, flat []byte) {
		binaryCast.Publish(binary)
		flatCast.Publish(flat)
	}
	// Command replies ride the flat channel; the sender resource lets
	// subsystem code answer without a reference to the network layer.
	sender := ecs.MustGet[*simstate.CommandSender](sim.World.Resources)
	sender.Send = func(_ uint64, payload []byte) { flatCast.Publish(payload) }

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return ingress.Serve(ctx) })
	group.Go(func() error { return binaryCast.Serve(ctx) })
	group.Go(func() error { return flatCast.Serve(ctx) })
	if logEnabled {
		group.Go(func() error { return logServer.Serve(ctx) })
	}

	watcher := startWatchers(queue)
	if watcher != nil {
		defer watcher.Stop()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig.String())
		cancel()
		queue.Close()
	}()

	// The simulation thread owns the world; everything above feeds it
	// through the queue.
	sim.Run()

	if err := group.Wait(); err != nil {
		slog.Error("listener group exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete", "tick", sim.Tick())
}

// buildConfig assembles the simulation config from env vars over the
// builtin defaults.
func buildConfig(configs *worldconfig.Registry) simstate.Config {
	cfg := *configs.Simulation()
	cfg.Seed = envInt64OrDefault("SHADOWSCALE_SEED", cfg.Seed)
	cfg.GridWidth = envIntOrDefault("SHADOWSCALE_GRID_WIDTH", cfg.GridWidth)
	cfg.GridHeight = envIntOrDefault("SHADOWSCALE_GRID_HEIGHT", cfg.GridHeight)
	cfg.CommandBindAddr = envOrDefault("SHADOWSCALE_COMMAND_BIND", cfg.CommandBindAddr)
	cfg.SnapshotBindAddr = envOrDefault("SHADOWSCALE_SNAPSHOT_BIND", cfg.SnapshotBindAddr)
	cfg.SnapshotFlatBindAddr = envOrDefault("SHADOWSCALE_SNAPSHOT_FLAT_BIND", cfg.SnapshotFlatBindAddr)
	cfg.LogBindAddr = envOrDefault("SHADOWSCALE_LOG_BIND", cfg.LogBindAddr)
	cfg.SnapshotHistoryLimit = envIntOrDefault("SHADOWSCALE_HISTORY_LIMIT", cfg.SnapshotHistoryLimit)
	return cfg
}

// startWatchers wires the reloadable config paths to the command queue;
// unset paths are simply not watched.
func startWatchers(queue *command.Queue) *watch.Watcher {
	var targets []watch.Target
	if p := os.Getenv("SHADOWSCALE_SIM_CONFIG"); p != "" {
		targets = append(targets, watch.Target{Path: p, Kind: command.ReloadSimulation})
	}
	if p := os.Getenv("SHADOWSCALE_PIPELINE_CONFIG"); p != "" {
		targets = append(targets, watch.Target{Path: p, Kind: command.ReloadTurnPipeline})
	}
	if p := os.Getenv("SHADOWSCALE_OVERLAY_CONFIG"); p != "" {
		targets = append(targets, watch.Target{Path: p, Kind: command.ReloadSnapshotOverlays})
	}
	if len(targets) == 0 {
		return nil
	}
	watcher, err := watch.New(queue, targets)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return nil
	}
	watcher.Start()
	slog.Info("config watchers started", "targets", len(targets))
	return watcher
}

// persistCatalogs mirrors the live espionage and crisis catalogs into the
// store so the next boot can warm-start.
func persistCatalogs(store *catalogstore.DB, sim *engine.Simulation) {
	esp := ecs.MustGet[*simstate.EspionageCatalog](sim.World.Resources)
	if blob, err := json.Marshal(esp); err == nil {
		if err := store.SaveCatalog("espionage", blob, sim.Tick()); err != nil {
			slog.Warn("espionage catalog persist failed", "error", err)
		}
	}
	crisis := ecs.MustGet[*simstate.CrisisCatalog](sim.World.Resources)
	if blob, err := json.Marshal(crisis); err == nil {
		if err := store.SaveCatalog("crisis", blob, sim.Tick()); err != nil {
			slog.Warn("crisis catalog persist failed", "error", err)
		}
	}
}

// auditDetail renders a one-line description of an applied command.
func auditDetail(cmd command.Command) string {
	switch c := cmd.(type) {
	case command.Turn:
		return fmt.Sprintf("steps=%d", c.Steps)
	case command.Rollback:
		return fmt.Sprintf("tick=%d", c.Tick)
	case command.ResetMap:
		return fmt.Sprintf("%dx%d", c.Width, c.Height)
	case command.ReloadConfig:
		return fmt.Sprintf("kind=%d path=%s", c.Kind, c.Path)
	default:
		return fmt.Sprintf("%+v", c)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring non-numeric env value", "key", key, "value", v)
	}
	return defaultVal
}

func envInt64OrDefault(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		slog.Warn("ignoring non-numeric env value", "key", key, "value", v)
	}
	return defaultVal
}
