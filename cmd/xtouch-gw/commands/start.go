package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/juliencr/xtouch-gw/internal/bootstrap"
	"github.com/juliencr/xtouch-gw/internal/config"
	"github.com/juliencr/xtouch-gw/internal/driver"
	"github.com/juliencr/xtouch-gw/internal/driver/httpdriver"
	"github.com/juliencr/xtouch-gw/internal/driver/rawbridge"
	"github.com/juliencr/xtouch-gw/internal/logger"
	"github.com/juliencr/xtouch-gw/internal/midi/controlmap"
	"github.com/juliencr/xtouch-gw/internal/router"
	"github.com/juliencr/xtouch-gw/internal/runner"
	"github.com/juliencr/xtouch-gw/internal/state/actor"
	"github.com/juliencr/xtouch-gw/internal/state/persist"
	"github.com/juliencr/xtouch-gw/internal/surface"
	"github.com/juliencr/xtouch-gw/internal/telemetry/exporter"
	"github.com/juliencr/xtouch-gw/internal/telemetry/health"
	"github.com/juliencr/xtouch-gw/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stateDir        string
	healthAddr      string
	shutdownTimeout time.Duration
	profilingOn     bool
	profilingAddr   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the gateway: load the configuration, open the surface and any
configured app endpoints, and run until interrupted (SIGINT/SIGTERM).

Use --config to point at a configuration file other than the default
location, or set environment variables prefixed XTOUCHGW_ to override
individual keys (e.g. XTOUCHGW_SURFACE_MODE=cc-fader).`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&stateDir, "state-dir", "xtouch-gw-state", "directory for the persisted state store")
	startCmd.Flags().StringVar(&healthAddr, "health-addr", "127.0.0.1:9091", "address for the /healthz and /debug/state endpoints")
	startCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", runner.DefaultShutdownTimeout, "bound on graceful shutdown")
	startCmd.Flags().BoolVar(&profilingOn, "profiling", false, "enable continuous profiling")
	startCmd.Flags().StringVar(&profilingAddr, "profiling-addr", "http://localhost:4040", "pyroscope server address")
}

// blockUntilDone is the Run body for a task with nothing to do beyond
// participating in the supervised shutdown: it returns once ctx is
// cancelled by a sibling task failing or by the process receiving a
// shutdown signal.
func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()

	loader := bootstrap.NewLoader(path)
	snap, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cm := controlmap.Load()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	profSink, err := exporter.Start(exporter.Config{
		Enabled:       profilingOn,
		ServerAddress: profilingAddr,
		BuildVersion:  Version,
	})
	if err != nil {
		return fmt.Errorf("starting profiler: %w", err)
	}

	persistStore, err := persist.Open(persist.Config{Dir: stateDir})
	if err != nil {
		return fmt.Errorf("opening persistence store: %w", err)
	}

	state := actor.New(context.Background(), actor.DefaultWindows(), 0)

	hydrated, err := persistStore.LoadAll(ctx)
	if err != nil {
		logger.Warn("persisted state hydration failed, starting cold", logger.Err(err))
	}
	for app, entries := range hydrated {
		state.HydrateFromSnapshot(app, entries)
	}

	drivers := driver.NewRegistry()
	if err := wireDrivers(ctx, drivers, snap); err != nil {
		return err
	}

	surfIn, surfOut, err := openEndpointPair("surface", snap.Surface.InputEndpointMatch, snap.Surface.OutputEndpointMatch)
	if err != nil {
		return fmt.Errorf("opening surface endpoints: %w", err)
	}
	mode, err := snap.Surface.Mode.ToControlMapMode()
	if err != nil {
		return fmt.Errorf("surface mode: %w", err)
	}

	r, err := router.New(cm, state, drivers, nil, m, snap)
	if err != nil {
		return fmt.Errorf("constructing router: %w", err)
	}
	r.AttachPersistence(persistStore)

	surf := surface.NewDriver(surfIn, surfOut, r, surface.Config{Mode: mode})
	r.AttachSurface(surf)

	if err := surf.Start(ctx); err != nil {
		return fmt.Errorf("starting surface driver: %w", err)
	}
	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("starting router: %w", err)
	}

	watcher := bootstrap.NewWatcher(loader, r)
	if err := watcher.Start(path); err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}

	healthHandler := health.NewHandler(func() health.Snapshot {
		names := drivers.Names()
		statuses := make([]health.DriverStatus, 0, len(names))
		for _, name := range names {
			d, ok := drivers.Get(name)
			if !ok {
				continue
			}
			statuses = append(statuses, health.DriverStatus{App: name, Status: d.ConnectionStatus().String()})
		}
		return health.Snapshot{PageEpoch: r.Epoch(), Drivers: statuses}
	})
	healthServer := &http.Server{Addr: healthAddr, Handler: healthHandler.Mux()}

	run := runner.New(shutdownTimeout)
	run.Add(runner.Task{Name: "state-actor", Run: blockUntilDone, Stop: func(ctx context.Context) error {
		state.Shutdown()
		return nil
	}})
	run.Add(runner.Task{Name: "persistence", Run: blockUntilDone, Stop: func(ctx context.Context) error {
		return persistStore.Close()
	}})
	run.Add(runner.Task{Name: "drivers", Run: blockUntilDone, Stop: func(ctx context.Context) error {
		return drivers.CloseAll()
	}})
	run.Add(runner.Task{Name: "surface", Run: blockUntilDone})
	run.Add(runner.Task{Name: "router", Run: blockUntilDone, Stop: func(ctx context.Context) error {
		r.Stop()
		return nil
	}})
	run.Add(runner.Task{Name: "config-watcher", Run: blockUntilDone, Stop: func(ctx context.Context) error {
		watcher.Stop()
		return nil
	}})
	run.Add(runner.Task{
		Name: "health-server",
		Run: func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() { errCh <- healthServer.ListenAndServe() }()
			select {
			case <-ctx.Done():
				return nil
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
		Stop: func(ctx context.Context) error {
			return healthServer.Shutdown(ctx)
		},
	})
	if profilingOn {
		run.Add(runner.Task{Name: "profiler", Run: blockUntilDone, Stop: func(ctx context.Context) error {
			return profSink.Stop()
		}})
	}

	logger.Info("xtouch-gw starting", logger.Mode(string(snap.Surface.Mode)), logger.Page(snap.Pages[0].Name))
	return run.Run(ctx)
}

// wireDrivers registers one driver per configured app: a rawbridge.Driver
// for apps with a MIDI endpoint match, an httpdriver.Driver for apps with
// an HTTP base URL, and initializes each.
func wireDrivers(ctx context.Context, drivers *driver.Registry, snap config.Snapshot) error {
	for _, app := range snap.Apps {
		var d driver.Driver
		switch {
		case app.HasEndpoint():
			in, out, err := openEndpointPair(app.Name, app.InputEndpointMatch, app.OutputEndpointMatch)
			if err != nil {
				return fmt.Errorf("opening %s bridge endpoints: %w", app.Name, err)
			}
			d = rawbridge.NewDriver(app.Name, in, out, rawbridge.Transform{
				Enabled:       app.RawBridge.Enabled,
				TargetChannel: app.RawBridge.TargetChannel,
				BaseCC:        app.RawBridge.BaseCC,
			})
		case app.HTTPBaseURL != "":
			d = httpdriver.NewDriver(httpdriver.Config{Name: app.Name, BaseURL: app.HTTPBaseURL, Secret: app.HTTPSecret})
		default:
			logger.Warn("app has neither a MIDI endpoint nor an HTTP base URL, skipping", logger.App(app.Name))
			continue
		}
		if err := drivers.Register(d); err != nil {
			return fmt.Errorf("registering driver %q: %w", app.Name, err)
		}
		if err := d.Init(ctx, snap); err != nil {
			return fmt.Errorf("initializing driver %q: %w", app.Name, err)
		}
	}
	return nil
}
