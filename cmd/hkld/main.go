package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/stuwilkins/hkl/internal/api"
	"github.com/stuwilkins/hkl/internal/auth"
	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/metrics"
	"github.com/stuwilkins/hkl/internal/persist"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/sample"
	"github.com/stuwilkins/hkl/internal/scan"
	"github.com/stuwilkins/hkl/internal/session"
	"github.com/stuwilkins/hkl/internal/stream"
	"github.com/stuwilkins/hkl/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("HKL_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	snapCfg := loadSnapshotConfig(logger)
	store := persist.NewStore(snapCfg.Dir, snapCfg.MaxFiles)

	// Attempt to restore the last saved session on startup.
	list, err := restoreLatest(store, logger)
	if err != nil {
		logger.Info("no usable snapshot, starting a fresh session", "error", err)
		list, err = newSession(logger)
		if err != nil {
			logger.Error("could not create session", "error", err)
			os.Exit(1)
		}
	}
	sess := session.New(list)

	scanCfg := loadScanConfig(logger)
	pool := scan.NewWorkerPool(scanCfg.Workers, logger)
	metrics.SetScanWorkers(pool.Workers())

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(sess, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Session:       sess,
		Scans:         pool,
		Store:         store,
		Stream:        streamHandler,
		Web:           web.Content,
		MaxScanPoints: scanCfg.MaxPoints,
		TrustProxy:    streamCfg.TrustProxy,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "geometry", list.Geometry().Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()
	srv.SetReady(true)

	<-ctx.Done()
	logger.Info("shutting down server...")
	srv.SetReady(false)

	if snapCfg.SaveOnExit {
		var snap persist.Snapshot
		_ = sess.View(func(l *pseudo.EngineList) error {
			snap = persist.Capture(l, time.Now())
			return nil
		})
		if path, err := store.Save(snap); err != nil {
			metrics.IncSnapshots("save_error")
			logger.Warn("failed to save session on exit", "error", err)
		} else {
			metrics.IncSnapshots("saved")
			logger.Info("saved session", "path", path)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func restoreLatest(store *persist.Store, logger *slog.Logger) (*pseudo.EngineList, error) {
	snap, ts, err := store.LoadLatest()
	if err != nil {
		return nil, err
	}
	list, err := snap.Restore()
	if err != nil {
		metrics.IncSnapshots("restore_error")
		return nil, err
	}
	metrics.IncSnapshots("restored")
	logger.Info("restored session from snapshot",
		"geometry", list.Geometry().Type,
		"saved_at", ts.Format(time.RFC3339),
	)
	return list, nil
}

func newSession(logger *slog.Logger) (*pseudo.EngineList, error) {
	typ := os.Getenv("HKL_GEOMETRY")
	if typ == "" {
		typ = "E4CV"
	}
	g, err := geometry.New(typ)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("HKL_WAVELENGTH"); v != "" {
		wl, err := strconv.ParseFloat(v, 64)
		if err != nil || wl <= 0 {
			logger.Warn("invalid HKL_WAVELENGTH value, using default", "value", v, "default", g.Source.Wavelength)
		} else {
			g.Source.Wavelength = wl
		}
	}

	logger.Info("session config", "geometry", g.Type, "wavelength", g.Source.Wavelength)
	return pseudo.NewEngineList(g, detector.New0D(), sample.New("default"))
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("HKL_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("HKL_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("HKL_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("HKL_AUTH_TOKEN is required when auth is enabled")
		}
		if v := os.Getenv("HKL_AUTH_PUBLIC_READ"); v != "" {
			public, err := strconv.ParseBool(v)
			if err != nil {
				return cfg, errors.New("HKL_AUTH_PUBLIC_READ must be a boolean value (true/false/1/0)")
			}
			cfg.PublicRead = public
		}
		logger.Info("auth enabled", "public_read", cfg.PublicRead)
	}

	return cfg, nil
}

type snapshotConfig struct {
	Dir        string
	MaxFiles   int
	SaveOnExit bool
}

func loadSnapshotConfig(logger *slog.Logger) snapshotConfig {
	cfg := snapshotConfig{
		Dir:        "/tmp/hkl/snapshots",
		MaxFiles:   5,
		SaveOnExit: true,
	}

	if v := os.Getenv("HKL_SNAPSHOT_DIR"); v != "" {
		cfg.Dir = v
	}

	if v := os.Getenv("HKL_SNAPSHOT_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HKL_SNAPSHOT_MAX_FILES value, using default", "value", v, "default", 5)
		} else {
			cfg.MaxFiles = n
		}
	}

	if v := os.Getenv("HKL_SNAPSHOT_ON_EXIT"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid HKL_SNAPSHOT_ON_EXIT value, defaulting to true", "value", v)
		} else {
			cfg.SaveOnExit = enabled
		}
	}

	logger.Info("snapshot config",
		"dir", cfg.Dir,
		"max_files", cfg.MaxFiles,
		"save_on_exit", cfg.SaveOnExit,
	)

	return cfg
}

type scanConfig struct {
	Workers   int
	MaxPoints int
}

func loadScanConfig(logger *slog.Logger) scanConfig {
	cfg := scanConfig{
		Workers:   runtime.NumCPU(),
		MaxPoints: 1000,
	}

	if v := os.Getenv("HKL_SCAN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HKL_SCAN_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("HKL_SCAN_MAX_POINTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HKL_SCAN_MAX_POINTS value, using default", "value", v, "default", 1000)
		} else {
			cfg.MaxPoints = n
		}
	}

	logger.Info("scan config",
		"workers", cfg.Workers,
		"max_points", cfg.MaxPoints,
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           1000,
		Interval:           200 * time.Millisecond,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("HKL_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HKL_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("HKL_STREAM_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 50 {
			logger.Warn("invalid HKL_STREAM_INTERVAL_MS value, using default", "value", v, "default", 200)
		} else {
			cfg.Interval = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("HKL_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid HKL_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("HKL_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid HKL_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"interval_ms", cfg.Interval.Milliseconds(),
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
