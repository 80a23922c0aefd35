package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/syncevo/syncengine/internal/appconfig"
	"github.com/syncevo/syncengine/internal/autosync"
	"github.com/syncevo/syncengine/internal/configtree"
	"github.com/syncevo/syncengine/internal/eventbus"
	"github.com/syncevo/syncengine/internal/inforeq"
	"github.com/syncevo/syncengine/internal/ipcserver"
	"github.com/syncevo/syncengine/internal/lock"
	"github.com/syncevo/syncengine/internal/presence"
	"github.com/syncevo/syncengine/internal/property"
	"github.com/syncevo/syncengine/internal/reportstore"
	"github.com/syncevo/syncengine/internal/scheduler"
	"github.com/syncevo/syncengine/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(loggingConfigFrom(cfg))
	logger.Info("starting syncengine", "profile", cfg.Profile, "addr", cfg.Server.Addr)

	tree, err := configtree.NewTree(cfg.Storage.ConfigHome, 256)
	if err != nil {
		return err
	}

	reports, err := reportstore.NewForProfile(reportstore.Config{
		Profile:     reportstore.Profile(cfg.Profile),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return err
	}
	defer reports.Close()

	bus := eventbus.New(256)

	// distLock stays a nil scheduler.DistributedLocker (not a nil
	// *lock.DistributedLock boxed in the interface) in the Lite profile, so
	// the scheduler's own "distLock == nil" checks see a true nil
	// (SPEC_FULL.md §4.5 "Active-session lock").
	var distLock scheduler.DistributedLocker
	var autosyncStore autosync.TaskStore = autosync.NewMemoryStore()
	if cfg.Profile == appconfig.ProfileStandard {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		distLock = lock.New(redisClient, 30*time.Second)
		autosyncStore = autosync.NewRedisStore(redisClient, "syncengine:autosync")
	}

	sched := scheduler.New(bus, distLock, cfg.AutoTerm.Duration, logger)
	presenceMonitor := presence.New(bus, nil, nil)

	registry := property.NewRegistry()
	registry.Register(property.New("syncURL", "remote peer's sync endpoint(s), space separated", "", true))
	registry.Register(property.New("autoSync", `"off", "on", or a comma list of "http"/"obex-bt"`, "off", false))
	registry.Register(property.NewInt("autoSyncInterval", "seconds between auto-sync attempts", 1800))
	registry.Register(property.NewInt("autoSyncDelay", "seconds a transport must stay up before auto-sync fires", 0))
	sourceRegistry := property.NewRegistry()

	sessions := newSessionRegistry()
	infoReqMgr := inforeq.NewManager(busBroadcaster{bus: bus})
	notifier := busNotifier{bus: bus}

	factory := &sessionFactory{
		tree: tree, registry: registry, srcReg: sourceRegistry,
		notifier: notifier, infoReq: infoReqMgr, reports: reports,
		scheduler: sched, sessions: sessions, logger: logger,
	}
	enqueuer := &schedulerEnqueuer{sessionFactory: factory}
	autosyncMgr := autosync.New(autosyncStore, presenceMonitor, enqueuer)
	configureAutoSyncFromDisk(tree, registry, autosyncMgr, logger)

	ipcDeps := ipcserver.Deps{
		Bus: bus, Scheduler: sched, Sessions: sessions,
		Configs: &treeConfigReader{tree: tree}, Reports: reports,
		InfoReq: infoReqMgr, Logger: logger,
		Starter: &ipcSessionStarter{sessionFactory: factory},
		Runner:  &ipcRunner{sessionFactory: factory},
	}
	httpServer := ipcserver.NewHTTPServer(cfg.Server.Addr, ipcDeps,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	shutdown := make(chan struct{})
	go func() {
		events := bus.Subscribe("serve-shutdown-watch")
		defer bus.Unsubscribe("serve-shutdown-watch")
		for evt := range events {
			if evt.Topic == "Shutdown" {
				close(shutdown)
				return
			}
		}
	}()

	sweepTicker := time.NewTicker(30 * time.Second)
	defer sweepTicker.Stop()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case now := <-sweepTicker.C:
				sched.Reap(now)
				infoReqMgr.Sweep(now)
			case <-done:
				return
			}
		}
	}()

	go func() {
		logger.Info("ipc server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ipc server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("received shutdown signal")
	case <-shutdown:
		logger.Info("auto-termination requested shutdown")
	}

	close(done)
	autosyncMgr.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("ipc server forced shutdown", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("metrics server forced shutdown", "error", err)
		}
	}

	logger.Info("syncengine exited")
	return nil
}

func loggingConfigFrom(cfg *appconfig.Config) logging.Config {
	output := "stdout"
	if cfg.Log.Filename != "" {
		output = "file"
	}
	return logging.Config{
		Level:      cfg.Log.Level,
		Format:     "json",
		Output:     output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}

// configureAutoSyncFromDisk registers every existing peer configuration's
// auto-sync task set at startup, so auto-sync evaluation runs immediately
// rather than only after the next SetConfig (SPEC_FULL.md §4.7).
func configureAutoSyncFromDisk(tree *configtree.Tree, registry *property.Registry, mgr *autosync.Manager, logger *slog.Logger) {
	peers, err := tree.Children("")
	if err != nil {
		logger.Warn("auto-sync: failed to list peer configurations", "error", err)
		return
	}
	for _, peer := range peers {
		urls, autoSync, intervalStr, delayStr := peerSyncConfig(tree, registry, peer)
		if len(urls) == 0 {
			continue
		}
		interval, _ := strconv.Atoi(intervalStr)
		delay, _ := strconv.Atoi(delayStr)
		cfg := autosync.PeerConfig{
			Peer: peer, AutoSync: autoSync,
			Interval: time.Duration(interval) * time.Second,
			Delay:    time.Duration(delay) * time.Second,
			SyncURLs: urls,
		}
		if err := mgr.Configure(context.Background(), cfg); err != nil {
			logger.Warn("auto-sync: failed to configure peer", "peer", peer, "error", err)
		}
	}
}
