package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hondana/hondana/internal/dashboard"
	"github.com/hondana/hondana/internal/download"
	"github.com/hondana/hondana/internal/shelf"
	shelfsync "github.com/hondana/hondana/internal/sync"
	"github.com/hondana/hondana/internal/ui"
	"github.com/hondana/hondana/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bookshelf service",
	Long: `Run the long-lived bookshelf service.

On startup it repairs any state left by a crash, then:
  - polls active folders and queues new files for download
  - drains the download queue one file at a time
  - watches the library directory and heals the catalog when files vanish
  - serves a WebSocket dashboard with live queue and progress events`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := openEnv()
		defer db.Close()

		logger := serveLogger(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Crash recovery before anything dispatches
		stats, err := shelfsync.NewRecovery(db, logger).Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during recovery: %v\n", err)
			os.Exit(1)
		}

		source := newRemote(cfg)
		coord := download.NewCoordinator()
		pipeline := download.NewPipeline(db, coord, source, cfg.LibraryDir, logger)
		reconciler := shelfsync.NewReconciler(db, source, logger)

		// Dashboard
		srv, err := dashboard.NewServer(&dashboard.Config{
			Port:   cfg.DashboardPort,
			State:  pipeline.State,
			Logger: logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating dashboard: %v\n", err)
			os.Exit(1)
		}
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
			os.Exit(1)
		}
		defer srv.Stop()

		handler := dashboard.NewHandler(srv, logger)
		handler.OnRecovery(dashboard.RecoveryData{
			RequeuedJobs:      stats.RequeuedJobs,
			DemotedDownloads:  stats.DemotedDownloads,
			ResetCloudItems:   stats.ResetCloudItems,
			RemovedLocalItems: stats.RemovedLocalItems,
		})

		pipeline.OnProgress = handler.OnProgress
		pipeline.OnStateChange = func() {
			state, err := pipeline.State(context.Background())
			if err != nil {
				logger.Printf("state snapshot failed: %v", err)
				return
			}
			handler.OnQueueChange(state)
		}

		// Library watcher
		recovery := shelfsync.NewRecovery(db, logger)
		w, err := watcher.New(recovery, cfg.LibraryDir, &watcher.Config{
			VerifyInterval:   5 * time.Minute,
			DebounceInterval: 500 * time.Millisecond,
			Logger:           logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating watcher: %v\n", err)
			os.Exit(1)
		}
		w.OnVerify = func(resetCloud, removedLocal int) {
			handler.OnRecovery(dashboard.RecoveryData{
				ResetCloudItems:   resetCloud,
				RemovedLocalItems: removedLocal,
			})
		}

		watcherDone := make(chan error, 1)
		go func() { watcherDone <- w.Start(ctx) }()

		fmt.Printf("%s Service running, dashboard on %s\n", ui.RenderPass("✓"), srv.Addr())
		logger.Printf("service started, poll interval %s", cfg.PollInterval)

		runPollLoop(ctx, cfg.PollInterval, logger, handler, reconciler, pipeline)

		fmt.Printf("%s Shutting down\n", ui.RenderWarn("⏻"))
		if err := <-watcherDone; err != nil {
			logger.Printf("watcher stopped with error: %v", err)
		}
	},
}

// runPollLoop alternates sync passes and queue drains until ctx is
// cancelled. The first pass runs immediately.
func runPollLoop(ctx context.Context, interval time.Duration, logger *log.Logger, handler *dashboard.Handler, reconciler *shelfsync.Reconciler, pipeline *download.Pipeline) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pass := func() {
		start := time.Now()
		res, err := reconciler.SyncAll(ctx)
		if err != nil {
			logger.Printf("sync pass failed: %v", err)
			res = &shelf.SyncResult{}
		} else {
			handler.OnSyncComplete(res, time.Since(start))
		}

		if _, err := pipeline.EnqueueAllPending(ctx); err != nil {
			logger.Printf("enqueue pass failed: %v", err)
		}
		n, err := pipeline.Drain(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Printf("drain failed: %v", err)
		}
		if n > 0 {
			logger.Printf("poll pass: %d new, %d updated, %d downloaded", res.NewFiles, res.UpdatedFiles, n)
		}
	}

	pass()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}

// serveLogger routes service logs to a rotated file when configured,
// stderr otherwise.
func serveLogger(logFile string, maxSizeMB, maxBackups int) *log.Logger {
	var out io.Writer = os.Stderr
	if logFile != "" {
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		}
	}
	return log.New(out, "[hondana] ", log.LstdFlags)
}
