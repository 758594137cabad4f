package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nhle/taskhub/internal/httpapi"
	"github.com/nhle/taskhub/internal/notify"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server, live streams and scheduler",
		Long: `Start the taskhub server.

The server exposes the JSON API under /api, live notifications at
/api/notifications/stream (Server-Sent Events) and /api/notifications/ws
(WebSocket), and runs the background jobs:

  issue_sync       refresh cached Jira issues (every 15 minutes by default)
  audit_retention  drop audit entries past the retention window (daily)
  db_compact       VACUUM and ANALYZE the database (weekly)

Examples:
  taskhub serve
  taskhub serve --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr == "" {
				addr = rt.cfg.Server.Addr
			}
			return runServe(rt, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(rt *runtime, addr string) error {
	logger := rt.logs.Logger("serve")

	registry := notify.NewRegistry(rt.logs.Logger("notify"))
	sched, err := rt.newScheduler(registry)
	if err != nil {
		registry.Close()
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := httpapi.NewServer(httpapi.Config{
		Addr:           addr,
		Store:          rt.store,
		Registry:       registry,
		Jobs:           sched,
		Heartbeat:      rt.cfg.HeartbeatInterval(),
		AllowedOrigins: rt.cfg.Server.AllowedOrigins,
		Logger:         rt.logs.Logger("httpapi"),
		AccessLog:      rt.logs.Writer(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// SIGHUP rolls the log file over.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go rotateOnHangup(ctx, hup, rt.logs.Rotate, logger)

	// A rejected token is logged rather than fatal: the API and streams work
	// without Jira, and issue_sync reports each failed user.
	switch name, jerr := rt.checkJira(ctx); {
	case jerr != nil:
		logger.Printf("WARNING: Jira connection check failed: %v", jerr)
	case name != "":
		logger.Printf("Connected to Jira as %s", name)
	}

	if err := sched.Start(ctx); err != nil {
		registry.Close()
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	fmt.Printf("taskhub listening on %s\n", addr)
	fmt.Println("Press Ctrl+C to stop...")

	select {
	case <-ctx.Done():
		logger.Println("Shutting down")
	case err = <-serveErr:
		if err != nil {
			logger.Printf("ERROR: server stopped: %v", err)
		}
	}

	sched.Stop()
	// Closing the registry ends every open stream so Shutdown can finish.
	registry.Close()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Printf("WARNING: graceful shutdown: %v", serr)
	}

	logger.Println("Stopped")
	return err
}

// rotateOnHangup calls rotate for every signal on hup until ctx ends.
func rotateOnHangup(ctx context.Context, hup <-chan os.Signal, rotate func() error, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := rotate(); err != nil {
				logger.Printf("WARNING: rotating log file: %v", err)
			}
		}
	}
}
