// Package agent wires the supervisor, advisor and HTTP API into a single
// long-running process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frain-dev/tether/advisor"
	"github.com/frain-dev/tether/api"
	"github.com/frain-dev/tether/config"
	"github.com/frain-dev/tether/internal/pkg/telemetry"
	"github.com/frain-dev/tether/pkg/log"
	"github.com/frain-dev/tether/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func AddAgentCommand() *cobra.Command {
	var apiPort uint32
	var logLevel string
	var adviseInterval time.Duration

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the connection supervisor and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Get()
			if err != nil {
				return err
			}

			// cli flags take precedence over the config file
			if logLevel != "" {
				cfg.Logger.Level = logLevel
			}

			if apiPort != 0 {
				cfg.Server.Port = apiPort
			}

			lo := log.NewLogger(os.Stdout)
			lo.SetLevel(log.ParseLevel(cfg.Logger.Level))

			sup, err := supervisor.New(cfg, supervisor.WithLogger(lo))
			if err != nil {
				return err
			}

			prometheus.MustRegister(telemetry.NewCollector(sup.Aggregator()))

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sup.ConnectAll(ctx)

			advClient := advisor.NewClient(
				advisor.NewHeuristicAdvisor(),
				advisor.TimeoutOption(time.Duration(cfg.Advisor.Timeout)*time.Second),
				advisor.LoggerOption(lo),
			)

			go adviseLoop(ctx, sup, advClient, lo, adviseInterval)

			handler, err := api.NewApplicationHandler(api.Options{
				Supervisor: sup,
				Advisor:    advClient,
				Logger:     lo,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
				Handler: handler.BuildRoutes(),
			}

			srvErr := make(chan error, 1)
			go func() {
				lo.Infof("api server listening on :%d", cfg.Server.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					srvErr <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

			select {
			case sig := <-quit:
				lo.Infof("received %s, shutting down", sig)
			case err := <-srvErr:
				lo.WithError(err).Error("api server failed")
			}

			cancel()

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				lo.WithError(err).Error("api server shutdown failed")
			}

			return sup.Close()
		},
	}

	cmd.Flags().Uint32Var(&apiPort, "port", 0, "Port to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, fatal)")
	cmd.Flags().DurationVar(&adviseInterval, "advise-interval", 30*time.Second, "How often to consult the optimization advisor")

	return cmd
}

// adviseLoop periodically feeds each endpoint's telemetry to the advisor
// and logs anything that is not a no-op. Recommendations are advisory; the
// loop never mutates supervisor state.
func adviseLoop(ctx context.Context, sup *supervisor.Supervisor, client *advisor.Client, lo *log.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, snap := range sup.TelemetryAll() {
				rec := client.Advise(ctx, snap)
				if rec.Action == advisor.ActionNone {
					continue
				}

				lo.WithFields(log.Fields{
					"endpoint": name,
					"action":   rec.Action,
					"reason":   rec.Reason,
				}).Info("advisor recommendation")
			}
		}
	}
}
