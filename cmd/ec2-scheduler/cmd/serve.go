/*
Copyright © 2025 Mulga Defense Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mulgadc/ec2-scheduler/scheduler/compute"
	"github.com/mulgadc/ec2-scheduler/scheduler/gateway"
	"github.com/mulgadc/ec2-scheduler/scheduler/handler"
	"github.com/mulgadc/ec2-scheduler/scheduler/metrics"
	"github.com/mulgadc/ec2-scheduler/scheduler/subscriber"
	"github.com/mulgadc/ec2-scheduler/scheduler/utils"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve invocations over HTTP and NATS",
	Long: `Start the HTTP gateway (POST /invoke, GET /health, GET /metrics) and, when a
NATS host is configured, a queue subscriber on the invocation subject. Runs until
SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Gateway listen address (overrides config file and env)")
	viper.BindPFlag("gateway.host", serveCmd.Flags().Lookup("listen"))

	serveCmd.Flags().String("nats-subject", "", "NATS invocation subject (overrides config file and env)")
	viper.BindPFlag("nats.sub.subject", serveCmd.Flags().Lookup("nats-subject"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
		slog.Debug(fmt.Sprintf(format, a...))
	}))
	defer undo()
	if err != nil {
		slog.Warn("Failed to set GOMAXPROCS", "err", err)
	}

	metrics.InitMetrics()

	// One connection serves both the nats backend and the subscriber
	var nc *nats.Conn
	if cfg.NATS.Host != "" {
		nc, err = utils.ConnectNATS(cfg.NATS.Host, cfg.NATS.ACL.Token)
		if err != nil {
			return err
		}
		defer nc.Close()
		slog.Info("Connected to NATS", "url", nc.ConnectedUrl())
	}

	svc, closeFn, err := compute.NewWithConn(cfg, nc)
	if err != nil {
		return err
	}
	defer closeFn()

	h := handler.New(svc, slog.Default())

	if nc != nil {
		sub := subscriber.New(nc, h, cfg.NATS.Sub.Subject, cfg.NATS.Sub.Queue)
		if err := sub.Start(); err != nil {
			return err
		}
		defer sub.Close()
	}

	gw := &gateway.GatewayConfig{
		DisableLogging: cfg.Gateway.DisableLogging,
		Handler:        h,
	}
	app := gw.SetupRoutes()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting gateway", "host", cfg.Gateway.Host, "backend", cfg.Backend)
		errCh <- app.Listen(cfg.Gateway.Host)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway failed: %w", err)
		}
		return nil
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}
