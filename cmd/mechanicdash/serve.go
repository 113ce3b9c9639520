package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/mechanic-dash/internal/monitor"
	"github.com/shaunagostinho/mechanic-dash/internal/server"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run headless and serve gauges over HTTP and websocket",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Override listen address (e.g. :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		a.cfg.SetListenAddr(listenAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	a.attachRedis(ctx, &wg)
	a.start(ctx, &wg)

	var registry *prometheus.Registry
	if a.cfg.ServerSettings().Metrics {
		registry = monitor.NewRegistry(a.cluster)
	}
	srv := server.New(a.cfg, a.cluster, a.machine, registry, a.log)
	err = srv.Run(ctx)
	if err != nil {
		a.log.WithError(err).Error("server exited")
	}

	stop()
	wg.Wait()
	a.log.Info("stopped")
	return err
}
