package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/mechanic-dash/internal/animate"
	"github.com/shaunagostinho/mechanic-dash/internal/config"
	"github.com/shaunagostinho/mechanic-dash/internal/gauge"
	"github.com/shaunagostinho/mechanic-dash/internal/link"
	"github.com/shaunagostinho/mechanic-dash/internal/logger"
	"github.com/shaunagostinho/mechanic-dash/internal/publish"
	"github.com/shaunagostinho/mechanic-dash/internal/transport"
)

// app is the shared core of serve and tui: config, channels, link and
// animation.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	cluster *gauge.Cluster
	machine *link.Machine
	driver  *animate.Driver

	sinks     []link.Sink
	observers []func(link.Status)
}

func newApp() (*app, error) {
	// Config loading logs before the configured logger exists.
	cfg := config.LoadConfig(configPath, logrus.StandardLogger())
	if demoFlag {
		cfg.Link.Peer = transport.DemoPeer
	}
	if peerFlag != "" {
		cfg.Link.Peer = peerFlag
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		log.WithError(err).Warnf("log output %q unusable, logging to stderr", cfg.Logging.Output)
	}

	cluster, err := gauge.NewCluster(cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("channels: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		cluster: cluster,
		driver:  animate.New(cfg.AnimationPeriod(), cluster),
		sinks:   []link.Sink{cluster},
	}, nil
}

func (a *app) transport() *transport.Mux {
	lc := a.cfg.Link
	return &transport.Mux{
		Serial: transport.NewSerial(transport.SerialConfig{
			BaudRate:    lc.BaudRate,
			ReadTimeout: time.Duration(lc.ReadTimeoutMs) * time.Millisecond,
		}),
		TCP:       transport.NewTCP(time.Duration(lc.DialTimeoutMs) * time.Millisecond),
		WebSocket: transport.NewWebSocket(lc.SkipTLSVerify),
		Demo: transport.NewDemo(transport.DemoConfig{
			Interval:     time.Duration(lc.Demo.IntervalMs) * time.Millisecond,
			DropEvery:    lc.Demo.DropEvery,
			GarbageEvery: lc.Demo.GarbageEvery,
		}),
	}
}

// attachRedis adds the Redis fan-out when enabled. A Redis that cannot be
// reached is logged and skipped; the gauges work without it.
func (a *app) attachRedis(ctx context.Context, wg *sync.WaitGroup) {
	rc := a.cfg.Redis
	if !rc.Enabled {
		return
	}
	pub, client, err := publish.New(ctx, publish.Config{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		Channel:  rc.Channel,
		Buffer:   rc.Buffer,
	}, a.log)
	if err != nil {
		a.log.WithError(err).Warn("redis fan-out disabled")
		return
	}
	a.sinks = append(a.sinks, pub)
	a.observers = append(a.observers, pub.OnStatus)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer client.Close()
		pub.Run(ctx)
	}()
	a.log.Infof("publishing to redis %s channel %s", rc.Addr, rc.Channel)
}

// start builds the link and runs it with the animation until ctx is done.
func (a *app) start(ctx context.Context, wg *sync.WaitGroup) {
	a.machine = link.New(link.Config{
		Peer:      a.cfg.Link.Peer,
		Transport: a.transport(),
		Sink:      link.Fanout(a.sinks...),
		Backoff:   a.cfg.Backoff(),
		Log:       a.log,
	})
	for _, fn := range a.observers {
		a.machine.Subscribe(fn)
	}

	a.log.WithField("peer", a.cfg.Link.Peer).Infof("mechanicdash starting (%s transport)", transport.Kind(a.cfg.Link.Peer))

	wg.Add(2)
	go func() {
		defer wg.Done()
		a.machine.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.driver.Run(ctx)
	}()
}
