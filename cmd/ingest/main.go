// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package main contains ingest main function to start the ingest service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"golang.org/x/sync/errgroup"

	"github.com/seismix/seismix/consumers"
	consumerapi "github.com/seismix/seismix/consumers/writers/api"
	"github.com/seismix/seismix/consumers/writers/influxdb"
	"github.com/seismix/seismix/consumers/writers/timescale"
	"github.com/seismix/seismix/ingest"
	ingestapi "github.com/seismix/seismix/ingest/api"
	"github.com/seismix/seismix/internal"
	influxclient "github.com/seismix/seismix/internal/clients/influxdb"
	pgclient "github.com/seismix/seismix/internal/clients/postgres"
	"github.com/seismix/seismix/internal/env"
	"github.com/seismix/seismix/internal/server"
	httpserver "github.com/seismix/seismix/internal/server/http"
	udpserver "github.com/seismix/seismix/internal/server/udp"
	"github.com/seismix/seismix/live"
	liveapi "github.com/seismix/seismix/live/api"
	sxlog "github.com/seismix/seismix/logger"
	markerspg "github.com/seismix/seismix/markers/postgres"
	"github.com/seismix/seismix/pkg/ticker"
	"github.com/seismix/seismix/pkg/uuid"
	"github.com/seismix/seismix/sensors"
	sensorspg "github.com/seismix/seismix/sensors/postgres"
)

const (
	svcName       = "ingest"
	envPrefix     = "SX_INGEST_"
	envPrefixHTTP = "SX_INGEST_HTTP_"
	envPrefixUDP  = "SX_INGEST_UDP_"
	defDB         = "sensors"
	defHTTPPort   = "8190"
	defUDPPort    = "2098"

	backendTimescale = "timescale"
	backendInflux    = "influxdb"
)

type config struct {
	LogLevel        string        `env:"SX_INGEST_LOG_LEVEL"        envDefault:"info"`
	InstanceID      string        `env:"SX_INGEST_INSTANCE_ID"      envDefault:""`
	ReadingsBackend string        `env:"SX_INGEST_READINGS_BACKEND" envDefault:"timescale"`
	RefreshInterval time.Duration `env:"SX_INGEST_REFRESH_INTERVAL" envDefault:"15s"`
	RefreshTimeout  time.Duration `env:"SX_INGEST_REFRESH_TIMEOUT"  envDefault:"5s"`
	SweepInterval   time.Duration `env:"SX_INGEST_SWEEP_INTERVAL"   envDefault:"60s"`
	OfflineAfter    time.Duration `env:"SX_INGEST_OFFLINE_AFTER"    envDefault:"2m"`
	StatusCooldown  time.Duration `env:"SX_INGEST_STATUS_COOLDOWN"  envDefault:"10m"`
	FlushInterval   time.Duration `env:"SX_INGEST_FLUSH_INTERVAL"   envDefault:"5s"`
	BatchSize       int           `env:"SX_INGEST_BATCH_SIZE"       envDefault:"2500"`
	QueueSize       int           `env:"SX_INGEST_QUEUE_SIZE"       envDefault:"16384"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load %s service configuration : %s", svcName, err)
	}

	logger, err := sxlog.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID, err = uuid.New().ID()
		if err != nil {
			log.Fatalf("failed to generate instance ID: %s", err)
		}
	}
	logger.Info(fmt.Sprintf("%s service instance %s starting", svcName, instanceID))

	catalogMigrations := migrate.MemoryMigrationSource{
		Migrations: append(sensorspg.Migration().Migrations, markerspg.Migration().Migrations...),
	}
	dbConfig := pgclient.Config{Name: defDB}
	db, err := pgclient.SetupWithConfig("SX_POSTGRES_", catalogMigrations, dbConfig)
	if err != nil {
		logger.Fatal(err.Error())
	}
	defer db.Close()

	dropped := internal.MakeCounter(svcName, "readings", "dropped_total", "Number of readings dropped before persistence.", "reason")

	var consumer consumers.BlockingConsumer
	switch cfg.ReadingsBackend {
	case backendTimescale:
		tsdb, err := pgclient.SetupWithConfig("SX_TIMESCALE_", *timescale.Migration(), pgclient.Config{Name: "sensor_data"})
		if err != nil {
			logger.Fatal(err.Error())
		}
		defer tsdb.Close()
		consumer = timescale.New(tsdb, dropped.With("reason", "malformed_row"), logger)
	case backendInflux:
		client, influxCfg, err := influxclient.Setup(ctx, "SX_INFLUX_")
		if err != nil {
			logger.Fatal(err.Error())
		}
		defer client.Close()
		consumer = influxdb.NewSync(client, influxdb.RepoConfig{Bucket: influxCfg.Bucket, Org: influxCfg.Org})
	default:
		logger.Fatal(fmt.Sprintf("unknown readings backend %q", cfg.ReadingsBackend))
	}

	writerCounter, writerLatency := internal.MakeMetrics("writer", "api")
	consumer = consumerapi.LoggingMiddleware(consumer, logger)
	consumer = consumerapi.MetricsMiddleware(consumer, writerCounter, writerLatency)

	batcher := consumers.NewBatcher(consumer, cfg.BatchSize, cfg.QueueSize, dropped.With("reason", "queue_full"), dropped.With("reason", "retry_shed"), logger)

	sensorRepo := sensorspg.New(db)
	registry := sensors.NewRegistry(sensorRepo, cfg.RefreshTimeout, logger)
	liveness := sensors.NewLiveness(sensorRepo, registry, cfg.OfflineAfter, cfg.StatusCooldown, logger)

	liveSvc := live.New(registry, markerspg.New(db), uuid.New(), logger)
	liveSvc = liveapi.LoggingMiddleware(liveSvc, logger)
	liveCounter, liveLatency := internal.MakeMetrics("live", "api")
	liveSvc = liveapi.MetricsMiddleware(liveSvc, liveCounter, liveLatency)

	ingestSvc := ingest.New(registry, liveness, liveSvc, batcher,
		dropped.With("reason", "unknown_origin"),
		dropped.With("reason", "malformed"),
		logger)
	ingestSvc = ingestapi.LoggingMiddleware(ingestSvc, logger)
	ingestCounter, ingestLatency := internal.MakeMetrics(svcName, "api")
	ingestSvc = ingestapi.MetricsMiddleware(ingestSvc, ingestCounter, ingestLatency)

	liveness.OnTransition(func(id uint64, online bool) {
		status := "offline"
		if online {
			status = "online"
		}
		liveSvc.Notify(id, fmt.Sprintf("Sensor is now %s.", status))
	})

	if err := registry.Refresh(ctx, liveSvc.EvictSensor); err != nil {
		logger.Warn(fmt.Sprintf("initial catalog refresh failed, serving transiently: %s", err))
	}
	liveSvc.Sweep()

	g.Go(func() error {
		registry.Run(ctx, ticker.NewTicker(cfg.RefreshInterval), liveSvc.EvictSensor)
		return nil
	})
	g.Go(func() error {
		liveness.Run(ctx, ticker.NewTicker(cfg.SweepInterval))
		return nil
	})
	g.Go(func() error {
		batcher.Run(ctx, ticker.NewTicker(cfg.FlushInterval))
		return nil
	})
	g.Go(func() error {
		tick := ticker.NewTicker(cfg.SweepInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-tick.Tick():
				liveSvc.Sweep()
			}
		}
	})

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.Parse(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Fatal(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err))
	}
	hs := httpserver.New(ctx, cancel, svcName, httpServerConfig, liveapi.MakeHandler(liveSvc, logger, registry.Held), logger)

	udpServerConfig := server.Config{Port: defUDPPort}
	if err := env.Parse(&udpServerConfig, env.Options{Prefix: envPrefixUDP}); err != nil {
		logger.Fatal(fmt.Sprintf("failed to load %s UDP server configuration : %s", svcName, err))
	}
	us := udpserver.New(ctx, cancel, svcName, udpServerConfig, ingestSvc.HandleDatagram, logger)

	g.Go(func() error {
		return hs.Start()
	})
	g.Go(func() error {
		return us.Start()
	})
	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs, us)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service terminated: %s", svcName, err))
	}
	liveSvc.Shutdown()
}
