// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/seismix/seismix/internal/env"
	"github.com/seismix/seismix/pkg/errors"
)

var (
	errConnect = errors.New("failed to create InfluxDB client")
	errConfig  = errors.New("failed to load InfluxDB client configuration from environment variable")
)

type Config struct {
	Protocol string        `env:"PROTOCOL" envDefault:"http"`
	Host     string        `env:"HOST"     envDefault:"localhost"`
	Port     string        `env:"PORT"     envDefault:"8086"`
	Bucket   string        `env:"BUCKET"   envDefault:"seismix-bucket"`
	Org      string        `env:"ORG"      envDefault:"seismix"`
	Token    string        `env:"TOKEN"    envDefault:"seismix-token"`
	Timeout  time.Duration `env:"TIMEOUT"  envDefault:"1s"`
}

// Setup loads configuration from environment variables, creates an InfluxDB
// client and verifies the server is reachable.
func Setup(ctx context.Context, envPrefix string) (influxdb2.Client, Config, error) {
	config := Config{}
	if err := env.Parse(&config, env.Options{Prefix: envPrefix}); err != nil {
		return nil, config, errors.Wrap(errConfig, err)
	}
	client, err := Connect(ctx, config)
	return client, config, err
}

// Connect creates an InfluxDB client and connects to the InfluxDB server.
func Connect(ctx context.Context, config Config) (influxdb2.Client, error) {
	address := fmt.Sprintf("%s://%s:%s", config.Protocol, config.Host, config.Port)
	client := influxdb2.NewClient(address, config.Token)
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if _, err := client.Ready(ctx); err != nil {
		return nil, errors.Wrap(errConnect, err)
	}
	return client, nil
}
