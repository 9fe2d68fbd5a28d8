// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package influxdb contains the InfluxDB reading writer.
package influxdb

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/seismix/seismix/consumers"
	"github.com/seismix/seismix/pkg/errors"
)

const measurement = "sensor_data"

var errSaveReadings = errors.New("failed to save readings to influxdb database")

var _ consumers.BlockingConsumer = (*influxRepo)(nil)

// RepoConfig holds the InfluxDB write target.
type RepoConfig struct {
	Bucket string
	Org    string
}

type influxRepo struct {
	client           influxdb2.Client
	cfg              RepoConfig
	writeAPIBlocking api.WriteAPIBlocking
}

// NewSync returns a blocking InfluxDB writer.
func NewSync(client influxdb2.Client, config RepoConfig) consumers.BlockingConsumer {
	return &influxRepo{
		client:           client,
		cfg:              config,
		writeAPIBlocking: client.WriteAPIBlocking(config.Org, config.Bucket),
	}
}

func (repo *influxRepo) ConsumeBlocking(ctx context.Context, records []consumers.Record) error {
	pts := make([]*write.Point, 0, len(records))
	for _, r := range records {
		pts = append(pts, point(r))
	}
	if err := repo.writeAPIBlocking.WritePoint(ctx, pts...); err != nil {
		return errors.Wrap(errSaveReadings, err)
	}
	return nil
}

func point(r consumers.Record) *write.Point {
	sec, frac := math.Modf(r.Reading.Time)
	t := time.Unix(int64(sec), int64(frac*float64(time.Second)))

	// Influx fields cannot hold arrays, so counts travel as a joined
	// string alongside their length.
	counts := make([]string, len(r.Reading.Samples))
	for i, s := range r.Reading.Samples {
		counts[i] = strconv.FormatInt(s, 10)
	}
	fields := map[string]interface{}{
		"counts":       strings.Join(counts, ","),
		"sample_count": len(r.Reading.Samples),
	}
	tags := map[string]string{
		"sensor_id": strconv.FormatUint(r.SensorID, 10),
		"channel":   r.Reading.Channel,
	}
	return influxdb2.NewPoint(measurement, tags, fields, t)
}
