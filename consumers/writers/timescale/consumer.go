// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package timescale contains the TimescaleDB reading writer.
package timescale

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-kit/kit/metrics"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/seismix/seismix/consumers"
	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/pkg/errors"
)

var (
	errInvalidReading = errors.New("invalid reading representation")
	errSaveReadings   = errors.New("failed to save readings to timescale database")
	errTransRollback  = errors.New("failed to rollback transaction")
)

var _ consumers.BlockingConsumer = (*timescaleRepo)(nil)

type timescaleRepo struct {
	db      *sqlx.DB
	dropped metrics.Counter
	logger  logger.Logger
}

// New returns a TimescaleDB reading writer. Rows the database rejects as
// malformed are dropped, counted on dropped and logged.
func New(db *sqlx.DB, dropped metrics.Counter, logger logger.Logger) consumers.BlockingConsumer {
	return &timescaleRepo{db: db, dropped: dropped, logger: logger}
}

const insertQuery = `INSERT INTO sensor_data (sensor_website_id, data_timestamp, data_channel, counts_values)
    VALUES (:sensor_website_id, to_timestamp(:data_timestamp), :data_channel, :counts_values)`

func (tr *timescaleRepo) ConsumeBlocking(ctx context.Context, records []consumers.Record) error {
	err := tr.save(ctx, records)
	if err == nil || !errors.Contains(err, errInvalidReading) {
		return err
	}
	// One malformed row poisons the whole transaction; fall back to
	// row-at-a-time and drop only the bad ones.
	return tr.saveEach(ctx, records)
}

func (tr *timescaleRepo) save(ctx context.Context, records []consumers.Record) (err error) {
	tx, err := tr.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(errSaveReadings, err)
	}
	defer func() {
		if err != nil {
			if txErr := tx.Rollback(); txErr != nil {
				err = errors.Wrap(err, errors.Wrap(errTransRollback, txErr))
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = errors.Wrap(errSaveReadings, err)
		}
	}()

	for _, r := range records {
		if _, err := tx.NamedExec(insertQuery, toDBReading(r)); err != nil {
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == pgerrcode.InvalidTextRepresentation {
				return errors.Wrap(errSaveReadings, errInvalidReading)
			}
			return errors.Wrap(errSaveReadings, err)
		}
	}
	return err
}

func (tr *timescaleRepo) saveEach(ctx context.Context, records []consumers.Record) error {
	for _, r := range records {
		if _, err := tr.db.NamedExecContext(ctx, insertQuery, toDBReading(r)); err != nil {
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == pgerrcode.InvalidTextRepresentation {
				tr.dropped.Add(1)
				tr.logger.Warn(fmt.Sprintf("dropped malformed reading sensor=%d channel=%s time=%f: %s", r.SensorID, r.Reading.Channel, r.Reading.Time, err))
				continue
			}
			return errors.Wrap(errSaveReadings, err)
		}
	}
	return nil
}

type dbReading struct {
	SensorID  uint64  `db:"sensor_website_id"`
	Timestamp float64 `db:"data_timestamp"`
	Channel   string  `db:"data_channel"`
	Counts    string  `db:"counts_values"`
}

func toDBReading(r consumers.Record) dbReading {
	return dbReading{
		SensorID:  r.SensorID,
		Timestamp: r.Reading.Time,
		Channel:   r.Reading.Channel,
		Counts:    arrayLiteral(r.Reading.Samples),
	}
}

// arrayLiteral renders samples as a postgres int array literal.
func arrayLiteral(samples []int64) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, s := range samples {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(s, 10))
	}
	sb.WriteByte('}')
	return sb.String()
}
