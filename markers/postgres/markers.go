// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package postgres contains the PostgreSQL-backed marker store.
package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/seismix/seismix/markers"
	"github.com/seismix/seismix/pkg/errors"
)

var errRetrieve = errors.New("failed to retrieve markers from database")

var _ markers.Repository = (*markerRepository)(nil)

type markerRepository struct {
	db *sqlx.DB
}

// New instantiates a PostgreSQL implementation of the marker store.
func New(db *sqlx.DB) markers.Repository {
	return &markerRepository{db: db}
}

func (repo *markerRepository) RetrieveByType(ctx context.Context, sensorType string) ([]markers.Marker, error) {
	q := `SELECT id, sensor_type, channel, label, style, value, enabled
        FROM channel_markers WHERE sensor_type = $1 AND enabled ORDER BY id`

	rows, err := repo.db.QueryxContext(ctx, q, sensorType)
	if err != nil {
		return nil, errors.Wrap(errRetrieve, err)
	}
	defer rows.Close()

	var items []markers.Marker
	for rows.Next() {
		dbm := dbMarker{}
		if err := rows.StructScan(&dbm); err != nil {
			return nil, errors.Wrap(errRetrieve, err)
		}
		items = append(items, toMarker(dbm))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errRetrieve, err)
	}
	return items, nil
}

type dbMarker struct {
	ID         uint64         `db:"id"`
	SensorType string         `db:"sensor_type"`
	Channel    sql.NullString `db:"channel"`
	Label      string         `db:"label"`
	Style      sql.NullString `db:"style"`
	Value      float64        `db:"value"`
	Enabled    bool           `db:"enabled"`
}

func toMarker(dbm dbMarker) markers.Marker {
	return markers.Marker{
		ID:         dbm.ID,
		SensorType: dbm.SensorType,
		Channel:    dbm.Channel.String,
		Label:      dbm.Label,
		Style:      dbm.Style.String,
		Value:      dbm.Value,
		Enabled:    dbm.Enabled,
	}
}
