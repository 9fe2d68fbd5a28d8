// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package postgres contains the PostgreSQL-backed sensor catalog.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/seismix/seismix/pkg/errors"
	"github.com/seismix/seismix/sensors"
)

var (
	errRetrieve = errors.New("failed to retrieve sensors from database")
	errUpdate   = errors.New("failed to update sensor online state")
)

var _ sensors.Repository = (*sensorRepository)(nil)

type sensorRepository struct {
	db *sqlx.DB
}

// New instantiates a PostgreSQL implementation of the sensor catalog.
func New(db *sqlx.DB) sensors.Repository {
	return &sensorRepository{db: db}
}

func (repo *sensorRepository) RetrieveAll(ctx context.Context) ([]sensors.Sensor, error) {
	q := `SELECT id, origin_addr, type_name, secondary_id, online, status_changed_at FROM sensors`

	rows, err := repo.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(errRetrieve, err)
	}
	defer rows.Close()

	var items []sensors.Sensor
	for rows.Next() {
		dbs := dbSensor{}
		if err := rows.StructScan(&dbs); err != nil {
			return nil, errors.Wrap(errRetrieve, err)
		}
		items = append(items, toSensor(dbs))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errRetrieve, err)
	}
	return items, nil
}

func (repo *sensorRepository) RetrieveTypes(ctx context.Context) ([]sensors.SensorType, error) {
	q := `SELECT c.id, c.type_name, c.name FROM sensor_channels c
        JOIN sensor_types t ON t.name = c.type_name ORDER BY c.type_name, c.id`

	rows, err := repo.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(errRetrieve, err)
	}
	defer rows.Close()

	byName := map[string]*sensors.SensorType{}
	var order []string
	for rows.Next() {
		dbc := dbChannel{}
		if err := rows.StructScan(&dbc); err != nil {
			return nil, errors.Wrap(errRetrieve, err)
		}
		t, ok := byName[dbc.TypeName]
		if !ok {
			t = &sensors.SensorType{Name: dbc.TypeName}
			byName[dbc.TypeName] = t
			order = append(order, dbc.TypeName)
		}
		t.Channels = append(t.Channels, sensors.Channel{ID: dbc.ID, Name: dbc.Name})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errRetrieve, err)
	}

	items := make([]sensors.SensorType, 0, len(order))
	for _, name := range order {
		items = append(items, *byName[name])
	}
	return items, nil
}

func (repo *sensorRepository) SetOnline(ctx context.Context, id uint64, online bool, at time.Time) error {
	q := `UPDATE sensors SET online = :online, status_changed_at = :status_changed_at WHERE id = :id`

	dbs := dbSensor{
		ID:     id,
		Online: online,
		StatusChangedAt: sql.NullTime{
			Time:  at,
			Valid: true,
		},
	}
	if _, err := repo.db.NamedExecContext(ctx, q, dbs); err != nil {
		return errors.Wrap(errUpdate, err)
	}
	return nil
}

type dbSensor struct {
	ID              uint64         `db:"id"`
	OriginAddr      sql.NullString `db:"origin_addr"`
	TypeName        sql.NullString `db:"type_name"`
	SecondaryID     sql.NullString `db:"secondary_id"`
	Online          bool           `db:"online"`
	StatusChangedAt sql.NullTime   `db:"status_changed_at"`
}

type dbChannel struct {
	ID       uint64 `db:"id"`
	TypeName string `db:"type_name"`
	Name     string `db:"name"`
}

func toSensor(dbs dbSensor) sensors.Sensor {
	s := sensors.Sensor{
		ID:          dbs.ID,
		OriginAddr:  dbs.OriginAddr.String,
		Type:        dbs.TypeName.String,
		SecondaryID: dbs.SecondaryID.String,
		Online:      dbs.Online,
	}
	if dbs.StatusChangedAt.Valid {
		s.StatusChangedAt = dbs.StatusChangedAt.Time
	}
	return s
}
