// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package postgres

import migrate "github.com/rubenv/sql-migrate"

// Migration returns the catalog schema migrations.
func Migration() *migrate.MemoryMigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "sensors_1",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS sensor_types (
                        name VARCHAR(64) PRIMARY KEY
                    )`,
					`CREATE TABLE IF NOT EXISTS sensor_channels (
                        id          SERIAL PRIMARY KEY,
                        type_name   VARCHAR(64) REFERENCES sensor_types (name) ON DELETE CASCADE,
                        name        VARCHAR(3) NOT NULL,
                        UNIQUE (type_name, name)
                    )`,
					`CREATE TABLE IF NOT EXISTS sensors (
                        id                BIGSERIAL PRIMARY KEY,
                        origin_addr       VARCHAR(64),
                        type_name         VARCHAR(64) REFERENCES sensor_types (name),
                        secondary_id      VARCHAR(254),
                        online            BOOLEAN NOT NULL DEFAULT false,
                        status_changed_at TIMESTAMPTZ
                    )`,
				},
				Down: []string{
					"DROP TABLE IF EXISTS sensors",
					"DROP TABLE IF EXISTS sensor_channels",
					"DROP TABLE IF EXISTS sensor_types",
				},
			},
		},
	}
}
