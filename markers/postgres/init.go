// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package postgres

import migrate "github.com/rubenv/sql-migrate"

// Migration returns the marker schema migrations.
func Migration() *migrate.MemoryMigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "markers_1",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS channel_markers (
                        id          BIGSERIAL PRIMARY KEY,
                        sensor_type VARCHAR(64) NOT NULL,
                        channel     VARCHAR(3),
                        label       VARCHAR(254) NOT NULL,
                        style       VARCHAR(64),
                        value       DOUBLE PRECISION NOT NULL DEFAULT 0,
                        enabled     BOOLEAN NOT NULL DEFAULT true
                    )`,
					`CREATE INDEX IF NOT EXISTS channel_markers_type_idx ON channel_markers (sensor_type)`,
				},
				Down: []string{
					"DROP TABLE IF EXISTS channel_markers",
				},
			},
		},
	}
}
