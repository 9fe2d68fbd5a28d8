// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package timescale

import migrate "github.com/rubenv/sql-migrate"

// Migration returns the reading hypertable migrations. The table is
// partitioned on the reading timestamp and compressed segments are keyed
// by sensor, matching the dominant query shape of one sensor over a time
// range.
func Migration() *migrate.MemoryMigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "sensor_data_1",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS sensor_data (
                        sensor_website_id INT NOT NULL,
                        data_timestamp    TIMESTAMPTZ NOT NULL,
                        data_channel      VARCHAR(3) NOT NULL,
                        counts_values     INT[] NOT NULL
                    )`,
					`SELECT create_hypertable('sensor_data', 'data_timestamp', if_not_exists => TRUE)`,
					`ALTER TABLE sensor_data SET (
                        timescaledb.compress,
                        timescaledb.compress_segmentby = 'sensor_website_id'
                    )`,
					`SELECT add_compression_policy('sensor_data', INTERVAL '14 days', if_not_exists => TRUE)`,
				},
				Down: []string{
					"DROP TABLE IF EXISTS sensor_data",
				},
			},
		},
	}
}
