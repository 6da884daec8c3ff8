package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      base_name,
                      layout,
                      config)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT id,
       start_time,
       base_name,
       layout,
       config,
       (SELECT COUNT(*) FROM samples WHERE samples.session_id = sessions.id)
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       start_time,
       base_name,
       layout,
       config,
       (SELECT COUNT(*) FROM samples WHERE samples.session_id = sessions.id)
FROM sessions
ORDER BY start_time, id`

	deleteSensorsSQL = `DELETE FROM sensors WHERE session_id = ?`

	insertSensorSQL = `
INSERT INTO sensors (session_id,
                     position,
                     pair_number,
                     name,
                     channels)
VALUES (?, ?, ?, ?, ?)`

	selectSensorsSQL = `
SELECT pair_number,
       name,
       channels
FROM sensors
WHERE session_id = ?
ORDER BY position`

	deleteChannelsSQL = `DELETE FROM channels WHERE session_id = ?`

	insertChannelSQL = `
INSERT INTO channels (session_id,
                      channel_index,
                      header,
                      sensor_header)
VALUES (?, ?, ?, ?)`

	selectChannelsSQL = `
SELECT header,
       sensor_header
FROM channels
WHERE session_id = ?
ORDER BY channel_index`

	insertSampleSQL = `
INSERT INTO samples (session_id,
                     channel_index,
                     seq,
                     value)
VALUES `

	selectSamplesSQL = `
SELECT channel_index,
       seq,
       value
FROM samples
WHERE session_id = ?
  AND channel_index BETWEEN ? AND ?
ORDER BY channel_index, seq`

	upsertMuscleLabelSQL = `
INSERT INTO muscle_labels (session_id,
                           pair_number,
                           label)
VALUES (?, ?, ?)
ON CONFLICT (session_id, pair_number) DO UPDATE SET label = excluded.label`

	selectMuscleLabelsSQL = `
SELECT pair_number,
       label
FROM muscle_labels
WHERE session_id = ?`

	insertExportSQL = `
INSERT INTO exports (id,
                     session_id,
                     created_at,
                     kind,
                     path,
                     rows,
                     collection_length,
                     size)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectExportsSQL = `
SELECT id,
       session_id,
       created_at,
       kind,
       path,
       rows,
       collection_length,
       size
FROM exports
WHERE session_id = ?
ORDER BY created_at, rowid`
)
