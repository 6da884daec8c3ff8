package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/abritton2002/emg-collector/internal/sensor"
)

// DefaultMaxBatchSize is the number of samples written per insert statement
const DefaultMaxBatchSize = 500

// WithMaxBatchSize sets the number of samples written per insert statement
func WithMaxBatchSize(n int) func(*SqliteStore) {
	return func(s *SqliteStore) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath       string
	maxBatchSize int

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema initialized on first use.
func NewSqliteStore(dbPath string, options ...func(*SqliteStore)) *SqliteStore {
	s := SqliteStore{
		dbPath:       dbPath,
		maxBatchSize: DefaultMaxBatchSize,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

// getReadDB opens the read-only connection. The write connection is opened
// first so the database file and schema exist.
func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, baseName, layout string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData.Valid = true
			configData.String = c

		case []byte:
			configData.Valid = true
			configData.String = string(c)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, time.Now().UTC(), baseName, layout, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.StartTime, &sess.BaseName, &sess.Layout, &config, &sess.Samples); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.StartTime, &sess.BaseName, &sess.Layout, &config, &sess.Samples); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
	}
	return
}

func (s *SqliteStore) StoreSensors(ctx context.Context, sessionID int64, sensors []sensor.Sensor) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteSensorsSQL, sessionID); err != nil {
		return fmt.Errorf("deleting sensors: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSensorSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for i, sen := range sensors {
		channels, mErr := json.Marshal(sen.Channels)
		if mErr != nil {
			return fmt.Errorf("marshaling channels of sensor %d: %w", sen.PairNumber, mErr)
		}
		if _, err = stmt.ExecContext(ctx, sessionID, i, sen.PairNumber, sen.Name, string(channels)); err != nil {
			return fmt.Errorf("inserting sensor %d: %w", sen.PairNumber, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) StoreHeaders(ctx context.Context, sessionID int64, sensorHeaders, channelHeaders []string) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteChannelsSQL, sessionID); err != nil {
		return fmt.Errorf("deleting channels: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertChannelSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for i, header := range channelHeaders {
		var sensorHeader sql.NullString
		if i < len(sensorHeaders) {
			sensorHeader = sql.NullString{String: sensorHeaders[i], Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, sessionID, i, header, sensorHeader); err != nil {
			return fmt.Errorf("inserting channel %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) StoreSamples(ctx context.Context, sessionID int64, samples []Sample) (err error) {
	if len(samples) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	const valuesPlaceholder = "(?, ?, ?, ?)"

	for batch := range slices.Chunk(samples, s.maxBatchSize) {
		values := make([]any, 0, len(batch)*4)

		var sb strings.Builder
		sb.WriteString(insertSampleSQL)

		for i, sample := range batch {
			values = append(values, sessionID, sample.Channel, sample.Seq, sample.Value)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting samples: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) SetMuscleLabel(ctx context.Context, sessionID int64, pairNumber int, label string) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, upsertMuscleLabelSQL, sessionID, pairNumber, label); err != nil {
		return fmt.Errorf("storing muscle label: %w", err)
	}
	return nil
}

func (s *SqliteStore) LoadSession(ctx context.Context, id int64) (*Recording, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return nil, err
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rec := Recording{Session: sess}

	steps := []struct {
		msg string
		fn  func(context.Context, *sql.DB, *Recording) error
	}{
		{msg: "loading sensors", fn: s.loadSensors},
		{msg: "loading channels", fn: s.loadChannels},
		{msg: "loading muscle labels", fn: s.loadLabels},
		{msg: "loading samples", fn: s.loadSamples},
	}
	for _, step := range steps {
		if err = step.fn(ctx, db, &rec); err != nil {
			return nil, fmt.Errorf("%s: %w", step.msg, err)
		}
	}

	return &rec, nil
}

func (s *SqliteStore) loadSensors(ctx context.Context, db *sql.DB, rec *Recording) (err error) {
	rows, err := db.QueryContext(ctx, selectSensorsSQL, rec.Session.ID)
	if err != nil {
		return fmt.Errorf("querying sensors: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sen sensor.Sensor
		var channels string
		if err = rows.Scan(&sen.PairNumber, &sen.Name, &channels); err != nil {
			return fmt.Errorf("scanning sensor: %w", err)
		}
		if err = json.Unmarshal([]byte(channels), &sen.Channels); err != nil {
			return fmt.Errorf("unmarshaling channels of sensor %d: %w", sen.PairNumber, err)
		}
		rec.Sensors = append(rec.Sensors, sen)
	}
	return rows.Err()
}

func (s *SqliteStore) loadChannels(ctx context.Context, db *sql.DB, rec *Recording) (err error) {
	rows, err := db.QueryContext(ctx, selectChannelsSQL, rec.Session.ID)
	if err != nil {
		return fmt.Errorf("querying channels: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var header string
		var sensorHeader sql.NullString
		if err = rows.Scan(&header, &sensorHeader); err != nil {
			return fmt.Errorf("scanning channel: %w", err)
		}
		rec.ChannelHeaders = append(rec.ChannelHeaders, header)
		if sensorHeader.Valid {
			rec.SensorHeaders = append(rec.SensorHeaders, sensorHeader.String)
		}
	}
	return rows.Err()
}

func (s *SqliteStore) loadLabels(ctx context.Context, db *sql.DB, rec *Recording) (err error) {
	rows, err := db.QueryContext(ctx, selectMuscleLabelsSQL, rec.Session.ID)
	if err != nil {
		return fmt.Errorf("querying muscle labels: %w", err)
	}
	defer closeWithError(rows, &err)

	rec.Labels = make(map[int]string)
	for rows.Next() {
		var pairNumber int
		var label string
		if err = rows.Scan(&pairNumber, &label); err != nil {
			return fmt.Errorf("scanning muscle label: %w", err)
		}
		rec.Labels[pairNumber] = label
	}
	return rows.Err()
}

// loadSamples reads the samples of every channel into rec.Channels. Gaps in
// the sequence are not expected since samples are stored in order.
func (s *SqliteStore) loadSamples(ctx context.Context, db *sql.DB, rec *Recording) (err error) {
	rec.Channels = make([][]float64, len(rec.ChannelHeaders))
	if len(rec.ChannelHeaders) == 0 {
		return nil
	}

	reader, err := newSampleReader(ctx, db, rec.Session.ID)
	if err != nil {
		return err
	}
	defer closeWithError(reader, &err)

	for reader.Next(ctx) {
		sample := reader.Current()
		if sample.Channel < 0 || sample.Channel >= len(rec.Channels) {
			return fmt.Errorf("sample of unknown channel %d", sample.Channel)
		}
		rec.Channels[sample.Channel] = append(rec.Channels[sample.Channel], sample.Value)
	}
	if err = reader.Error(); err != nil && !errors.Is(err, ErrNoData) {
		return err
	}
	return nil
}

// ReadSamples creates a SampleReader over the samples of a session, ordered
// by channel and sequence. The reader must be closed after use.
func (s *SqliteStore) ReadSamples(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SampleReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSampleReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) RecordExport(ctx context.Context, e Export) (id string, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err = db.ExecContext(ctx, insertExportSQL,
		e.ID,
		e.SessionID,
		e.CreatedAt.UTC(),
		e.Kind,
		e.Path,
		e.Rows,
		toNullFloat64(e.CollectionLength),
		e.Size,
	)
	if err != nil {
		err = fmt.Errorf("inserting export: %w", err)
		return
	}

	return e.ID, nil
}

func (s *SqliteStore) Exports(ctx context.Context, sessionID int64) (exports []*Export, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectExportsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying exports: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d exportData
		if err = rows.Scan(&d.ID, &d.SessionID, &d.CreatedAt, &d.Kind, &d.Path, &d.Rows, &d.CollectionLength, &d.Size); err != nil {
			err = fmt.Errorf("scanning export: %w", err)
			return
		}
		exports = append(exports, toExport(&d))
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating exports: %w", err)
	}
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
