/*
Package sqlite implements a log sink storing the records in a local
sqlite database, for single instance deployments.

The records are stored as JSON documents. The time and the status code
of the records are extracted into indexed columns for the searches.
Records older than the retention are deleted on a cron schedule.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/passeplat/passeplat/logsink"
)

const (
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultPruneSchedule = "0 3 * * *"
	DefaultBusyTimeout   = 5 * time.Second

	timeFormat = "2006-01-02T15:04:05.000000Z"
)

type Options struct {

	// Path of the database file.
	Path string

	// Retention of the records. Defaults to DefaultRetention.
	Retention time.Duration

	// PruneSchedule in standard cron format. Defaults to
	// DefaultPruneSchedule. Set to "-" to disable pruning.
	PruneSchedule string

	BusyTimeout time.Duration

	// Now overrides the clock, for testing.
	Now func() time.Time
}

type Sink struct {
	options   Options
	db        *sql.DB
	cron      *cron.Cron
	closeOnce sync.Once
	insert    *sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	idx TEXT NOT NULL,
	ts TEXT NOT NULL,
	status INTEGER NOT NULL,
	created INTEGER NOT NULL,
	data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_ts ON records(idx, ts);
CREATE INDEX IF NOT EXISTS idx_records_created ON records(created);
`

// New opens or creates the database, and starts the pruning schedule.
func New(o Options) (*Sink, error) {
	if o.Path == "" {
		return nil, errors.New("sqlite sink: path cannot be empty")
	}

	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}

	if o.PruneSchedule == "" {
		o.PruneSchedule = DefaultPruneSchedule
	}

	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		o.Path,
		o.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	insert, err := db.Prepare(`INSERT INTO records (id, idx, ts, status, created, data) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	s := &Sink{options: o, db: db, insert: insert}
	if o.PruneSchedule != "-" {
		if err := s.schedulePruning(); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *Sink) schedulePruning() error {
	if _, err := cron.ParseStandard(s.options.PruneSchedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.options.PruneSchedule, err)
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.options.PruneSchedule, func() {
		n, err := s.Prune(context.Background())
		if err != nil {
			log.Errorf("failed to prune log records: %v", err)
			return
		}

		log.Debugf("pruned %d log records", n)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	return nil
}

func recordTime(r logsink.Record) string {
	t, ok := r.Time()
	if !ok {
		return ""
	}

	return t.UTC().Format(timeFormat)
}

func (s *Sink) store(ctx context.Context, stmt *sql.Stmt, index string, r logsink.Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("invalid record: %w", err)
	}

	status, _ := r.Int(logsink.StatusField)
	id := uuid.NewString()
	_, err = stmt.ExecContext(ctx, id, index, recordTime(r), status, s.options.Now().UnixNano(), string(data))
	return id, err
}

func (s *Sink) LogItem(ctx context.Context, index string, r logsink.Record) (logsink.ItemResult, error) {
	id, err := s.store(ctx, s.insert, index, r)
	if err != nil {
		return logsink.ItemResult{}, err
	}

	return logsink.ItemResult{ID: id, Result: logsink.ResultCreated}, nil
}

// LogBulk stores the records in a single transaction.
func (s *Sink) LogBulk(ctx context.Context, index string, r []logsink.Record) error {
	if len(r) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt := tx.StmtContext(ctx, s.insert)
	for _, ri := range r {
		if _, err := s.store(ctx, stmt, index, ri); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

func (s *Sink) Search(ctx context.Context, index string, q logsink.Query) ([]logsink.Hit, error) {
	where := []string{"idx = ?"}
	args := []interface{}{index}
	for k, v := range q.Terms {
		where = append(where, "json_extract(data, ?) = ?")
		args = append(args, jsonPath(k), v)
	}

	for _, k := range q.Exclude {
		where = append(where, "IFNULL(json_extract(data, ?), 0) = 0")
		args = append(args, jsonPath(k))
	}

	if q.StatusFrom != 0 {
		where = append(where, "status >= ?")
		args = append(args, q.StatusFrom)
	}

	if q.StatusTo != 0 {
		where = append(where, "status <= ?")
		args = append(args, q.StatusTo)
	}

	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UTC().Format(timeFormat))
	}

	args = append(args, q.Limit())
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT id, data FROM records WHERE "+strings.Join(where, " AND ")+" ORDER BY ts DESC, rowid DESC LIMIT ?",
		args...,
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var hits []logsink.Hit
	for rows.Next() {
		var (
			id, data string
			r        logsink.Record
		)

		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("invalid record %s: %w", id, err)
		}

		hits = append(hits, logsink.Hit{ID: id, Record: r})
	}

	return hits, rows.Err()
}

// Prune deletes the records stored before the retention period.
func (s *Sink) Prune(ctx context.Context) (int64, error) {
	cutoff := s.options.Now().Add(-s.options.Retention).UnixNano()
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE created < ?", cutoff)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}

		s.insert.Close()
		err = s.db.Close()
	})

	return err
}
