package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "winova/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	doc        TEXT    NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_seq ON documents(collection, seq);
`

// sqliteStore keeps every collection in one table; documents are JSON text
// and filters/sorts go through json_extract.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	seq seqGen
}

func openSQLite(cfg Config, log logx.Logger) (Gateway, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}

	st := &sqliteStore{db: db, log: log}
	var maxSeq sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(seq) FROM documents`).Scan(&maxSeq); err == nil && maxSeq.Valid {
		st.seq.observe(maxSeq.Int64)
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Insert(ctx context.Context, collection string, doc any) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrDisabled
	}
	if !validCollection(collection) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	m, id, err := toDocument(doc)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents(collection, id, seq, doc) VALUES(?,?,?,?)`,
		collection, id, s.seq.next(), string(b),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *sqliteStore) Find(ctx context.Context, collection string, q Query, out any) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if !validCollection(collection) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	filter, err := normalizeFilter(q.Filter)
	if err != nil {
		return err
	}
	field, desc, err := parseSort(q.Sort)
	if err != nil {
		return err
	}

	var (
		where  = []string{"collection = ?"}
		args   = []any{collection}
		postFn map[string]any
	)
	for k, v := range filter {
		path := "json_extract(doc, '$." + k + "')"
		switch x := v.(type) {
		case nil:
			where = append(where, path+" IS NULL")
		case string, float64:
			where = append(where, path+" = ?")
			args = append(args, x)
		case bool:
			// json_extract yields 1/0 for JSON booleans.
			b := 0
			if x {
				b = 1
			}
			where = append(where, path+" = ?")
			args = append(args, b)
		default:
			// Objects and arrays are matched in Go after loading.
			if postFn == nil {
				postFn = map[string]any{}
			}
			postFn[k] = x
		}
	}

	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	order := "seq " + dir
	if field != "" {
		order = "json_extract(doc, '$." + field + "') " + dir + ", seq " + dir
	}
	query := "SELECT doc FROM documents WHERE " + strings.Join(where, " AND ") + " ORDER BY " + order
	if q.Limit > 0 && postFn == nil {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite find %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			s.log.Warn("sqlite: skipping undecodable document", logx.String("collection", collection), logx.Err(err))
			continue
		}
		if postFn != nil && !matches(m, postFn) {
			continue
		}
		docs = append(docs, m)
		if q.Limit > 0 && len(docs) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return decodeInto(docs, out)
}
