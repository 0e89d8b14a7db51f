package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"actionflow/internal/action"
	"actionflow/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", cfg.Path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const itemCols = `id, title, description, type, status, priority, due_ms, metadata,
	created_at, updated_at, executed_at, completed_at, failure_reason`

func (s *sqliteStore) Find(ctx context.Context, id string) (action.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM action_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return action.Item{}, ErrNotFound
	}
	return it, err
}

func (s *sqliteStore) List(ctx context.Context, f Filter) ([]action.Item, error) {
	q := `SELECT ` + itemCols + ` FROM action_items`
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY due_ms ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *sqliteStore) Create(ctx context.Context, it action.Item) error {
	now := time.Now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	if it.UpdatedAt.IsZero() {
		it.UpdatedAt = now
	}
	meta, err := marshalMeta(it.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO action_items(`+itemCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.Title, it.Description, string(it.Type), string(it.Status), string(it.Priority),
		it.DueDate.UnixMilli(), meta,
		fmtTime(it.CreatedAt), fmtTime(it.UpdatedAt),
		fmtTimePtr(it.ExecutedAt), fmtTimePtr(it.CompletedAt), nullStr(it.FailureReason),
	)
	return err
}

func (s *sqliteStore) Update(ctx context.Context, id string, u Update) (action.Item, error) {
	// Read-modify-write inside a transaction; SQLite serializes writers so
	// this is consistent under the single-connection pool above.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return action.Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+itemCols+` FROM action_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return action.Item{}, ErrNotFound
	}
	if err != nil {
		return action.Item{}, err
	}

	u.apply(&it, time.Now())
	if err := writeItemTx(ctx, tx, it); err != nil {
		return action.Item{}, err
	}
	if err := tx.Commit(); err != nil {
		return action.Item{}, err
	}
	return it, nil
}

func (s *sqliteStore) UpdateStatusIf(ctx context.Context, id string, from, to action.Status) (action.Item, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE action_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), fmtTime(time.Now()), id, string(from),
	)
	if err != nil {
		return action.Item{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return action.Item{}, err
	}
	cur, ferr := s.Find(ctx, id)
	if n == 0 {
		if errors.Is(ferr, ErrNotFound) {
			return action.Item{}, ErrNotFound
		}
		if ferr != nil {
			return action.Item{}, ferr
		}
		return cur, ErrConflict
	}
	return cur, ferr
}

func (s *sqliteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM action_items WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) DueSoon(ctx context.Context, lookahead time.Duration) ([]action.Item, error) {
	until := time.Now().Add(lookahead).UnixMilli()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM action_items WHERE status = ? AND due_ms <= ? ORDER BY due_ms ASC`,
		string(action.StatusPending), until,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		ByStatus:   map[action.Status]int{},
		ByType:     map[action.Type]int{},
		ByPriority: map[action.Priority]int{},
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, type, priority FROM action_items`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, typ, prio string
		if err := rows.Scan(&status, &typ, &prio); err != nil {
			return st, err
		}
		st.Total++
		st.ByStatus[action.Status(status)]++
		st.ByType[action.Type(typ)]++
		st.ByPriority[action.Priority(prio)]++
	}
	return st, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, event, item_id, title, type, ok, err, took_ms) VALUES(?,?,?,?,?,?,?,?)`,
		fmtTime(e.At), e.Event, e.ItemID, nullStr(e.Title), nullStr(e.Type), e.OK, nullStr(e.Error), e.TookMS,
	)
	return err
}

// ---- row plumbing ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (action.Item, error) {
	var (
		it                  action.Item
		typ, status, prio   string
		dueMS               int64
		meta                sql.NullString
		createdAt, updated  string
		executed, completed sql.NullString
		failure             sql.NullString
	)
	err := r.Scan(&it.ID, &it.Title, &it.Description, &typ, &status, &prio, &dueMS, &meta,
		&createdAt, &updated, &executed, &completed, &failure)
	if err != nil {
		return action.Item{}, err
	}
	it.Type = action.Type(typ)
	it.Status = action.Status(status)
	it.Priority = action.Priority(prio)
	it.DueDate = time.UnixMilli(dueMS)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &it.Metadata); err != nil {
			return action.Item{}, fmt.Errorf("item %s: corrupt metadata: %w", it.ID, err)
		}
	}
	it.CreatedAt = parseTime(createdAt)
	it.UpdatedAt = parseTime(updated)
	it.ExecutedAt = parseTimePtr(executed)
	it.CompletedAt = parseTimePtr(completed)
	if failure.Valid {
		it.FailureReason = failure.String
	}
	return it, nil
}

func collectItems(rows *sql.Rows) ([]action.Item, error) {
	var out []action.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func writeItemTx(ctx context.Context, tx *sql.Tx, it action.Item) error {
	meta, err := marshalMeta(it.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE action_items SET title=?, description=?, type=?, status=?, priority=?, due_ms=?,
		 metadata=?, created_at=?, updated_at=?, executed_at=?, completed_at=?, failure_reason=?
		 WHERE id=?`,
		it.Title, it.Description, string(it.Type), string(it.Status), string(it.Priority),
		it.DueDate.UnixMilli(), meta, fmtTime(it.CreatedAt), fmtTime(it.UpdatedAt),
		fmtTimePtr(it.ExecutedAt), fmtTimePtr(it.CompletedAt), nullStr(it.FailureReason), it.ID,
	)
	return err
}

func marshalMeta(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func fmtTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
