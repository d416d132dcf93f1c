// Package sqlstore implements a database/sql-backed storage adapter,
// portable across any driver with a Dialect: SQLite (modernc.org/sqlite)
// and PostgreSQL (lib/pq) out of the box.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
)

// Adapter is a database/sql-generic store.Adapter implementation.
type Adapter struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens driverName/dsn and wraps it with dialect, creating the tuples
// table and its indexes if they don't already exist.
func Open(ctx context.Context, driverName, dsn string, dialect Dialect) (*Adapter, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, store.Wrap("Open", err)
	}
	a := &Adapter{db: db, dialect: dialect}
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// OpenSQLite opens a modernc.org/sqlite-backed adapter.
func OpenSQLite(ctx context.Context, dsn string) (*Adapter, error) {
	return Open(ctx, "sqlite", dsn, SQLite{})
}

// OpenPostgres opens a lib/pq-backed adapter.
func OpenPostgres(ctx context.Context, dsn string) (*Adapter, error) {
	return Open(ctx, "postgres", dsn, Postgres{})
}

func (a *Adapter) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(a.dialect.CreateTableSQL(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return store.Wrap("migrate", err)
		}
	}
	return nil
}

// Close releases the underlying *sql.DB.
func (a *Adapter) Close() error { return a.db.Close() }

func (a *Adapter) Write(ctx context.Context, tuples []model.Tuple) ([]model.Tuple, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Wrap("Write", err)
	}
	defer tx.Rollback()

	out := make([]model.Tuple, len(tuples))
	for i, t := range tuples {
		stored := t
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}

		var since, until *time.Time
		if stored.Condition != nil {
			since, until = stored.Condition.ValidSince, stored.Condition.ValidUntil
		}

		ph := a.dialect.Placeholder
		query := fmt.Sprintf(
			`INSERT INTO rebac_tuples (id, subject_type, subject_id, relation, object_type, object_id, valid_since, valid_until) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
			ph(1), ph(2), ph(3), ph(4), ph(5), ph(6), ph(7), ph(8),
		)
		if _, err := tx.ExecContext(ctx, query,
			stored.ID, stored.Subject.Type, stored.Subject.ID, string(stored.Relation),
			stored.Object.Type, stored.Object.ID, since, until,
		); err != nil {
			return nil, store.Wrap("Write", err)
		}
		out[i] = stored
	}

	if err := tx.Commit(); err != nil {
		return nil, store.Wrap("Write", err)
	}
	return out, nil
}

func (a *Adapter) Delete(ctx context.Context, filter store.DeleteFilter) (int, error) {
	if filter.Empty() {
		slog.Warn("sqlstore: delete called with empty filter; refusing to delete anything")
		return 0, nil
	}

	var clauses []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return a.dialect.Placeholder(len(args))
	}

	if filter.Who != nil {
		clauses = append(clauses, fmt.Sprintf("(subject_type = %s AND subject_id = %s)", arg(filter.Who.Type), arg(filter.Who.ID)))
	}
	if filter.Was != nil {
		clauses = append(clauses, fmt.Sprintf("relation = %s", arg(string(*filter.Was))))
	}
	if filter.OnWhat != nil {
		onWhatType, onWhatID := arg(filter.OnWhat.Type), arg(filter.OnWhat.ID)
		clauses = append(clauses, fmt.Sprintf(
			"((object_type = %s AND object_id = %s) OR (subject_type = %s AND subject_id = %s))",
			onWhatType, onWhatID, onWhatType, onWhatID,
		))
	}

	query := "DELETE FROM rebac_tuples WHERE " + strings.Join(clauses, " AND ")
	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, store.Wrap("Delete", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, store.Wrap("Delete", err)
	}
	return int(n), nil
}

func (a *Adapter) FindTuples(ctx context.Context, partial store.Filter) ([]model.Tuple, error) {
	var clauses []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return a.dialect.Placeholder(len(args))
	}

	if partial.Subject != nil {
		clauses = append(clauses, fmt.Sprintf("subject_type = %s AND subject_id = %s", arg(partial.Subject.Type), arg(partial.Subject.ID)))
	}
	if partial.Relation != nil {
		clauses = append(clauses, fmt.Sprintf("relation = %s", arg(string(*partial.Relation))))
	}
	if partial.Object != nil {
		clauses = append(clauses, fmt.Sprintf("object_type = %s AND object_id = %s", arg(partial.Object.Type), arg(partial.Object.ID)))
	}
	if partial.ConditionSet && partial.Condition == nil {
		clauses = append(clauses, "valid_since IS NULL AND valid_until IS NULL")
	}

	query := "SELECT id, subject_type, subject_id, relation, object_type, object_id, valid_since, valid_until FROM rebac_tuples"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap("FindTuples", err)
	}
	defer rows.Close()

	var out []model.Tuple
	for rows.Next() {
		t, err := scanTuple(rows)
		if err != nil {
			return nil, store.Wrap("FindTuples", err)
		}
		if partial.ConditionSet && partial.Condition != nil && !t.Condition.Equal(partial.Condition) {
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("FindTuples", err)
	}
	return out, nil
}

func scanTuple(rows *sql.Rows) (model.Tuple, error) {
	var t model.Tuple
	var relation string
	var since, until sql.NullTime
	if err := rows.Scan(&t.ID, &t.Subject.Type, &t.Subject.ID, &relation, &t.Object.Type, &t.Object.ID, &since, &until); err != nil {
		return model.Tuple{}, err
	}
	t.Relation = model.Relation(relation)
	if since.Valid || until.Valid {
		t.Condition = &model.Condition{}
		if since.Valid {
			t.Condition.ValidSince = &since.Time
		}
		if until.Valid {
			t.Condition.ValidUntil = &until.Time
		}
	}
	return t, nil
}

func (a *Adapter) FindSubjects(ctx context.Context, object model.Object, relation model.Relation, opts store.FindSubjectsOptions) ([]model.SubjectRef, error) {
	ph := a.dialect.Placeholder
	args := []interface{}{object.Type, object.ID, string(relation)}
	query := fmt.Sprintf(
		`SELECT DISTINCT subject_type, subject_id FROM rebac_tuples WHERE object_type = %s AND object_id = %s AND relation = %s`,
		ph(1), ph(2), ph(3),
	)
	if opts.SubjectType != "" {
		args = append(args, opts.SubjectType)
		query += fmt.Sprintf(" AND subject_type = %s", ph(len(args)))
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap("FindSubjects", err)
	}
	defer rows.Close()

	var out []model.SubjectRef
	for rows.Next() {
		var ref model.SubjectRef
		if err := rows.Scan(&ref.Type, &ref.ID); err != nil {
			return nil, store.Wrap("FindSubjects", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (a *Adapter) FindObjects(ctx context.Context, subject model.SubjectRef, relation model.Relation, opts store.FindObjectsOptions) ([]model.Object, error) {
	ph := a.dialect.Placeholder
	args := []interface{}{subject.Type, subject.ID, string(relation)}
	query := fmt.Sprintf(
		`SELECT DISTINCT object_type, object_id FROM rebac_tuples WHERE subject_type = %s AND subject_id = %s AND relation = %s`,
		ph(1), ph(2), ph(3),
	)
	if opts.ObjectType != "" {
		args = append(args, opts.ObjectType)
		query += fmt.Sprintf(" AND object_type = %s", ph(len(args)))
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Wrap("FindObjects", err)
	}
	defer rows.Close()

	var out []model.Object
	for rows.Next() {
		var o model.Object
		if err := rows.Scan(&o.Type, &o.ID); err != nil {
			return nil, store.Wrap("FindObjects", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ store.Adapter = (*Adapter)(nil)
