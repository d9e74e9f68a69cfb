package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

//go:embed migration/000001_init_schema.up.sql
var schemaSQL string

// DefaultPostgresLimits - сколько спокойно переносят одна транзакция и один запрос
// = ANY($1) на наших инстансах.
var DefaultPostgresLimits = Limits{MaxWriteOps: 500, MaxQueryValues: 1000}

// PostgresStore реализует Store на PostgreSQL; один AtomicWrite - одна транзакция.
type PostgresStore struct {
	db     *sql.DB
	limits Limits
}

// NewPostgresStore wraps an open connection pool. Zero limits fall back to DefaultPostgresLimits.
func NewPostgresStore(conn *sql.DB, limits Limits) *PostgresStore {
	if limits.MaxWriteOps <= 0 {
		limits.MaxWriteOps = DefaultPostgresLimits.MaxWriteOps
	}
	if limits.MaxQueryValues <= 0 {
		limits.MaxQueryValues = DefaultPostgresLimits.MaxQueryValues
	}
	return &PostgresStore{db: conn, limits: limits}
}

func (s *PostgresStore) Limits() Limits {
	return s.limits
}

// ExecTx выполняет fn внутри транзакции: commit при nil, rollback при ошибке.
func (s *PostgresStore) ExecTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) AtomicWrite(ctx context.Context, ops []Operation) error {
	if err := checkWrite(s.limits, ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	return s.ExecTx(ctx, func(tx *sql.Tx) error {
		for _, op := range ops {
			query, args := buildInsert(op)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert into %s (key %s): %w", op.Collection, op.Key, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ExistingKeys(ctx context.Context, collection, field string, values []string) ([]string, error) {
	if err := checkQuery(s.limits, collection, values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s = ANY($1)",
		pq.QuoteIdentifier(field), pq.QuoteIdentifier(collection), pq.QuoteIdentifier(field))

	rows, err := s.db.QueryContext(ctx, query, pq.Array(values))
	if err != nil {
		return nil, fmt.Errorf("query existing %s.%s: %w", collection, field, err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		found = append(found, v)
	}
	return found, rows.Err()
}

// buildInsert строит INSERT для одной операции. Колонки отсортированы, текст
// запроса не меняется для одной формы записи.
func buildInsert(op Operation) (string, []any) {
	cols := make([]string, 0, len(op.Record))
	for c := range op.Record {
		if c == KeyField {
			continue
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, 0, len(cols)+1)
	placeholders := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)

	quoted = append(quoted, pq.QuoteIdentifier(KeyField))
	placeholders = append(placeholders, "$1")
	args = append(args, op.Key)

	for i, c := range cols {
		quoted = append(quoted, pq.QuoteIdentifier(c))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, toSQLValue(op.Record[c]))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(op.Collection), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return query, args
}

func toSQLValue(v any) any {
	switch val := v.(type) {
	case json.RawMessage:
		return pqtype.NullRawMessage{RawMessage: val, Valid: len(val) > 0}
	default:
		return v
	}
}
