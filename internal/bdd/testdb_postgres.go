package bdd

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"github.com/jackc/pgx/v5"
)

// PostgresTestDB implements cucumber.TestDB for Postgres.
type PostgresTestDB struct {
	DBURL string
}

var _ cucumber.TestDB = (*PostgresTestDB)(nil)

func (p *PostgresTestDB) ClearAll(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, p.DBURL)
	if err != nil {
		return fmt.Errorf("cleanup: failed to connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "TRUNCATE conversation_members, conversations, users"); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

func (p *PostgresTestDB) Query(ctx context.Context, query string) ([]map[string]any, error) {
	conn, err := pgx.Connect(ctx, p.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SQL query failed: %w", err)
	}
	defer rows.Close()

	result := []map[string]any{}
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// normalizeValue renders driver values the way feature tables spell them.
// normalizeValue turns driver values into the strings and numbers the SQL
// steps compare against. gorm's map scan hands back pointers, so those are
// dereferenced first.
func normalizeValue(v any) any {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem().Interface())
	}
	switch v := v.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return v
}
