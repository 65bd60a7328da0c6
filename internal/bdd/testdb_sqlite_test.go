package bdd

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/plugin/store/sqlite"
	"github.com/stretchr/testify/require"
)

func TestSQLiteTestDBQueryReturnsPlainValues(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "query.db")
	db, err := sqlite.Open(&cfg)
	require.NoError(t, err)

	rows, err := (&SQLiteTestDB{DB: db}).Query(context.Background(), `SELECT 1 AS n, 'bob' AS user_id, NULL AS missing`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1", fmt.Sprint(rows[0]["n"]))
	require.Equal(t, "bob", fmt.Sprint(rows[0]["user_id"]))
	require.Nil(t, rows[0]["missing"])
	require.True(t, rowMatches(rows[0], map[string]string{"n": "1", "user_id": "bob"}))
}

func TestNormalizeValue(t *testing.T) {
	n := int64(7)
	s := "x"
	var nilPtr *string
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.Equal(t, int64(7), normalizeValue(&n))
	require.Equal(t, "x", normalizeValue(&s))
	require.Nil(t, normalizeValue(nilPtr))
	require.Equal(t, "2024-01-02T03:04:05Z", normalizeValue(&ts))
	require.Equal(t, 1, normalizeValue(true))
	require.Equal(t, "raw", normalizeValue([]byte("raw")))
}
