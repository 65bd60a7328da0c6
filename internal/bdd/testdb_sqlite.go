package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"gorm.io/gorm"
)

// SQLiteTestDB implements cucumber.TestDB on the same file the server uses.
type SQLiteTestDB struct {
	DB *gorm.DB
}

var _ cucumber.TestDB = (*SQLiteTestDB)(nil)

func (d *SQLiteTestDB) ClearAll(ctx context.Context) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"conversation_members", "conversations", "users"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("cleanup: failed to delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

func (d *SQLiteTestDB) Query(ctx context.Context, query string) ([]map[string]any, error) {
	result := []map[string]any{}
	if err := d.DB.WithContext(ctx).Raw(query).Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("SQL query failed: %w", err)
	}
	for _, row := range result {
		for k, v := range row {
			row[k] = normalizeValue(v)
		}
	}
	return result, nil
}
