package bdd

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		q := &queryResult{s: s}
		ctx.Step(`^I execute SQL query:$`, q.execute)
		ctx.Step(`^the SQL result should have (\d+) rows?$`, q.shouldHaveRows)
		ctx.Step(`^the SQL result should match:$`, q.shouldMatch)
		ctx.Step(`^the SQL result should contain:$`, q.shouldContain)
	})
}

// queryResult holds the rows of the last direct datastore query. The rows
// also become the session response so jq selection steps work on them.
// Backends without SQL return nil rows and every assertion passes.
type queryResult struct {
	s    *cucumber.TestScenario
	rows []map[string]any
}

func (q *queryResult) execute(query *godog.DocString) error {
	if q.s.Suite.DB == nil {
		return fmt.Errorf("no TestDB configured")
	}
	sql, err := q.s.Expand(query.Content)
	if err != nil {
		return err
	}
	if q.rows, err = q.s.Suite.DB.Query(context.Background(), sql); err != nil || q.rows == nil {
		return err
	}
	body, err := json.Marshal(q.rows)
	if err != nil {
		return err
	}
	q.s.Session().SetRespBytes(body)
	return nil
}

func (q *queryResult) shouldHaveRows(n int) error {
	if q.rows != nil && len(q.rows) != n {
		return fmt.Errorf("query returned %d row(s), want %d", len(q.rows), n)
	}
	return nil
}

// shouldMatch compares rows in order and requires the same row count.
func (q *queryResult) shouldMatch(table *godog.Table) error {
	if q.rows == nil {
		return nil
	}
	want, err := q.expectedRows(table)
	if err != nil {
		return err
	}
	if len(want) != len(q.rows) {
		return fmt.Errorf("query returned %d row(s), want %d: %v", len(q.rows), len(want), q.rows)
	}
	for i, row := range want {
		if !rowMatches(q.rows[i], row) {
			return fmt.Errorf("row %d is %v, want %v", i, q.rows[i], row)
		}
	}
	return nil
}

// shouldContain requires every expected row to appear somewhere in the result.
func (q *queryResult) shouldContain(table *godog.Table) error {
	if q.rows == nil {
		return nil
	}
	want, err := q.expectedRows(table)
	if err != nil {
		return err
	}
	for _, row := range want {
		if !slices.ContainsFunc(q.rows, func(got map[string]any) bool { return rowMatches(got, row) }) {
			return fmt.Errorf("no row matches %v in %v", row, q.rows)
		}
	}
	return nil
}

func (q *queryResult) expectedRows(table *godog.Table) ([]map[string]string, error) {
	if len(table.Rows) < 2 {
		return nil, fmt.Errorf("table needs a header row and at least one data row")
	}
	header := table.Rows[0].Cells
	rows := make([]map[string]string, 0, len(table.Rows)-1)
	for _, r := range table.Rows[1:] {
		row := make(map[string]string, len(header))
		for i, cell := range r.Cells {
			v, err := q.s.Expand(cell.Value)
			if err != nil {
				return nil, err
			}
			row[header[i].Value] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rowMatches(got map[string]any, want map[string]string) bool {
	for col, v := range want {
		if fmt.Sprint(got[col]) != v {
			return false
		}
	}
	return true
}
