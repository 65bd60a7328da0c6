package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		u := &userSteps{s: s}
		ctx.Before(u.resetData)
		ctx.Step(`^the following users exist:$`, u.theFollowingUsersExist)
	})
}

type userSteps struct {
	s *cucumber.TestScenario
}

// resetData empties the datastore so every scenario starts without users or
// conversations.
func (u *userSteps) resetData(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
	if u.s.Suite.DB == nil {
		return ctx, nil
	}
	return ctx, u.s.Suite.DB.ClearAll(ctx)
}

// theFollowingUsersExist seeds profiles from a table whose header names the
// columns: id, name, email, phone, profilePic, password.
func (u *userSteps) theFollowingUsersExist(table *godog.Table) error {
	if u.s.Suite.Store == nil {
		return fmt.Errorf("no store configured for seeding users")
	}
	if len(table.Rows) < 2 {
		return fmt.Errorf("users table needs a header row and at least one user")
	}
	header := table.Rows[0].Cells
	for _, row := range table.Rows[1:] {
		var user model.User
		for i, cell := range row.Cells {
			switch header[i].Value {
			case "id":
				user.ID = cell.Value
			case "name":
				user.Name = cell.Value
			case "email":
				user.Email = cell.Value
			case "phone":
				user.Phone = cell.Value
			case "profilePic":
				user.ProfilePic = cell.Value
			case "password":
				user.Password = cell.Value
			default:
				return fmt.Errorf("unknown users column %q", header[i].Value)
			}
		}
		if user.ID == "" {
			return fmt.Errorf("users table row is missing an id")
		}
		if err := u.s.Suite.Store.PutUser(context.Background(), user); err != nil {
			return fmt.Errorf("seed user %s: %w", user.ID, err)
		}
	}
	return nil
}
