package bdd

import (
	"fmt"
	"time"

	"github.com/chirino/conversation-service/internal/security"
	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

// jwtSecretExtraKey holds the shared secret the server under test verifies HS256 tokens with.
const jwtSecretExtraKey = "jwtSecret"

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		a := &authSteps{s: s}
		ctx.Step(`^I am authenticated as user "([^"]*)"$`, a.iAmAuthenticatedAsUser)
		ctx.Step(`^I am authenticated as user "([^"]*)" with a signed token$`, a.iAmAuthenticatedWithSignedToken)
		ctx.Step(`^I am authenticated as user "([^"]*)" with a token signed by another secret$`, a.iAmAuthenticatedWithForeignToken)
	})
}

type authSteps struct {
	s *cucumber.TestScenario
}

// In testing mode a token that is not a JWT is taken as the user id.
func (a *authSteps) iAmAuthenticatedAsUser(userID string) error {
	a.s.SetUser(userID)
	return nil
}

func (a *authSteps) iAmAuthenticatedWithSignedToken(userID string) error {
	secret, _ := a.s.Suite.Extra[jwtSecretExtraKey].(string)
	if secret == "" {
		return fmt.Errorf("suite extra %q is not configured", jwtSecretExtraKey)
	}
	return a.sign(userID, secret)
}

func (a *authSteps) iAmAuthenticatedWithForeignToken(userID string) error {
	return a.sign(userID, "a-different-secret-that-is-long-enough!")
}

func (a *authSteps) sign(userID, secret string) error {
	token, err := security.SignToken(secret, "", userID, time.Hour)
	if err != nil {
		return err
	}
	a.s.SetUser(userID)
	a.s.User().Token = token
	return nil
}
