// Package cucumber runs godog features against a live conversation service.
//
// Each scenario acts as one or more users. Every user has its own HTTP
// session, so switching users also switches the "last response". Step text
// may reference ${...} expressions; see Resolve for the syntax.
package cucumber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

func NewTestSuite() *TestSuite {
	return &TestSuite{
		APIURL: "http://localhost:8080",
		Extra:  map[string]any{},
	}
}

func DefaultOptions() godog.Options {
	return godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       []string{"testdata/features"},
		Randomize:   time.Now().UTC().UnixNano(),
		Concurrency: 1,
	}
}

// ApplyReportOptions configures junit XML output when GODOG_REPORT_DIR is set.
// The returned cleanup must run after the suite.
func ApplyReportOptions(opts *godog.Options, testName string) func() {
	reportDir := os.Getenv("GODOG_REPORT_DIR")
	if reportDir == "" {
		return func() {}
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return func() {}
	}
	f, err := os.Create(filepath.Join(reportDir, strings.ReplaceAll(testName, "/", "-")+".xml"))
	if err != nil {
		return func() {}
	}
	opts.Output = f
	opts.Format = "junit"
	return func() { _ = f.Close() }
}

// TestDB gives steps direct access to the backing datastore.
type TestDB interface {
	// ClearAll wipes all conversations and profiles. Called before each scenario.
	ClearAll(ctx context.Context) error
	// Query runs a raw SQL query and returns rows as maps. Non-SQL backends
	// return (nil, nil) so SQL assertions are skipped.
	Query(ctx context.Context, query string) ([]map[string]any, error)
}

// TestSuite holds state global to all test scenarios.
type TestSuite struct {
	APIURL   string
	TestingT *testing.T
	Extra    map[string]any
	DB       TestDB
	// Store seeds user profiles, which the API itself never writes.
	Store registrystore.ConversationStore
}

// TestUser represents a user that can interact with the API.
type TestUser struct {
	Name  string
	Token string // sent as the auth-token header
}

// TestScenario holds state for a single scenario. Not accessed concurrently.
type TestScenario struct {
	Suite       *TestSuite
	CurrentUser string
	sessions    map[string]*TestSession
	Variables   map[string]any
	Users       map[string]*TestUser
}

// SetUser switches the scenario to userID, creating it on first use.
func (s *TestScenario) SetUser(userID string) {
	if s.Users[userID] == nil {
		s.Users[userID] = &TestUser{Name: userID, Token: userID}
	}
	s.CurrentUser = userID
}

func (s *TestScenario) User() *TestUser {
	return s.Users[s.CurrentUser]
}

func (s *TestScenario) Session() *TestSession {
	result := s.sessions[s.CurrentUser]
	if result == nil {
		result = &TestSession{
			TestUser: s.User(),
			Client:   &http.Client{Timeout: 30 * time.Second},
			Header:   http.Header{},
		}
		s.sessions[s.CurrentUser] = result
	}
	return result
}

// TestSession holds the HTTP context for a user, like a browser.
type TestSession struct {
	TestUser  *TestUser
	Client    *http.Client
	Resp      *http.Response
	RespBytes []byte
	respJSON  any
	Header    http.Header
}

// RespJSON returns the last HTTP response body as parsed JSON.
func (s *TestSession) RespJSON() (any, error) {
	if s.respJSON == nil {
		if s.RespBytes == nil {
			return nil, fmt.Errorf("no response body")
		}
		if err := json.Unmarshal(s.RespBytes, &s.respJSON); err != nil {
			return nil, fmt.Errorf("error parsing response json: %w\njson was:\n%s", err, s.RespBytes)
		}
	}
	return s.respJSON, nil
}

func (s *TestSession) SetRespBytes(data []byte) {
	s.RespBytes = data
	s.respJSON = nil
}

// StepModules is the list of functions used to register steps with a godog.ScenarioContext.
var StepModules []func(ctx *godog.ScenarioContext, s *TestScenario)

func (suite *TestSuite) InitializeScenario(ctx *godog.ScenarioContext) {
	s := &TestScenario{
		Suite:     suite,
		Users:     map[string]*TestUser{},
		sessions:  map[string]*TestSession{},
		Variables: map[string]any{},
	}

	for _, module := range StepModules {
		module(ctx, s)
	}
}

