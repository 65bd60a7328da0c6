package bdd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chirino/conversation-service/internal/cmd/serve"
	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/plugin/store/sqlite"
	"github.com/chirino/conversation-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
	"github.com/stretchr/testify/require"

	// Import plugins to trigger init() registration
	_ "github.com/chirino/conversation-service/internal/plugin/cache/local"
	_ "github.com/chirino/conversation-service/internal/plugin/route/system"
)

const testJWTSecret = "bdd-shared-secret-at-least-32-bytes-long"

// testConfig returns the settings every backend shares.
func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.JWTSecret = testJWTSecret
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	return cfg
}

func TestFeatures(t *testing.T) {
	cfg := testConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "bdd.db")
	cfg.CacheType = "none"

	db, err := sqlite.Open(&cfg)
	require.NoError(t, err)

	runFeatures(t, &cfg, func() cucumber.TestDB {
		return &SQLiteTestDB{DB: db}
	})
}

// runFeatures starts a server for cfg and runs every feature file against it.
func runFeatures(t *testing.T, cfg *config.Config, newDB func() cucumber.TestDB) {
	ctx := config.WithContext(context.Background(), cfg)
	srv, err := serve.StartServer(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	apiURL := fmt.Sprintf("http://localhost:%d", srv.Running.Port)

	featureFiles, err := filepath.Glob(filepath.Join("testdata", "features", "*.feature"))
	require.NoError(t, err)
	require.NotEmpty(t, featureFiles, "No feature files found")

	opts := cucumber.DefaultOptions()
	for _, arg := range os.Args[1:] {
		if arg == "-test.v=true" || arg == "-test.v" || arg == "-v" {
			opts.Format = "pretty"
		}
	}

	for _, featurePath := range featureFiles {
		name := strings.TrimSuffix(filepath.Base(featurePath), ".feature")
		t.Run(name, func(t *testing.T) {
			o := opts
			o.TestingT = t
			o.Paths = []string{featurePath}
			defer cucumber.ApplyReportOptions(&o, t.Name())()

			suite := cucumber.NewTestSuite()
			suite.APIURL = apiURL
			suite.TestingT = t
			suite.DB = newDB()
			suite.Store = srv.Store
			suite.Extra[jwtSecretExtraKey] = cfg.JWTSecret

			status := godog.TestSuite{
				Name:                name,
				Options:             &o,
				ScenarioInitializer: suite.InitializeScenario,
			}.Run()
			if status != 0 {
				t.Fail()
			}
		})
	}
}
