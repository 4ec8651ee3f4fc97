package app

import (
	"path/filepath"
	"testing"
	"time"

	"palaver/internal/config"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DBFile:      filepath.Join(t.TempDir(), "app.db"),
		APIAddr:     "127.0.0.1:0",
		AdminAddr:   "127.0.0.1:0",
		AuthSecret:  "app-test-secret-long-enough",
		TokenExpiry: time.Hour,
		Log:         config.LogConfig{Level: "warn"},
		RateLimit: config.RateLimitConfig{
			Window: time.Minute,
			Send:   30,
			Edit:   20,
			Delete: 15,
		},
	}
}

// TestModuleWiring verifies the dependency graph resolves.
func TestModuleWiring(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{Config: testConfig(t)})); err != nil {
		t.Fatalf("invalid fx graph: %v", err)
	}
}

func TestModuleStartStop(t *testing.T) {
	app := fxtest.New(t, Module(Params{Config: testConfig(t)}))
	app.RequireStart()
	app.RequireStop()
}
