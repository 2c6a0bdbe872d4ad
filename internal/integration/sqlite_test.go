package integration_test

import (
	"testing"
	"time"
)

func TestScenarios_SQLite(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			cfg := sqliteConfig()
			cfg.Presence.OfflineGrace = 50 * time.Millisecond
			sc.run(t, startServer(t, cfg))
		})
	}
}
