package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BETTING_SECONDS", "")
	t.Setenv("CANDIDATE_POOL_SIZE", "not-a-number")

	cfg := Load()
	require.Equal(t, 60*time.Second, cfg.BettingWindow)
	require.Equal(t, 15*time.Second, cfg.DrawingWindow)
	require.Equal(t, 8, cfg.CandidatePoolSize)
	require.Equal(t, 7, cfg.DayBoundaryHour)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("DRAWING_SECONDS", "20")

	cfg := Load()
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.False(t, cfg.DBAutoMigrate)
	require.Equal(t, 20*time.Second, cfg.DrawingWindow)
}

func TestLocationFallback(t *testing.T) {
	cfg := Config{Timezone: "Not/AZone"}
	_, offset := time.Date(2025, 7, 17, 12, 0, 0, 0, cfg.Location()).Zone()
	require.Equal(t, 8*60*60, offset)
}
