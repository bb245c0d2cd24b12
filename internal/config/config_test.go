package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 0.5, cfg.MatchThreshold)
	assert.Equal(t, float64(200), cfg.GeofenceRadiusM)
	assert.Equal(t, "dataset", cfg.DatasetPath)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.True(t, cfg.FaceSkip)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.6")
	t.Setenv("GEOFENCE_LAT", "12.9716")
	t.Setenv("GEOFENCE_RADIUS_M", "350")
	t.Setenv("FACE_SKIP", "false")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("ACCESS_TTL", "1h")

	cfg := Load()
	assert.Equal(t, 0.6, cfg.MatchThreshold)
	assert.Equal(t, 12.9716, cfg.GeofenceLat)
	assert.Equal(t, float64(350), cfg.GeofenceRadiusM)
	assert.False(t, cfg.FaceSkip)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.Equal(t, time.Hour, cfg.AccessTTL)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "not-a-number")
	t.Setenv("FACE_SKIP", "maybe")
	t.Setenv("ACCESS_TTL", "soon")

	cfg := Load()
	assert.Equal(t, 0.5, cfg.MatchThreshold)
	assert.True(t, cfg.FaceSkip)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
}
