package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 5, cfg.Uploads.MaxFiles)
	assert.Equal(t, 20, cfg.Notifications.ListLimit)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.CacheTTL)
	assert.True(t, cfg.Enrollment.EnforceCapacity)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestOverridesAndFallbacks(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")
	v.Set("DASHBOARD_CACHE_TTL", "not-a-duration")
	v.Set("UPLOADS_MAX_FILES", 0)
	v.Set("ENFORCE_SCHEDULE_CAPACITY", false)
	cfg := fromViper(v)

	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.CacheTTL)
	assert.Equal(t, 5, cfg.Uploads.MaxFiles)
	assert.False(t, cfg.Enrollment.EnforceCapacity)
}
