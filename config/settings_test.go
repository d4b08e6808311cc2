package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORAGE_PROVIDER", "memory")
	t.Setenv("APP_TIMEZONE", "America/Mexico_City")
	t.Setenv("API_PORT", "9090")
	t.Setenv("DEFAULT_WORKING_DAY_OFFSET", "")
	t.Setenv("MAX_UPLOAD_SIZE_MB", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "9090", s.Port)
	assert.Equal(t, 3, s.DefaultWorkingDayOffset)
	assert.Equal(t, int64(10<<20), s.MaxUploadBytes)
	assert.Equal(t, 15*time.Minute, s.SignedURLTTL)
	assert.Equal(t, "America/Mexico_City", s.Location.String())
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, s.CORSAllowedOrigins)
}

func TestLoadSettings_Rejects(t *testing.T) {
	cases := map[string][2]string{
		"unknown driver":   {"STORE_DRIVER", "postgres"},
		"bad timezone":     {"APP_TIMEZONE", "Mars/Olympus"},
		"offset too large": {"DEFAULT_WORKING_DAY_OFFSET", "40"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", "memory")
			t.Setenv("STORAGE_PROVIDER", "memory")
			t.Setenv("APP_TIMEZONE", "UTC")
			t.Setenv(kv[0], kv[1])
			_, err := LoadSettings()
			assert.Error(t, err)
		})
	}
}

func TestLoadSettings_GCSNeedsBucket(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORAGE_PROVIDER", "gcs")
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("APP_TIMEZONE", "UTC")
	_, err := LoadSettings()
	assert.Error(t, err)
}
