package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.Equal(t, 1*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.CollectInterval)

	// Deletion thresholds must be ascending; the whole pipeline depends on it.
	assert.Less(t, cfg.EnterAfter, cfg.NearEndAfter)
	assert.Less(t, cfg.NearEndAfter, cfg.DeleteAfter)
}

func TestLoadConfig_DefaultsWhenNoArgs(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	want := &Config{}
	want.LoadDefaults()
	assert.Equal(t, want, cfg)
}
