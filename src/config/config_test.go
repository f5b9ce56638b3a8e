package config

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDefaults(t *testing.T) {
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_PASSWORD", "secret")
	t.Setenv("BID_DEFAULT_WINDOW", "45m")

	var c Config
	require.NoError(t, envconfig.Process("", &c))

	assert.Equal(t, 45*time.Minute, c.BidDefaultWindow)
	assert.Equal(t, 2*time.Hour, c.BidMaxWindow)
	assert.Equal(t, time.Minute, c.BidSweepInterval)
	assert.Equal(t, "booking-events", c.KafkaTopic)
	assert.Equal(t, "host=db.internal user=postgres password=secret dbname=homejobs port=5432 sslmode=disable TimeZone=UTC", c.DSN())
}

func TestAddr(t *testing.T) {
	t.Setenv("APP_HOST", "")
	t.Setenv("PORT", "8081")

	var c Config
	require.NoError(t, envconfig.Process("", &c))
	assert.Equal(t, ":8081", c.Addr())

	c.Host = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:8081", c.Addr())
}

func TestProcessRejectsBadDuration(t *testing.T) {
	t.Setenv("BID_MAX_WINDOW", "forever")

	var c Config
	assert.Error(t, envconfig.Process("", &c))
}
