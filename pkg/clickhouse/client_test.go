package clickhouse

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(ClientConfig{
		Host:        "ch.local",
		Port:        9000,
		Database:    "finsignal",
		User:        "default",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 30 * time.Second,
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch.local:9000", u.Host)
	assert.Equal(t, "/finsignal", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "5s", u.Query().Get("dial_timeout"))
	assert.Equal(t, "30", u.Query().Get("max_execution_time"))
	assert.Empty(t, u.Query().Get("read_timeout"))
}

func TestBuildDSN_HTTP(t *testing.T) {
	dsn := BuildDSN(ClientConfig{Host: "h", Port: 8123, Database: "db", User: "u", UseHTTP: true})
	assert.Contains(t, dsn, "http://u:@h:8123/db")
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestBuildDSN_Compression(t *testing.T) {
	u, err := url.Parse(BuildDSN(ClientConfig{Host: "h", Port: 9000, Database: "db", Compression: "lz4"}))
	require.NoError(t, err)
	assert.Equal(t, "lz4", u.Query().Get("compress"))
}

func TestClientConfig_Validate(t *testing.T) {
	cases := map[string]ClientOption{
		"port":        WithPort(70000),
		"idle":        WithPool(2, 4, 0),
		"compression": WithCompression("snappy"),
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultClientConfig()
			cfg.Host = "h"
			opt(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := defaultClientConfig()
	cfg.Host = "h"
	WithPool(20, 10, 0)(cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultClientConfig().ConnMaxLifetime, cfg.ConnMaxLifetime)
}
