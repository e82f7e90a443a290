package cache

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisCache_Keys(t *testing.T) {
	// The client is never dialled here.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	c := NewRedisCacheFromClient(client, "finsignal")
	assert.Equal(t, "finsignal:signals:latest", c.wrapKey(Key("signals", "latest")))
	assert.Equal(t, []string{"finsignal:a", "finsignal:b"}, c.wrapKeys("a", "b"))

	bare := NewRedisCacheFromClient(client, "")
	assert.Equal(t, "signals:latest", bare.wrapKey("signals:latest"))

	assert.NotEmpty(t, c.owner)
	assert.NotEqual(t, c.owner, bare.owner, "each instance owns its locks")
}
