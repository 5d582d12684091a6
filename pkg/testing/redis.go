package testing

import (
	"context"
	"net"

	"github.com/go-redis/redis/v8"
	"github.com/ory/dockertest/v3"
)

// StartRedis runs a redis container and returns a client that already
// answers pings, plus the mapped host port.
func (c *Containers) StartRedis(ctx context.Context) (*redis.Client, string, error) {
	resource, err := c.run(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7.2",
	})
	if err != nil {
		return nil, "", err
	}

	port := resource.GetPort("6379/tcp")
	rdb := redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort("localhost", port),
		DB:   0, // use default DB
	})
	if err := c.Retry(func() error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		_ = rdb.Close()
		return nil, "", err
	}
	return rdb, port, nil
}
