package testing

import (
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// Containers starts throwaway docker dependencies for integration tests
// and tears all of them down on Close.
type Containers struct {
	pool     *dockertest.Pool
	teardown []func()
}

func NewContainers() (*Containers, error) {
	// uses a sensible default on windows (tcp/http) and linux/osx (socket)
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("create dockertest pool: %w", err)
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("ping docker: %w", err)
	}
	pool.MaxWait = 90 * time.Second
	return &Containers{pool: pool}, nil
}

// Retry runs op with backoff until it succeeds or the pool gives up.
func (c *Containers) Retry(op func() error) error {
	return c.pool.Retry(op)
}

func (c *Containers) run(opts *dockertest.RunOptions) (*dockertest.Resource, error) {
	resource, err := c.pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", opts.Repository, err)
	}
	c.teardown = append(c.teardown, func() {
		if err := resource.Close(); err != nil {
			fmt.Printf("%s teardown: %s\n", opts.Repository, err)
		}
	})
	return resource, nil
}

func (c *Containers) Close() {
	for i := len(c.teardown) - 1; i >= 0; i-- {
		c.teardown[i]()
	}
	c.teardown = nil
}
