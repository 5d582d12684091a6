//go:build integration_test || all_tests

package test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/2beens/gymhrv/internal"
	"github.com/2beens/gymhrv/internal/config"
	"github.com/2beens/gymhrv/internal/store"
	pkgtesting "github.com/2beens/gymhrv/pkg/testing"
)

const (
	serverPort = 9000
	serverHost = "127.0.0.1"
	testDBName = "gymhrv"
)

var serverEndpoint = fmt.Sprintf("http://%s:%d", serverHost, serverPort)

// IntegrationTestSuite runs the whole service against real redis and
// postgres containers.
type IntegrationTestSuite struct {
	suite.Suite

	containers *pkgtesting.Containers
	redisPort  string
	pgPort     string
	server     *internal.Server
	httpClient *http.Client
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	fmt.Println("setting up test suite...")

	var err error
	s.containers, err = pkgtesting.NewContainers()
	s.Require().NoError(err)

	rdb, redisPort, err := s.containers.StartRedis(ctx)
	if err != nil {
		s.cleanup()
		s.FailNow("setup redis", err.Error())
	}
	_ = rdb.Close()
	s.redisPort = redisPort
	fmt.Println("redis setup successful")

	_, pgPort, err := s.containers.StartPostgres(testDBName, store.SchemaSQL)
	if err != nil {
		s.cleanup()
		s.FailNow("setup postgres", err.Error())
	}
	s.pgPort = pgPort
	fmt.Println("postgres setup successful")

	s.httpClient = &http.Client{Timeout: 10 * time.Second}
	s.server = s.startServer(ctx, serverPort)
	fmt.Println("server started")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.cleanup()
}

func (s *IntegrationTestSuite) cleanup() {
	fmt.Println(" --> cleaning up test suite...")
	if s.server != nil {
		s.server.GracefulShutdown()
	}
	fmt.Println(" --> test suite server shut down")
	if s.containers != nil {
		s.containers.Close()
	}
	fmt.Println(" --> test suite cleanup done")
}

func (s *IntegrationTestSuite) testConfig(port int) *config.Config {
	cfg, err := config.Parse("development", fmt.Sprintf(`
[development]
environment = "development"
host = "%s"
port = %d
prometheus_metrics_port = "%d"
log_level = "debug"
log_to_stdout = true
store_backend = "postgres"
redis_host = "localhost"
redis_port = "%s"
postgres_host = "localhost"
postgres_port = "%s"
postgres_db_name = "%s"
postgres_user = "%s"
upload_rate_limit_per_min = 1000
`, serverHost, port, port+100, s.redisPort, s.pgPort, testDBName, pkgtesting.PostgresUser))
	s.Require().NoError(err)
	return cfg
}

// startServer serves a fresh Server instance on port and waits until it
// answers health checks.
func (s *IntegrationTestSuite) startServer(ctx context.Context, port int) *internal.Server {
	cfg := s.testConfig(port)
	server, err := internal.NewServer(ctx, internal.NewServerParams{
		Config: cfg,
		Secrets: &config.Secrets{
			PostgresPassword: pkgtesting.PostgresPassword,
			OtelServiceName:  "gymhrv-test",
		},
		VersionInfo: "test-version-info",
	})
	s.Require().NoError(err)

	server.Serve(ctx, cfg.Host, cfg.Port)

	healthURL := fmt.Sprintf("http://%s:%d/health", serverHost, port)
	s.Require().Eventually(func() bool {
		resp, err := s.httpClient.Get(healthURL)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	return server
}
