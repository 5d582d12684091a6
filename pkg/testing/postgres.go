package testing

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
)

const (
	PostgresUser     = "postgres"
	PostgresPassword = "postgres"
)

// StartPostgres runs a postgres container with dbName created, waits until
// it accepts connections and applies the optional init SQL through
// database/sql. It returns the DSN and the mapped host port.
func (c *Containers) StartPostgres(dbName, initSQL string) (string, string, error) {
	resource, err := c.run(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_USER=" + PostgresUser,
			"POSTGRES_PASSWORD=" + PostgresPassword,
			"POSTGRES_DB=" + dbName,
		},
	})
	if err != nil {
		return "", "", err
	}

	port := resource.GetPort("5432/tcp")
	dsn := fmt.Sprintf(
		"postgres://%s:%s@localhost:%s/%s?sslmode=disable",
		PostgresUser, PostgresPassword, port, dbName,
	)

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return "", "", fmt.Errorf("open db: %w", err)
	}
	defer sqlDB.Close()

	if err := c.Retry(sqlDB.Ping); err != nil {
		return "", "", fmt.Errorf("connect to db: %w", err)
	}
	if initSQL != "" {
		if _, err := sqlDB.Exec(initSQL); err != nil {
			return "", "", fmt.Errorf("run init script: %w", err)
		}
	}
	return dsn, port, nil
}
