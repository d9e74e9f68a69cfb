package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer представляет контейнер PostgreSQL для тестирования
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres starts a throwaway PostgreSQL container and registers its cleanup.
// The test is skipped under -short or when Docker is not available.
func StartPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	conn, container, err := SetupTestDatabase(t)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { TeardownTestDatabase(t, conn, container) })
	return conn
}

// SetupTestDatabase создает и запускает PostgreSQL контейнер для тестов
func SetupTestDatabase(t *testing.T) (conn *sql.DB, pg *PostgresContainer, err error) {
	t.Helper()

	// testcontainers паникует без Docker
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("start container: %v", r)
		}
	}()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("5432/tcp"),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start container: %w", err)
	}
	pg = &PostgresContainer{Container: container}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, pg, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, pg, fmt.Errorf("failed to get container port: %w", err)
	}
	pg.DSN = fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	conn, err = sql.Open("postgres", pg.DSN)
	if err != nil {
		return nil, pg, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := WaitForDatabase(conn, 10); err != nil {
		return conn, pg, err
	}
	return conn, pg, nil
}

// TeardownTestDatabase останавливает и удаляет контейнер PostgreSQL
func TeardownTestDatabase(t *testing.T, conn *sql.DB, container *PostgresContainer) {
	t.Helper()

	if conn != nil {
		if err := conn.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	}
	if container != nil && container.Container != nil {
		if err := container.Container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}
}

// CleanupTables очищает таблицы импорта между тестами
func CleanupTables(t *testing.T, conn *sql.DB) {
	t.Helper()
	if _, err := conn.Exec("TRUNCATE TABLE students, addresses, import_runs CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

// WaitForDatabase ожидает, пока БД не станет доступной
func WaitForDatabase(conn *sql.DB, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		if err := conn.Ping(); err == nil {
			return nil
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("database not available after %d retries", maxRetries)
}
