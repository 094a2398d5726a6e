package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// ErrNoDatabase is returned by Open when neither a DSN, Docker nor a local
// PostgreSQL is available.
var ErrNoDatabase = errors.New("infra: no database available")

const (
	defaultImage = "postgres:16"
	claimsDB     = "claims"
	testUser     = "testuser"
	testPassword = "testpass"
)

// Postgres is the database a stress run works against. Shared databases
// belong to someone else, so migrations go into a throwaway schema.
type Postgres struct {
	DSN       string
	Shared    bool
	container *postgres.PostgresContainer
}

// Open picks a database in order of preference: dsn, STRESS_TEST_PG_DSN, a
// fresh container, then a local server on 127.0.0.1:5432.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
	}
	if dsn != "" {
		return &Postgres{DSN: dsn, Shared: true}, nil
	}
	if dockerAvailable(ctx) {
		return StartPostgres(ctx)
	}
	pg, err := InitLocalDatabase(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDatabase, err)
	}
	return pg, nil
}

// StartPostgres runs a disposable container holding the claims database.
// STRESS_TEST_PG_IMAGE overrides the image.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	image := os.Getenv("STRESS_TEST_PG_IMAGE")
	if image == "" {
		image = defaultImage
	}
	c, err := postgres.Run(ctx, image,
		postgres.WithDatabase(claimsDB),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", image, err)
	}
	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("container dsn: %w", err)
	}
	return &Postgres{DSN: dsn, container: c}, nil
}

// Terminate stops the container, if this package started one.
func (p *Postgres) Terminate(ctx context.Context) error {
	if p == nil || p.container == nil {
		return nil
	}
	return p.container.Terminate(ctx)
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	cmd := exec.CommandContext(ctx, "docker", "info")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run() == nil
}
