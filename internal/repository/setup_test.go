package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"bermybanana/api/internal/ids"
	"bermybanana/api/internal/models"
)

func startPostgresForTest(t *testing.T) *pgxpool.Pool {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "bermybanana_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skipping test because docker/testcontainers is unavailable: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/bermybanana_test?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	deadline := time.Now().Add(30 * time.Second)
	for {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres did not become ready: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	applyAllMigrations(t, ctx, pool)
	return pool
}

func applyAllMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	migrationsDir := filepath.Join(findRepoRoot(t), "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		raw, err := os.ReadFile(filepath.Join(migrationsDir, file))
		if err != nil {
			t.Fatalf("read migration %s: %v", file, err)
		}
		if strings.TrimSpace(string(raw)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(raw)); err != nil {
			t.Fatalf("apply migration %s: %v", file, err)
		}
	}
}

func findRepoRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not locate repository root")
		}
		dir = parent
	}
}

func createTestUser(t *testing.T, pool *pgxpool.Pool, balance int64) models.User {
	t.Helper()

	user := models.User{
		ID:            ids.New(),
		Email:         ids.New() + "@example.com",
		PasswordHash:  []byte("hash"),
		DisplayName:   "test user",
		Role:          models.UserRoleUser,
		Status:        models.UserStatusActive,
		Tier:          models.TierStandard,
		CreditBalance: balance,
	}
	if err := NewUserRepository(pool).Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func createTestJob(t *testing.T, pool *pgxpool.Pool, userID string, cost int64) models.GenerationJob {
	t.Helper()

	job := models.GenerationJob{
		ID:          ids.New(),
		UserID:      userID,
		Provider:    "kling",
		Mode:        models.ModeImage,
		Prompt:      "a banana on a surfboard",
		Status:      models.JobStatusPending,
		CostCredits: cost,
	}
	if err := NewJobRepository(pool).Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func createTestOutput(t *testing.T, pool *pgxpool.Pool, jobID string, outputType models.OutputType) models.OutputAsset {
	t.Helper()

	output := models.OutputAsset{
		ID:        ids.New(),
		JobID:     jobID,
		Type:      outputType,
		Bucket:    "outputs",
		ObjectKey: jobID + "/" + ids.New() + ".png",
		URL:       "http://storage.local/outputs/" + jobID,
		State:     models.OutputStateActive,
	}
	if err := NewOutputRepository(pool).Create(context.Background(), output); err != nil {
		t.Fatalf("create output: %v", err)
	}
	return output
}

func createTestPromo(t *testing.T, pool *pgxpool.Pool, code string, credits int64, maxUses int) string {
	t.Helper()

	id := ids.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO promo_codes (id, code, credits, max_uses, active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, id, code, credits, maxUses)
	if err != nil {
		t.Fatalf("create promo: %v", err)
	}
	return id
}
