package db

import (
	"context"
	"os"
	"testing"
	"time"

	"health-chat/internal/config"
)

func TestMigrationFiles_Sorted(t *testing.T) {
	files, err := migrationFiles()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	if files[0] != "0001_init.up.sql" {
		t.Fatalf("expected init migration first, got %q", files[0])
	}
	for i := 1; i < len(files); i++ {
		if files[i-1] > files[i] {
			t.Fatalf("migrations not sorted: %v", files)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, &config.Config{DatabaseURL: url})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, pool); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = '0001_init'").Scan(&count); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected init migration recorded once, got %d", count)
	}
	for _, table := range []string{"users", "conversations", "messages"} {
		var exists bool
		if err := pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists); err != nil || !exists {
			t.Fatalf("expected table %s, err=%v", table, err)
		}
	}
}
