package database

import (
	"testing"
)

// 埋め込みマイグレーションが存在することを検証
func TestMigrationsFS_ContainsMigrationFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one migration file")
	}

	// up/downのペアであること（偶数個）
	if len(entries)%2 != 0 {
		t.Errorf("expected up/down pairs, got %d files", len(entries))
	}
}

// 不正なデータベースURLではマイグレーターの生成に失敗することを検証
func TestNewMigrator_InvalidURL_ReturnsError(t *testing.T) {
	_, err := NewMigrator("not-a-database-url")
	if err == nil {
		t.Fatal("expected error for invalid database URL")
	}
}
