package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"credpass/migrations"
)

// Migrate executes every *.up.sql file in the embedded migrations in name
// order. The statements are idempotent, so it runs on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	return MigrateFS(ctx, db, migrations.FS)
}

// MigrateFS executes the *.up.sql files of fsys in name order.
func MigrateFS(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	files, err := UpFiles(fsys)
	if err != nil {
		return err
	}
	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	return nil
}

// UpFiles lists the *.up.sql files at the root of fsys in name order.
func UpFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
