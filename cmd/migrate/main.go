package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		log.Fatal("DB_URL environment variable is required")
	}

	dir, err := migrationsDir()
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.New("file://"+dir, dbURL)
	if err != nil {
		log.Fatal(err)
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	switch direction {
	case "down":
		err = m.Down()
	default:
		direction = "up"
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("Migrations already %s to date", direction)
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Migrations applied: %s", direction)
}

// migrationsDir resolves the schema directory. MIGRATIONS_DIR wins;
// otherwise the working directory, its ancestors, and the directories
// around the binary are probed for a "migrations" folder.
func migrationsDir() (string, error) {
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return filepath.Abs(dir)
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		current := cwd
		for i := 0; i < 6; i++ {
			candidates = append(candidates, filepath.Join(current, "migrations"))
			parent := filepath.Dir(current)
			if parent == current {
				break
			}
			current = parent
		}
	}
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
			filepath.Join(exeDir, "..", "..", "migrations"),
		)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", errors.New("migrations directory not found; set MIGRATIONS_DIR")
}
