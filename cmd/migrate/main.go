package main

import (
	"log"
	"os"
	"strings"

	"cardiolens-data/internal/config"
	"cardiolens-data/internal/database"
)

// 执行 SQL 迁移文件：go run ./cmd/migrate scripts/migrations/001_init.sql
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <migration_file.sql>", os.Args[0])
	}

	sqlContent, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read migration file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer database.Close(db)

	statements := strings.Split(string(sqlContent), ";")
	executed := 0
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("Failed to execute statement: %v\nStatement: %s", err, stmt)
		}
		executed++
	}

	log.Printf("Migration completed, %d statements executed", executed)
}
