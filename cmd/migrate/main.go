package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/repository"
	"imageduel/pkg/database"
)

const usage = "Usage: go run ./cmd/migrate [up|drop|status|seed <guild_id> <channel_id>]"

// tables lists every table in dependency order, children first
var tables = []string{
	"votes",
	"active_duels",
	"duels",
	"retirement_log",
	"competitors",
	"guild_configs",
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	command := os.Args[1]

	ctx := context.Background()

	switch command {
	case "up":
		if err := migrateUp(ctx, dbURL); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("All tables created successfully")

	case "drop":
		if err := withConn(ctx, dbURL, dropTables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("All tables dropped successfully")

	case "status":
		if err := withConn(ctx, dbURL, printStatus); err != nil {
			log.Fatalf("Failed to read table status: %v", err)
		}

	case "seed":
		if len(os.Args) < 4 {
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := seedGuild(ctx, dbURL, os.Args[2], os.Args[3]); err != nil {
			log.Fatalf("Failed to seed guild: %v", err)
		}
		fmt.Printf("Guild %s configured for channel %s\n", os.Args[2], os.Args[3])

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// migrateUp applies the same schema the server migrates at startup
func migrateUp(ctx context.Context, dbURL string) error {
	db, err := database.NewPostgresDB(ctx, dbURL, zap.NewNop())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.AutoMigrate(db.Gorm); err != nil {
		return err
	}
	for _, table := range tables {
		fmt.Printf("  Migrated: %s\n", table)
	}
	return nil
}

func withConn(ctx context.Context, dbURL string, fn func(ctx context.Context, conn *pgx.Conn) error) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)
	return fn(ctx, conn)
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	for _, table := range tables {
		query := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pgx.Identifier{table}.Sanitize())
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", table)
	}
	return nil
}

func printStatus(ctx context.Context, conn *pgx.Conn) error {
	for _, table := range tables {
		var exists bool
		if err := conn.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists); err != nil {
			return fmt.Errorf("failed to inspect %s: %w", table, err)
		}
		if !exists {
			fmt.Printf("  %-16s missing\n", table)
			continue
		}
		var rows int64
		query := fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{table}.Sanitize())
		if err := conn.QueryRow(ctx, query).Scan(&rows); err != nil {
			return fmt.Errorf("failed to count %s: %w", table, err)
		}
		fmt.Printf("  %-16s %d rows\n", table, rows)
	}
	return nil
}

// seedGuild writes a default configuration so the guild can be started
func seedGuild(ctx context.Context, dbURL, guildID, channelID string) error {
	db, err := database.NewPostgresDB(ctx, dbURL, zap.NewNop())
	if err != nil {
		return err
	}
	defer db.Close()

	mode := domain.ResolutionMode(os.Getenv("DEFAULT_RESOLUTION_MODE"))
	cfg := domain.DefaultGuildConfig(guildID, mode)
	cfg.ChannelID = channelID
	if problems := cfg.Validate(); problems != nil {
		return fmt.Errorf("invalid guild configuration: %v", problems)
	}
	return repository.New(db.Gorm).GuildConfigs.Upsert(ctx, cfg)
}
