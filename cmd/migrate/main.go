package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	migrateV4 "github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"

	"github.com/yourusername/placement-api/internal/config"
	"github.com/yourusername/placement-api/pkg/database"
)

const usage = `Использование: migrate <команда> [аргумент]

Команды:
  up           применить все новые миграции
  down N       откатить N миграций (по умолчанию 1)
  force V      установить версию V и снять флаг dirty
  version      показать текущую версию схемы`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}

	if err := run(m, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("migrate %s: %v", os.Args[1], err)
	}
}

func run(m *migrateV4.Migrate, command string, args []string) error {
	switch command {
	case "up":
		return ignoreNoChange(m.Up())
	case "down":
		steps := 1
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			steps = n
		}
		return ignoreNoChange(m.Steps(-steps))
	case "force":
		if len(args) == 0 {
			return errors.New("force requires a version")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := m.Force(version); err != nil {
			return err
		}
		log.Printf("Версия схемы принудительно установлена в %d", version)
		return nil
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrateV4.ErrNilVersion) {
			fmt.Println("Миграции еще не применялись")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		fmt.Println(usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrateV4.ErrNoChange) {
		log.Println("Изменений в миграциях не найдено, база данных уже актуальна.")
		return nil
	}
	if err == nil {
		log.Println("Миграции успешно применены.")
	}
	return err
}
