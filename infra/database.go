package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/treasury/infra/migrations"
	infrarepo "github.com/amirasaad/treasury/infra/repository"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// sqliteAppendOnly installs the same append-only guard the Postgres
// migration creates with a plpgsql trigger.
var sqliteAppendOnly = []string{
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_no_update BEFORE UPDATE ON ledger_transactions
	BEGIN SELECT RAISE(ABORT, 'ledger_transactions is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_no_delete BEFORE DELETE ON ledger_transactions
	BEGIN SELECT RAISE(ABORT, 'ledger_transactions is append-only'); END`,
}

// NewDBConnection opens Postgres for postgres:// URLs and pure-Go SQLite for
// sqlite:// URLs.
func NewDBConnection(
	cnf *config.DB,
	appEnv string,
) (*gorm.DB, error) {
	if cnf == nil || cnf.Url == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	var logMode logger.LogLevel
	if appEnv == "development" {
		logMode = logger.Info
	} else {
		logMode = logger.Silent
	}
	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(cnf.Url, sqlitePrefix):
		dialector = sqlite.Open(SQLiteDSN(strings.TrimPrefix(cnf.Url, sqlitePrefix)))
	case strings.HasPrefix(cnf.Url, "postgres://"), strings.HasPrefix(cnf.Url, "postgresql://"):
		dialector = postgres.Open(cnf.Url)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", strings.SplitN(cnf.Url, ":", 2)[0])
	}

	connection, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	return connection, nil
}

// SQLiteDSN appends the pragmas needed for concurrent writers on one file.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Migrate brings the schema up to date. Postgres runs the embedded SQL
// migrations; SQLite is auto-migrated from the models and gets the
// append-only triggers.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		if err := db.AutoMigrate(infrarepo.AllModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		for _, stmt := range sqliteAppendOnly {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("install append-only trigger: %w", err)
			}
		}
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	driver, err := migratepostgres.WithInstance(sqlDB, &migratepostgres.Config{})
	if err != nil {
		return err
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
