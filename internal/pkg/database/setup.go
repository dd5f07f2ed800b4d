package database

import (
	"fmt"
	"log"
	"time"

	"github.com/ManuelReschke/BetSync/internal/pkg/env"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var (
	// DB is the destination database holding the aggregated bets
	DB *gorm.DB
	// SourceDB is the transactional database holding the individual bet events
	SourceDB *gorm.DB
)

// Settings describes one MySQL connection
type Settings struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// SettingsFromEnv reads <prefix>USER, <prefix>PASSWORD, <prefix>HOST, <prefix>PORT and <prefix>NAME.
// Unset keys fall back to fallback.
func SettingsFromEnv(prefix string, fallback Settings) Settings {
	return Settings{
		User:     env.GetEnv(prefix+"USER", fallback.User),
		Password: env.GetEnv(prefix+"PASSWORD", fallback.Password),
		Host:     env.GetEnv(prefix+"HOST", fallback.Host),
		Port:     env.GetEnv(prefix+"PORT", fallback.Port),
		Name:     env.GetEnv(prefix+"NAME", fallback.Name),
	}
}

// DSN renders the go-sql-driver DSN. Times are read and written as UTC so
// trading dates do not shift with the server zone.
func (s Settings) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", s.Host, s.Port)
	cfg.DBName = s.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func destinationSettings() Settings {
	return SettingsFromEnv("DB_", Settings{Host: "127.0.0.1", Port: "3306", Name: "betsync"})
}

// SetupDatabase connects the destination database
func SetupDatabase() {
	DB = mustOpen("destination", destinationSettings())
}

// SetupSourceDatabase connects the source database. SOURCE_DB_* keys default to the DB_* ones.
func SetupSourceDatabase() {
	SourceDB = mustOpen("source", SettingsFromEnv("SOURCE_DB_", destinationSettings()))
}

// GetDB returns the destination connection, connecting on first use
func GetDB() *gorm.DB {
	if DB == nil {
		SetupDatabase()
	}
	return DB
}

// GetSourceDB returns the source connection, connecting on first use
func GetSourceDB() *gorm.DB {
	if SourceDB == nil {
		SetupSourceDatabase()
	}
	return SourceDB
}

func mustOpen(name string, s Settings) *gorm.DB {
	db, err := Open(s)
	if err != nil {
		panic(fmt.Sprintf("connect %s database: %v", name, err))
	}
	return db
}

// Open connects with retries
func Open(s Settings) (*gorm.DB, error) {
	logLevel := logger.Warn
	if env.IsDev() {
		logLevel = logger.Info
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       s.DSN(), // data source name
			DefaultStringSize:         256,     // default size for string fields
			DisableDatetimePrecision:  true,    // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,    // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,    // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false,   // auto configure based on currently MySQL version
		}), &gorm.Config{Logger: logger.Default.LogMode(logLevel)})
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database %s@%s (try %d/%d): %v", s.Name, s.Host, i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retry in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}
