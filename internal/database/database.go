// Package database connects the service to PostgreSQL. In development
// (localhost host, no password) it boots an embedded server instead so a
// checkout runs with zero external setup.
package database

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/casaflow-io/casaflowgo/internal/config"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5433
	embeddedPassword = "postgres"
)

// DB wraps gorm.DB plus the embedded server handle when one is running
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Connect opens the database. An empty password with a localhost host
// selects embedded mode.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	embedded, password, err := maybeStartEmbedded(&cfg)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, password, cfg.Database,
	)

	logLevel := logger.Warn
	if cfg.Alter {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Println("✅ Database connection established")
	return &DB{DB: db, embedded: embedded}, nil
}

// maybeStartEmbedded boots the embedded server when the config asks for it
// and rewrites cfg to point at it. Returns the effective password.
func maybeStartEmbedded(cfg *config.DatabaseConfig) (*embeddedpostgres.EmbeddedPostgres, string, error) {
	if cfg.Host != "localhost" || cfg.Password != "" {
		log.Printf("🌐 Mode: [External PostgreSQL] - Connecting to %s:%s", cfg.Host, cfg.Port)
		return nil, cfg.Password, nil
	}

	log.Println("📦 Mode: [Embedded PostgreSQL] - Initializing internal database...")
	reapStaleServer()
	if err := waitForPortRelease(embeddedPort, 3*time.Second); err != nil {
		return nil, "", err
	}

	embedded := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(embeddedDataPath).
		Port(uint32(embeddedPort)).
		Database(cfg.Database).
		Username(cfg.Username).
		Password(embeddedPassword))

	if err := embedded.Start(); err != nil {
		return nil, "", fmt.Errorf("failed to start embedded database: %w", err)
	}

	cfg.Port = strconv.Itoa(embeddedPort)
	log.Printf("✅ Embedded PostgreSQL started on port %d", embeddedPort)
	return embedded, embeddedPassword, nil
}

// reapStaleServer stops a postgres left behind by a previous crash. The
// embedded library refuses to start over a live postmaster.pid.
func reapStaleServer() {
	pidFile := filepath.Join(embeddedDataPath, "postmaster.pid")
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	if !scanner.Scan() {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		log.Printf("⚠️ Could not parse PID from postmaster.pid: %v", err)
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil || process.Signal(syscall.Signal(0)) != nil {
		// not running, just a stale file
		log.Printf("🧹 Removing stale postmaster.pid (PID %d)", pid)
		os.Remove(pidFile)
		return
	}

	log.Printf("⚠️ Found orphaned PostgreSQL process (PID %d), stopping it", pid)
	_ = process.Signal(syscall.SIGTERM)
	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if process.Signal(syscall.Signal(0)) != nil {
			os.Remove(pidFile)
			return
		}
	}
	process.Kill()
	time.Sleep(500 * time.Millisecond)
	os.Remove(pidFile)
}

func waitForPortRelease(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
		if err != nil {
			return nil
		}
		conn.Close()
		if time.Now().After(deadline) {
			return fmt.Errorf("port %d is in use by another process", port)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// Close shuts down the connection pool and the embedded server, if any
func (db *DB) Close() error {
	if db.embedded != nil {
		log.Println("🛑 Stopping Embedded PostgreSQL process...")
		_ = db.embedded.Stop()
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate triggers GORM schema synchronization
func (db *DB) AutoMigrate(models ...interface{}) error {
	return db.DB.AutoMigrate(models...)
}
