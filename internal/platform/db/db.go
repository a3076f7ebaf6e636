package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const driverName = "mysql"

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LendingConfig carries the lending policy knobs. Zero values are replaced
// with the library defaults in applyDefaults.
type LendingConfig struct {
	MaxBorrowCount       int `yaml:"max_borrow_count"`
	MinBorrowDays        int `yaml:"min_borrow_days"`
	MaxBorrowDays        int `yaml:"max_borrow_days"`
	DefaultBorrowDays    int `yaml:"default_borrow_days"`
	MaxRenewCount        int `yaml:"max_renew_count"`
	RenewDays            int `yaml:"renew_days"`
	ReservationDays      int `yaml:"reservation_priority_days"`
	DueReminderDays      int `yaml:"due_reminder_days"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

type Config struct {
	Version string         `yaml:"version"`
	Mode    string         `yaml:"mode"`
	Listen  string         `yaml:"listen"`
	DB      DatabaseConfig `yaml:"database"`
	Auth    AuthConfig     `yaml:"auth"`
	Lending LendingConfig  `yaml:"lending"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	l := &c.Lending
	if l.MaxBorrowCount <= 0 {
		l.MaxBorrowCount = 5
	}
	if l.MinBorrowDays <= 0 {
		l.MinBorrowDays = 1
	}
	if l.MaxBorrowDays <= 0 {
		l.MaxBorrowDays = 90
	}
	if l.DefaultBorrowDays <= 0 {
		l.DefaultBorrowDays = 30
	}
	if l.MaxRenewCount <= 0 {
		l.MaxRenewCount = 2
	}
	if l.RenewDays <= 0 {
		l.RenewDays = 30
	}
	if l.ReservationDays <= 0 {
		l.ReservationDays = 3
	}
	if l.DueReminderDays <= 0 {
		l.DueReminderDays = 3
	}
	if l.SweepIntervalMinutes <= 0 {
		l.SweepIntervalMinutes = 60
	}
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare connection: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	// Pool sizing: keep the sum across instances below MySQL max_connections.
	conn.SetMaxOpenConns(80)
	conn.SetMaxIdleConns(20)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	return conn, nil
}
