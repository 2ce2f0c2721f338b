// Package database owns the MySQL connection pool and the schema DDL
// for the library tables.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	defaultMaxConns     = 25
	defaultConnLifetime = 30 * time.Minute
	pingTimeout         = 5 * time.Second
)

// Params locate one MySQL database. Zero pool fields fall back to the
// package defaults; the server overrides them from its configuration,
// the CLI takes the defaults.
type Params struct {
	User string
	Pass string // empty allowed for local dev
	Host string
	Port string
	Name string

	MaxConns     int
	ConnLifetime time.Duration
}

// DSN renders the driver connection string. parseTime maps DATETIME
// columns onto time.Time and loc=UTC keeps due-date arithmetic in a
// single zone end to end.
func (p Params) DSN() string {
	auth := p.User
	if p.Pass != "" {
		auth = p.User + ":" + p.Pass
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, p.Host, p.Port, p.Name)
}

// Open connects with the given parameters, applies the pool settings
// and verifies the connection with a bounded ping.
func Open(p Params) (*sql.DB, error) {
	db, err := sql.Open("mysql", p.DSN())
	if err != nil {
		return nil, err
	}

	maxConns := p.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	lifetime := p.ConnLifetime
	if lifetime <= 0 {
		lifetime = defaultConnLifetime
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
