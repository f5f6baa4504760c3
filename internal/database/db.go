package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Options describes a database connection.
type Options struct {
	Driver  Dialect
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
	SSLMode string
}

// DSN renders the driver-specific connection string.
func (o Options) DSN() string {
	if o.Driver == Postgres {
		u := url.URL{
			Scheme:   "postgres",
			Host:     o.Host + ":" + o.Port,
			Path:     "/" + o.Name,
			RawQuery: url.Values{"sslmode": {o.SSLMode}}.Encode(),
		}
		if o.Pass != "" {
			u.User = url.UserPassword(o.User, o.Pass)
		} else {
			u.User = url.User(o.User)
		}
		return u.String()
	}

	c := mysql.NewConfig()
	c.User = o.User
	c.Passwd = o.Pass
	c.Net = "tcp"
	c.Addr = o.Host + ":" + o.Port
	c.DBName = o.Name
	// parseTime -> DATETIME as time.Time | loc=UTC keeps times consistent
	c.ParseTime = true
	c.Loc = time.UTC
	// migrations ship trigger bodies that must be sent as one batch
	c.MultiStatements = true
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// Open connects to the configured database and verifies the connection.
func Open(o Options) (*sql.DB, error) {
	db, err := sql.Open(o.Driver.DriverName(), o.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.Driver, err)
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", o.Driver, err)
	}
	return db, nil
}
