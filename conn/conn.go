// Package conn provides the connection provider: explicit connection
// parameters plus a character-set label, producing exactly one live
// connection for the provider's lifetime. There is no pooling, retry, or
// reconnection; a failed connect is a fatal configuration error for the
// caller, and the connection is released when the provider is closed.
package conn

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Config holds the connection parameters.
type Config struct {
	Host     string
	Port     uint16 // 0 means the driver default
	Database string
	User     string
	Password string

	// Charset is the client character-set label. Matching is
	// case-insensitive and "utf-8" normalizes to "utf8".
	Charset string
}

// Provider owns one live connection.
type Provider struct {
	conn     *pgx.Conn
	database string
	charset  string
}

// NormalizeCharset lower-cases the label and folds "utf-8" to "utf8".
func NormalizeCharset(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "utf-8" {
		return "utf8"
	}
	return label
}

// Connect establishes the provider's single connection. The normalized
// charset is applied as the session's client_encoding.
func Connect(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("conn: host and database are required")
	}

	dsn := fmt.Sprintf("host=%s dbname=%s", cfg.Host, cfg.Database)
	if cfg.Port != 0 {
		dsn += fmt.Sprintf(" port=%d", cfg.Port)
	}
	if cfg.User != "" {
		dsn += " user=" + cfg.User
	}
	if cfg.Password != "" {
		dsn += " password=" + cfg.Password
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("conn: parse config: %w", err)
	}

	charset := NormalizeCharset(cfg.Charset)
	if charset != "" {
		connConfig.RuntimeParams["client_encoding"] = charset
	}

	c, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("conn: connect to %s/%s: %w", cfg.Host, cfg.Database, err)
	}

	return &Provider{conn: c, database: cfg.Database, charset: charset}, nil
}

// Conn returns the live connection handle. It is not safe for concurrent
// use; callers share it on the single-threaded model this toolkit assumes.
func (p *Provider) Conn() *pgx.Conn {
	return p.conn
}

// Database returns the connected database name.
func (p *Provider) Database() string {
	return p.database
}

// Charset returns the normalized character-set label.
func (p *Provider) Charset() string {
	return p.charset
}

// Close releases the provider's connection.
func (p *Provider) Close(ctx context.Context) error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close(ctx)
}
