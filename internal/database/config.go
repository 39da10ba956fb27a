package database

import "time"

// PoolConfig holds the pool and timeout settings applied when opening a
// connection. The CDC session layer holds very few connections open: one
// long-lived session plus short-lived introspection queries.
type PoolConfig struct {
	MaxConns        int           // maximum number of open connections
	MaxIdleConns    int           // idle connections kept alive
	MaxConnLifetime time.Duration // maximum time a connection may be reused
	MaxConnIdleTime time.Duration // maximum time a connection may sit idle

	ConnectTimeout time.Duration // time limit for validating a new connection
}

// DefaultPoolConfig returns the pool settings used for a CDC session.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxConns:        4,
		MaxIdleConns:    2,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}
