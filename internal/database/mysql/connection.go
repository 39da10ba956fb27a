// Package mysql implements the MySQL session bootstrap layer of the
// connector: it derives driver parameters from the connector
// configuration, applies and restores the process-wide TLS properties,
// classifies the server generation on first connect and exposes the
// read-only introspection queries the snapshot and schema-history stages
// depend on. It also carries the unsigned-integer correction applied by
// the binlog row decoder.
package mysql

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/datakite/mysqlcdc/internal/config"
	"github.com/datakite/mysqlcdc/internal/database"
	"github.com/datakite/mysqlcdc/internal/logger"
)

// Opener opens the underlying connection for a finalized DSN. Injectable
// so tests can substitute the real pool with a mock.
type Opener func(ctx context.Context, dsn string) (database.Conn, error)

func defaultOpener(ctx context.Context, dsn string) (database.Conn, error) {
	return database.Open(ctx, "mysql", dsn, database.DefaultPoolConfig())
}

// ConnectionContext owns one MySQL session: parameter derivation, the
// secure property scope, the cached capability class and the lifecycle of
// the underlying connection. Start and Shutdown are not safe to call
// concurrently with each other; the introspection methods are safe from
// any goroutine once the context has started.
type ConnectionContext struct {
	cfg       config.Configuration
	driverCfg config.Configuration
	sslMode   SecureConnectionMode
	scope     *SecurePropertyScope
	store     PropertyStore
	log       *logger.Logger
	open      Opener

	mu         sync.Mutex
	conn       database.Conn
	capability CapabilityClass
}

// Option customises a ConnectionContext.
type Option func(*ConnectionContext)

// WithPropertyStore substitutes the process-wide property store.
func WithPropertyStore(store PropertyStore) Option {
	return func(c *ConnectionContext) { c.store = store }
}

// WithLogger sets the logger used by the context and its scope.
func WithLogger(log *logger.Logger) Option {
	return func(c *ConnectionContext) { c.log = log }
}

// WithOpener substitutes how the underlying connection is opened.
func WithOpener(open Opener) Option {
	return func(c *ConnectionContext) { c.open = open }
}

// NewConnectionContext builds a context from the connector configuration.
// It fails when the configured TLS mode does not parse; nothing is
// connected or mutated yet.
func NewConnectionContext(cfg config.Configuration, opts ...Option) (*ConnectionContext, error) {
	c := &ConnectionContext{
		cfg:        cfg,
		log:        logger.Global(),
		capability: CapabilityUnknown,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = EnvStore{}
	}
	if c.open == nil {
		c.open = defaultOpener
	}

	mode, err := ParseSecureConnectionMode(cfg.GetString(config.FieldSSLMode))
	if err != nil {
		return nil, err
	}
	c.sslMode = mode
	c.driverCfg = deriveDriverConfiguration(cfg, mode.Enabled(), c.log)
	c.scope = NewSecurePropertyScope(c.store, c.log)
	return c, nil
}

// deriveDriverConfiguration narrows the connector configuration to the
// driver-specific subset: schema-history keys are stripped, the
// "database." prefix is removed and the SSL / legacy date-time flags are
// injected.
func deriveDriverConfiguration(cfg config.Configuration, useSSL bool, log *logger.Logger) config.Configuration {
	driver := cfg.Filter(func(key string) bool {
		return key != config.FieldHistoryStore && !strings.HasPrefix(key, config.HistoryFieldPrefix)
	}).Subset("database.", true)

	b := driver.Edit().With("useSSL", strconv.FormatBool(useSSL))

	legacy, ok := driver.Lookup(config.DriverFieldLegacyDatetime)
	if !ok {
		b.With(config.DriverFieldLegacyDatetime, "false")
	} else if legacy == "true" {
		log.Warnf("%q is set to 'true'. This setting is not recommended and can result in timezone issues.",
			config.DriverFieldLegacyDatetime)
	}
	return b.Build()
}

// --- configuration accessors ---

// Config returns the full connector configuration the context was built from.
func (c *ConnectionContext) Config() config.Configuration { return c.cfg }

// DriverConfig returns the derived driver-specific configuration subset.
func (c *ConnectionContext) DriverConfig() config.Configuration { return c.driverCfg }

func (c *ConnectionContext) Hostname() string { return c.driverCfg.GetString("hostname") }

func (c *ConnectionContext) Port() int { return c.driverCfg.GetInt("port", config.DefaultPort) }

func (c *ConnectionContext) Username() string { return c.driverCfg.GetString("user") }

func (c *ConnectionContext) Password() string { return c.driverCfg.GetString("password") }

// SSLMode returns the parsed secure-connection mode.
func (c *ConnectionContext) SSLMode() SecureConnectionMode { return c.sslMode }

// SSLModeEnabled reports whether any TLS is in effect for this context.
func (c *ConnectionContext) SSLModeEnabled() bool { return c.sslMode.Enabled() }

// EventDeserializationFailureHandlingMode returns how the pipeline reacts
// to binlog events that fail to deserialize.
func (c *ConnectionContext) EventDeserializationFailureHandlingMode() FailureHandlingMode {
	return ParseFailureHandlingMode(c.cfg.GetString(config.FieldEventDeserializationFailureHandlingMode))
}

// InconsistentSchemaHandlingMode returns how the pipeline reacts to events
// that do not match the known schema.
func (c *ConnectionContext) InconsistentSchemaHandlingMode() FailureHandlingMode {
	return ParseFailureHandlingMode(c.cfg.GetString(config.FieldInconsistentSchemaHandlingMode))
}

// Capability returns the cached server classification, or
// CapabilityUnknown before the first successful connection.
func (c *ConnectionContext) Capability() CapabilityClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capability
}

// --- lifecycle ---

// Start applies the secure property scope. It is a no-op when TLS is
// disabled and is safe to call in that case. The underlying connection is
// opened lazily by the first operation that needs it.
func (c *ConnectionContext) Start() error {
	if c.sslMode.Enabled() {
		if err := c.scope.Apply(c.cfg); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown closes the underlying connection and then restores the secure
// properties. Close failures are logged and swallowed: restoring shared
// process state takes priority over reporting a close error during
// teardown, so restoration runs on every exit path.
func (c *ConnectionContext) Shutdown() {
	defer c.scope.Restore()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		c.log.ErrorWith("unexpected error shutting down the database connection", err, nil)
	}
}

// Ping verifies the session's connection, opening it if necessary.
func (c *ConnectionContext) Ping(ctx context.Context) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}
	return conn.Ping(ctx)
}

// connection returns the managed connection, establishing it on first
// use. The capability probe runs exactly once per context: a transparent
// re-connect after Shutdown reuses the cached classification.
func (c *ConnectionContext) connection(ctx context.Context) (database.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	if c.capability != CapabilityUnknown {
		conn, err := c.openWith(ctx, c.capability)
		if err != nil {
			return nil, err
		}
		c.conn = conn
		return conn, nil
	}

	// First connection: open with the current-generation parameter
	// spelling, classify the server, and re-open with the corrected
	// spelling when the probe reports an older generation.
	conn, err := c.openWith(ctx, CapabilityV8OrLater)
	if err != nil {
		return nil, err
	}

	class, err := probeCapability(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.capability = class

	if class == CapabilityPre8 {
		if cerr := conn.Close(); cerr != nil {
			c.log.ErrorWith("error closing bootstrap connection", cerr, nil)
		}
		conn, err = c.openWith(ctx, class)
		if err != nil {
			return nil, err
		}
	}

	c.conn = conn
	return conn, nil
}

func (c *ConnectionContext) openWith(ctx context.Context, class CapabilityClass) (database.Conn, error) {
	params, err := c.connectionParameters(class)
	if err != nil {
		return nil, err
	}
	conn, err := c.open(ctx, params.DSN())
	if err != nil {
		return nil, mapConnectError(err,
			fmt.Sprintf("unable to connect to %s:%d", params.Host, params.Port))
	}
	return conn, nil
}

// --- introspection pass-throughs ---

// KnownGtidSet returns the server's executed GTID set, or "" when GTIDs
// are not in use.
func (c *ConnectionContext) KnownGtidSet(ctx context.Context) (string, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return "", err
	}
	return NewIntrospector(conn, c.log).KnownGtidSet(ctx)
}

// UserHasPrivileges reports whether the connecting user holds the named
// privilege (or "ALL").
func (c *ConnectionContext) UserHasPrivileges(ctx context.Context, grantName string) (bool, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return false, err
	}
	return NewIntrospector(conn, c.log).UserHasPrivileges(ctx, grantName)
}

// CharsetSystemVariables returns the server character-set and collation
// variables.
func (c *ConnectionContext) CharsetSystemVariables(ctx context.Context) (map[string]string, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	return NewIntrospector(conn, c.log).CharsetSystemVariables(ctx)
}

// SystemVariables returns a full snapshot of the server system variables.
func (c *ConnectionContext) SystemVariables(ctx context.Context) (map[string]string, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	return NewIntrospector(conn, c.log).SystemVariables(ctx)
}

// --- connection parameters ---

// ConnectionParameters is the driver-ready parameter set for one
// connection attempt. Built once per attempt, immutable thereafter.
type ConnectionParameters struct {
	Host     string
	Port     int
	User     string
	Password string

	// TLS is the resolved value of the driver's tls parameter, possibly
	// the name of a registered custom configuration.
	TLS string

	// ZeroDateTimeBehavior carries the generation-dependent spelling of
	// the zero-date null-handling literal.
	ZeroDateTimeBehavior string

	// LegacyDatetime is the legacy date/time decoding flag ("false"
	// unless explicitly configured).
	LegacyDatetime string
}

// connectionParameters derives the parameter set for one attempt, using
// class to pick the date-time literal spelling.
func (c *ConnectionContext) connectionParameters(class CapabilityClass) (ConnectionParameters, error) {
	tlsValue, err := resolveTLS(c.sslMode, c.Hostname(), c.Port(), c.store)
	if err != nil {
		return ConnectionParameters{}, err
	}
	return ConnectionParameters{
		Host:                 c.Hostname(),
		Port:                 c.Port(),
		User:                 c.Username(),
		Password:             c.Password(),
		TLS:                  tlsValue,
		ZeroDateTimeBehavior: class.zeroDateTimeBehavior(),
		LegacyDatetime:       c.driverCfg.GetString(config.DriverFieldLegacyDatetime),
	}, nil
}

// DSN renders the parameters into a go-sql-driver connection string.
func (p ConnectionParameters) DSN() string {
	mc := gomysql.NewConfig()
	mc.User = p.User
	mc.Passwd = p.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", p.Host, p.Port)
	mc.ParseTime = true
	mc.TLSConfig = p.TLS
	mc.Params = map[string]string{
		"charset":               "utf8mb4",
		"zeroDateTimeBehavior":  p.ZeroDateTimeBehavior,
		"useLegacyDatetimeCode": p.LegacyDatetime,
	}
	return mc.FormatDSN()
}
