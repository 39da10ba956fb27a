package mysql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakite/mysqlcdc/internal/config"
	"github.com/datakite/mysqlcdc/internal/database"
	"github.com/datakite/mysqlcdc/internal/errs"
)

// fakeOpener hands out prepared connections and records the DSN of every
// open attempt.
type fakeOpener struct {
	dsns  []string
	conns []database.Conn
}

func (f *fakeOpener) open(_ context.Context, dsn string) (database.Conn, error) {
	f.dsns = append(f.dsns, dsn)
	if len(f.conns) == 0 {
		return nil, errors.New("no prepared connection")
	}
	conn := f.conns[0]
	f.conns = f.conns[1:]
	return conn, nil
}

func baseConfig(extra map[string]string) config.Configuration {
	values := map[string]string{
		config.FieldHostname: "db1.example.com",
		config.FieldPort:     "3306",
		config.FieldUser:     "cdc",
		config.FieldPassword: "secret",
	}
	for k, v := range extra {
		values[k] = v
	}
	return config.New(values)
}

func newContext(t *testing.T, cfg config.Configuration, opts ...Option) *ConnectionContext {
	t.Helper()
	ctx, err := NewConnectionContext(cfg, opts...)
	require.NoError(t, err)
	return ctx
}

func TestNewConnectionContext_InvalidSSLMode(t *testing.T) {
	_, err := NewConnectionContext(baseConfig(map[string]string{
		config.FieldSSLMode: "mandatory",
	}))

	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestConnectionContext_Accessors(t *testing.T) {
	ctx := newContext(t, baseConfig(map[string]string{
		config.FieldSSLMode: "verify_ca",
		config.FieldEventDeserializationFailureHandlingMode: "warn",
		config.FieldInconsistentSchemaHandlingMode:          "skip",
	}))

	assert.Equal(t, "db1.example.com", ctx.Hostname())
	assert.Equal(t, 3306, ctx.Port())
	assert.Equal(t, "cdc", ctx.Username())
	assert.Equal(t, "secret", ctx.Password())
	assert.Equal(t, SSLModeVerifyCA, ctx.SSLMode())
	assert.True(t, ctx.SSLModeEnabled())
	assert.Equal(t, FailureHandlingWarn, ctx.EventDeserializationFailureHandlingMode())
	assert.Equal(t, FailureHandlingSkip, ctx.InconsistentSchemaHandlingMode())
	assert.Equal(t, CapabilityUnknown, ctx.Capability())
}

func TestConnectionContext_DefaultsWhenUnconfigured(t *testing.T) {
	ctx := newContext(t, config.New(map[string]string{
		config.FieldHostname: "db1",
	}))

	assert.Equal(t, 3306, ctx.Port())
	assert.Equal(t, SSLModeDisabled, ctx.SSLMode())
	assert.False(t, ctx.SSLModeEnabled())
	assert.Equal(t, FailureHandlingFail, ctx.EventDeserializationFailureHandlingMode())
	assert.Equal(t, FailureHandlingFail, ctx.InconsistentSchemaHandlingMode())
}

func TestDeriveDriverConfiguration(t *testing.T) {
	cfg := config.New(map[string]string{
		"database.hostname":      "db1",
		"database.port":          "3306",
		"database.history":       "kafka",
		"database.history.topic": "schema-changes",
		"connector.name":         "inventory",
	})

	ctx := newContext(t, cfg)
	driver := ctx.DriverConfig()

	assert.Equal(t, "db1", driver.GetString("hostname"))
	assert.Equal(t, "false", driver.GetString("useSSL"))
	assert.Equal(t, "false", driver.GetString(config.DriverFieldLegacyDatetime))

	// history-store keys and non-database keys never reach the driver
	for _, key := range driver.Keys() {
		assert.NotContains(t, key, "history")
		assert.NotContains(t, key, "connector")
	}
}

func TestDeriveDriverConfiguration_ExplicitLegacyDatetimeKept(t *testing.T) {
	ctx := newContext(t, baseConfig(map[string]string{
		"database.useLegacyDatetimeCode": "true",
	}))

	assert.Equal(t, "true", ctx.DriverConfig().GetString(config.DriverFieldLegacyDatetime))
}

func TestStart_NoTLSLeavesPropertiesAlone(t *testing.T) {
	store := newFakeStore()
	ctx := newContext(t, baseConfig(nil), WithPropertyStore(store))

	require.NoError(t, ctx.Start())

	assert.Empty(t, store.snapshot())
}

func TestStartShutdown_PropertyRoundTrip(t *testing.T) {
	store := newFakeStore()
	store.values[PropSSLKeystorePassword] = "pre-existing"
	before := store.snapshot()

	ctx := newContext(t, baseConfig(map[string]string{
		config.FieldSSLMode:               "required",
		config.FieldSSLKeystorePassword:   "pre-existing",
		config.FieldSSLTruststorePassword: "ts-secret",
	}), WithPropertyStore(store))

	require.NoError(t, ctx.Start())
	assert.Equal(t, "ts-secret", store.values[PropSSLTruststorePassword])

	ctx.Shutdown()
	assert.Equal(t, before, store.snapshot())
}

func TestStart_PropertyConflictFailsFast(t *testing.T) {
	store := newFakeStore()
	store.values[PropSSLTruststorePassword] = "other"

	ctx := newContext(t, baseConfig(map[string]string{
		config.FieldSSLMode:               "required",
		config.FieldSSLTruststorePassword: "ts-secret",
	}), WithPropertyStore(store))

	err := ctx.Start()

	require.Error(t, err)
	assert.True(t, errs.IsConfigConflict(err))
}

func TestShutdown_CloseFailureStillRestoresProperties(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	expectVersion(mock, "8.0.33")
	mock.ExpectClose().WillReturnError(errors.New("close failed"))

	store := newFakeStore()
	opener := &fakeOpener{conns: []database.Conn{database.Wrap(db)}}

	ctx := newContext(t, baseConfig(map[string]string{
		config.FieldSSLMode:               "required",
		config.FieldSSLTruststorePassword: "ts-secret",
	}), WithPropertyStore(store), WithOpener(opener.open))

	require.NoError(t, ctx.Start())
	require.NoError(t, ctx.Ping(context.Background()))
	require.Contains(t, store.snapshot(), PropSSLTruststorePassword)

	ctx.Shutdown()

	assert.Empty(t, store.snapshot())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_ProbesOnceAndCachesCapability(t *testing.T) {
	db1, mock1, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	expectVersion(mock1, "8.0.33")
	mock1.ExpectClose()

	// the second physical connection reports a different version, which
	// must never be consulted
	db2, mock2, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	mock2.ExpectClose()

	opener := &fakeOpener{conns: []database.Conn{database.Wrap(db1), database.Wrap(db2)}}
	ctx := newContext(t, baseConfig(nil), WithOpener(opener.open))

	require.NoError(t, ctx.Start())
	require.NoError(t, ctx.Ping(context.Background()))
	assert.Equal(t, CapabilityV8OrLater, ctx.Capability())

	ctx.Shutdown()

	// re-established connection: no second probe
	require.NoError(t, ctx.Start())
	require.NoError(t, ctx.Ping(context.Background()))
	assert.Equal(t, CapabilityV8OrLater, ctx.Capability())

	ctx.Shutdown()
	assert.NoError(t, mock1.ExpectationsWereMet())
	assert.NoError(t, mock2.ExpectationsWereMet())
}

func TestConnection_Pre8ReconnectsWithLegacySpelling(t *testing.T) {
	db1, mock1, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	expectVersion(mock1, "5.7.36-log")
	mock1.ExpectClose()

	db2, mock2, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	mock2.ExpectClose()

	opener := &fakeOpener{conns: []database.Conn{database.Wrap(db1), database.Wrap(db2)}}
	ctx := newContext(t, baseConfig(nil), WithOpener(opener.open))

	require.NoError(t, ctx.Ping(context.Background()))
	assert.Equal(t, CapabilityPre8, ctx.Capability())

	require.Len(t, opener.dsns, 2)
	assert.Contains(t, opener.dsns[0], "zeroDateTimeBehavior=CONVERT_TO_NULL")
	assert.Contains(t, opener.dsns[1], "zeroDateTimeBehavior=convertToNull")

	ctx.Shutdown()
	assert.NoError(t, mock1.ExpectationsWereMet())
	assert.NoError(t, mock2.ExpectationsWereMet())
}

func TestConnection_ProbeFailureIsFatal(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	mock.ExpectQuery("SELECT VERSION()").WillReturnError(errors.New("gone away"))
	mock.ExpectClose()

	opener := &fakeOpener{conns: []database.Conn{database.Wrap(db)}}
	ctx := newContext(t, baseConfig(nil), WithOpener(opener.open))

	pingErr := ctx.Ping(context.Background())

	require.Error(t, pingErr)
	assert.True(t, errs.IsConnectionFailed(pingErr))
	assert.Equal(t, CapabilityUnknown, ctx.Capability())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionContext_IntrospectionPassThrough(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	expectVersion(mock, "8.0.33")
	mock.ExpectQuery("SHOW MASTER STATUS").WillReturnRows(
		sqlmock.NewRows([]string{"File", "Position", "Binlog_Do_DB", "Binlog_Ignore_DB", "Executed_Gtid_Set"}).
			AddRow("binlog.000007", 4521, "", "", "abc:1-10"))
	mock.ExpectQuery("SHOW GRANTS FOR CURRENT_USER").WillReturnRows(
		grantRows("GRANT ALL PRIVILEGES ON *.* TO 'cdc'@'%'"))
	mock.ExpectQuery("SHOW VARIABLES WHERE Variable_name IN ('character_set_server','collation_server')").
		WillReturnRows(sqlmock.NewRows([]string{"Variable_name", "Value"}).
			AddRow("character_set_server", "utf8mb4"))
	mock.ExpectClose()

	opener := &fakeOpener{conns: []database.Conn{database.Wrap(db)}}
	ctx := newContext(t, baseConfig(nil), WithOpener(opener.open))

	gtid, err := ctx.KnownGtidSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc:1-10", gtid)

	ok, err := ctx.UserHasPrivileges(context.Background(), "replication slave")
	require.NoError(t, err)
	assert.True(t, ok)

	vars, err := ctx.CharsetSystemVariables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"character_set_server": "utf8mb4"}, vars)

	ctx.Shutdown()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionParameters_DSN(t *testing.T) {
	p := ConnectionParameters{
		Host:                 "db1.example.com",
		Port:                 3306,
		User:                 "cdc",
		Password:             "secret",
		TLS:                  "false",
		ZeroDateTimeBehavior: "CONVERT_TO_NULL",
		LegacyDatetime:       "false",
	}

	dsn := p.DSN()

	assert.Contains(t, dsn, "cdc:secret@tcp(db1.example.com:3306)/")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "zeroDateTimeBehavior=CONVERT_TO_NULL")
	assert.Contains(t, dsn, "useLegacyDatetimeCode=false")
}
