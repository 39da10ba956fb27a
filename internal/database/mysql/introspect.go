package mysql

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/datakite/mysqlcdc/internal/database"
	"github.com/datakite/mysqlcdc/internal/errs"
	"github.com/datakite/mysqlcdc/internal/logger"
)

// Introspector runs the read-only diagnostic queries whose results gate
// later pipeline stages: snapshotting strategy, schema-history consistency
// and failure escalation. Every query failure is surfaced immediately as
// an introspection error; no retries happen at this layer.
type Introspector struct {
	conn database.Conn
	log  *logger.Logger
}

// NewIntrospector binds an Introspector to conn.
func NewIntrospector(conn database.Conn, log *logger.Logger) *Introspector {
	if log == nil {
		log = logger.Global()
	}
	return &Introspector{conn: conn, log: log}
}

// KnownGtidSet returns the server's executed GTID set. The result is never
// absent: an empty string means the server does not use GTIDs, which
// callers treat as "resume by binlog position instead".
func (i *Introspector) KnownGtidSet(ctx context.Context) (string, error) {
	var gtidSet string
	err := i.conn.Query(ctx, "SHOW MASTER STATUS", func(rows database.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		// The GTID set is the fifth column; older servers report only four.
		if len(cols) < 5 || !rows.Next() {
			return nil
		}
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for n := range dest {
			ptrs[n] = &dest[n]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		gtidSet = asString(dest[4])
		return nil
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrKindIntrospectionFailed, "reading GTID set", err)
	}
	return gtidSet, nil
}

// UserHasPrivileges reports whether the current user holds the named
// privilege. A user granted "ALL" matches any requested name. Rows with a
// null grant string carry no information and are skipped.
func (i *Introspector) UserHasPrivileges(ctx context.Context, grantName string) (bool, error) {
	found := false
	want := strings.ToUpper(grantName)
	err := i.conn.Query(ctx, "SHOW GRANTS FOR CURRENT_USER", func(rows database.Rows) error {
		for rows.Next() {
			var grants sql.NullString
			if err := rows.Scan(&grants); err != nil {
				return err
			}
			if !grants.Valid {
				continue
			}
			i.log.Debug(grants.String)
			upper := strings.ToUpper(grants.String)
			if strings.Contains(upper, "ALL") || strings.Contains(upper, want) {
				found = true
			}
		}
		return nil
	})
	if err != nil {
		return false, errs.Wrap(errs.ErrKindIntrospectionFailed,
			"reading grants for current user", err)
	}
	return found, nil
}

// CharsetSystemVariables reads the server character-set and collation
// variables consulted before parsing DDL history.
func (i *Introspector) CharsetSystemVariables(ctx context.Context) (map[string]string, error) {
	i.log.Debug("reading MySQL charset-related system variables")
	return i.readVariables(ctx,
		"SHOW VARIABLES WHERE Variable_name IN ('character_set_server','collation_server')")
}

// SystemVariables reads a full snapshot of the server's system variables.
func (i *Introspector) SystemVariables(ctx context.Context) (map[string]string, error) {
	i.log.Debug("reading MySQL system variables")
	return i.readVariables(ctx, "SHOW VARIABLES")
}

func (i *Introspector) readVariables(ctx context.Context, statement string) (map[string]string, error) {
	variables := make(map[string]string)
	err := i.conn.Query(ctx, statement, func(rows database.Rows) error {
		for rows.Next() {
			var name, value sql.NullString
			if err := rows.Scan(&name, &value); err != nil {
				return err
			}
			if !name.Valid || !value.Valid {
				continue
			}
			variables[name.String] = value.String
			i.log.Debugf("\t%s = %s", name.String, value.String)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIntrospectionFailed, "reading MySQL variables", err)
	}
	return variables, nil
}

// SetStatementFor serialises a variable mapping into a single
// "SET name=value, …;" statement. Names are sorted so the output is
// reproducible; values containing a comma or semicolon are quoted.
func SetStatementFor(variables map[string]string) string {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("SET ")
	for n, name := range names {
		if n > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		value := variables[name]
		if strings.ContainsAny(value, ",;") {
			value = "'" + value + "'"
		}
		sb.WriteString(value)
	}
	sb.WriteByte(';')
	return sb.String()
}

// asString renders a scanned column value, which the driver may deliver as
// a string, byte slice or nil.
func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}
