package mysql

import (
	"context"
	"strconv"
	"strings"

	"github.com/datakite/mysqlcdc/internal/database"
	"github.com/datakite/mysqlcdc/internal/errs"
)

// CapabilityClass is the coarse server-generation classification used to
// pick encoding-dependent connection parameters. It is resolved once per
// ConnectionContext, on the first successful connection, and never
// re-evaluated afterwards.
type CapabilityClass int

const (
	CapabilityUnknown CapabilityClass = iota
	CapabilityPre8
	CapabilityV8OrLater
)

func (c CapabilityClass) String() string {
	switch c {
	case CapabilityPre8:
		return "pre_8"
	case CapabilityV8OrLater:
		return "v8_or_later"
	default:
		return "unknown"
	}
}

// zeroDateTimeBehavior returns the exact spelling of the zero-date
// null-handling parameter value expected by the server generation. The
// meaning is identical; only the literal form differs.
func (c CapabilityClass) zeroDateTimeBehavior() string {
	if c == CapabilityPre8 {
		return "convertToNull"
	}
	return "CONVERT_TO_NULL"
}

// probeCapability classifies the server generation from a single metadata
// query on a freshly opened connection. A probe failure is fatal to
// connection establishment and is never retried here.
func probeCapability(ctx context.Context, conn database.Conn) (CapabilityClass, error) {
	var version string
	if err := conn.QueryRow(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return CapabilityUnknown, errs.Wrap(errs.ErrKindConnectionFailed, "capability probe failed", err)
	}

	major, err := parseMajorVersion(version)
	if err != nil {
		return CapabilityUnknown, err
	}
	if major < 8 {
		return CapabilityPre8, nil
	}
	return CapabilityV8OrLater, nil
}

// parseMajorVersion extracts the leading major version from a server
// version string such as "8.0.33" or "5.7.36-log".
func parseMajorVersion(version string) (int, error) {
	v := strings.TrimSpace(version)
	if i := strings.IndexAny(v, ".-_ "); i >= 0 {
		v = v[:i]
	}
	major, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindConnectionFailed, "unparseable server version "+strconv.Quote(version), err)
	}
	return major, nil
}
