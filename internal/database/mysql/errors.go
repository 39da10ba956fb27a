package mysql

import (
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/datakite/mysqlcdc/internal/errs"
)

// MySQL error numbers seen during session establishment.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied  = 1044
	errAccessDenied    = 1045
	errNoDatabase      = 1046
	errUnknownDatabase = 1049
	errTooManyConns    = 1040
	errUserLimit       = 1203
	errConnRefused     = 2003
)

// mapConnectError converts a go-sql-driver error raised while establishing
// the session into an *errs.Error. Auth, capacity and reachability errors
// are classified as connection failures; anything else is a query failure.
func mapConnectError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errDBAccessDenied, errAccessDenied, errNoDatabase, errUnknownDatabase,
			errTooManyConns, errUserLimit, errConnRefused:
			return errs.Wrap(errs.ErrKindConnectionFailed,
				fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err)
		default:
			return errs.Wrap(errs.ErrKindQueryFailed,
				fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err)
		}
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
