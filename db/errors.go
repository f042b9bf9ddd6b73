package db

import (
	"database/sql"
	"database/sql/driver"
	"strings"

	"github.com/teranos/pulsed/errors"
)

// ErrDatabaseClosed is returned when the store is used after shutdown closed it
var ErrDatabaseClosed = errors.New("database is closed")

// transientMessages are driver errors that go away once the database is
// reachable again. Neither driver exports typed errors for all of them.
var transientMessages = []string{
	"database is closed",
	"database is locked",
	"connection refused",
	"connection reset by peer",
	"broken pipe",
	"bad connection",
	"the database system is starting up",
	"the database system is shutting down",
}

// IsDatabaseClosed reports whether err comes from using a closed *sql.DB
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDatabaseClosed) || errors.Is(err, sql.ErrConnDone) ||
		strings.Contains(err.Error(), "database is closed")
}

// IsTransient reports whether err means the database is unreachable rather
// than that the statement itself is wrong
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsDatabaseClosed(err) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Classify marks transient errors with errors.ErrServiceUnavailable so callers
// can tell an outage from a bad statement. Other errors are returned unchanged.
func Classify(err error) error {
	if !IsTransient(err) {
		return err
	}
	return errors.Mark(err, errors.ErrServiceUnavailable)
}
