package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
)

// TranslateError maps driver and ORM failures onto apperr kinds. what names
// the row being touched, e.g. "trip 42". Errors that are already classified
// pass through unchanged.
func TranslateError(err error, what string) error {
	if err == nil {
		return nil
	}
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("%s already exists", what)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.Unavailable(err, "%s: storage timed out", what)
	case errors.Is(err, driver.ErrBadConn):
		return apperr.Unavailable(err, "%s: storage connection lost", what)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return apperr.Conflict("%s already exists", what)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "55P03", // lock_not_available
			pgErr.Code == "57014", // query_canceled
			pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01": // deadlock_detected
			return apperr.Unavailable(err, "%s: storage busy (%s)", what, pgErr.Code)
		}
	}
	if pgconn.Timeout(err) {
		return apperr.Unavailable(err, "%s: storage timed out", what)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Unavailable(err, "%s: storage unreachable", what)
	}

	return fmt.Errorf("%s: %w", what, err)
}
