package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"convoyhub/internal/domain"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrDuplicate is returned when a write violates a unique index.
var ErrDuplicate = errors.New("duplicate record")

// ErrJoinCodeTaken is returned when a convoy write collides with another
// convoy's join code. Callers draw a new code and retry.
var ErrJoinCodeTaken = errors.New("join code already in use")

// translate maps driver and gorm errors onto domain kinds. what names the
// record for not-found messages.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case unavailable(err):
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	default:
		return err
	}
}

func unavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// translateConvoy is translate for the convoys table, whose only
// user-reachable unique index is the join code.
func translateConvoy(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrJoinCodeTaken
	}
	return translate(err, what)
}
