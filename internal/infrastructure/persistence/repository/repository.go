// Package repository contains the sqlite implementations of the persistence
// ports. Every method resolves its executor through the sqlite package so it
// joins a surrounding transaction when one is bound to the context.
package repository

import (
	"database/sql"
	"errors"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
