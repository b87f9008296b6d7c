// Package repository implements the service store interfaces on top of
// MySQL with plain database/sql.  Absent rows are reported as
// sql.ErrNoRows so the service layer can turn them into NotFound errors.
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a unique key violation.
func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
