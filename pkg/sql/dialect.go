package sql

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects identifier quoting and placeholder syntax for a driver.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectSQLServer Dialect = "sqlserver"
	DialectMySQL     Dialect = "mysql"
	DialectSQLite    Dialect = "sqlite"
)

// ParseDialect maps a configured source type to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlserver", "mssql":
		return DialectSQLServer, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported SQL dialect %q", s)
}

func (d Dialect) valid() bool {
	switch d {
	case DialectPostgres, DialectSQLServer, DialectMySQL, DialectSQLite:
		return true
	}
	return false
}

// QuoteIdentifier quotes an already validated identifier.
func (d Dialect) QuoteIdentifier(name string) string {
	switch d {
	case DialectPostgres:
		return `"` + name + `"`
	case DialectSQLServer:
		return "[" + name + "]"
	default:
		return "`" + name + "`"
	}
}

// placeholder returns the bind marker for the zero-based argument position.
func (d Dialect) placeholder(pos int) string {
	switch d {
	case DialectPostgres:
		return "$" + strconv.Itoa(pos+1)
	case DialectSQLServer:
		return "@p" + strconv.Itoa(pos+1)
	default:
		return "?"
	}
}
