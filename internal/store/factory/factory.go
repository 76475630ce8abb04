package factory

import (
	"errors"
	"strings"

	"github.com/loykin/taskvisor/internal/store"
	"github.com/loykin/taskvisor/internal/store/memory"
	pg "github.com/loykin/taskvisor/internal/store/postgres"
	sq "github.com/loykin/taskvisor/internal/store/sqlite"
)

// NewFromDSN maps a DSN onto a store implementation:
//
//	memory://                      volatile store for tests and ephemeral engines
//	sqlite://<path>                file-backed sqlite store
//	postgres:// or postgresql://   postgres-backed store
//	<bare path>                    shorthand for sqlite://<bare path>
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty DSN")
	}
	switch ld := strings.ToLower(d); {
	case ld == "memory" || ld == "memory://":
		return memory.New(), nil
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(d[len("sqlite://"):])
	default:
		return sq.New(d)
	}
}
