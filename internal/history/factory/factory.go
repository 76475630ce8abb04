package factory

import (
	"errors"
	"net/url"
	"strings"

	"github.com/loykin/taskvisor/internal/history"
	"github.com/loykin/taskvisor/internal/history/clickhouse"
	"github.com/loykin/taskvisor/internal/history/opensearch"
	"github.com/loykin/taskvisor/internal/history/postgres"
	"github.com/loykin/taskvisor/internal/history/sqlite"
)

// NewSinkFromDSN maps a DSN onto a sink implementation:
//
//	clickhouse://host:port?table=name
//	opensearch://host:port/index   (elasticsearch:// is accepted as an alias)
//	postgres:// or postgresql://   standard postgres connection strings
//	sqlite://<path>, sqlite://:memory:, or a bare filesystem path
func NewSinkFromDSN(dsn string) (history.Sink, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty DSN")
	}
	switch ld := strings.ToLower(d); {
	case strings.HasPrefix(ld, "clickhouse://"):
		return parseClickHouseDSN(d)
	case strings.HasPrefix(ld, "opensearch://"), strings.HasPrefix(ld, "elasticsearch://"):
		return parseOpenSearchDSN(d)
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return postgres.New(d)
	case strings.HasPrefix(ld, "sqlite://"), !strings.Contains(d, "://"):
		return sqlite.New(d)
	default:
		return nil, errors.New("unsupported DSN format: " + d)
	}
}

func parseClickHouseDSN(dsn string) (history.Sink, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	host := u.Host
	if host == "" {
		host = "localhost:9000" // native protocol port
	}
	table := u.Query().Get("table")
	if table == "" {
		table = "task_history"
	}
	return clickhouse.New(host, table)
}

func parseOpenSearchDSN(dsn string) (history.Sink, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	index := strings.Trim(u.Path, "/")
	if index == "" {
		index = "task-history"
	}
	// The sink speaks plain HTTP; TLS termination belongs to a proxy in
	// front of the cluster.
	return opensearch.New("http://"+u.Host, index), nil
}
