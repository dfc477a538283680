package targetdb

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/domain/schema"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
)

// Executor runs validated queries against the target database and
// captures its schema. Implementations never write to the target.
type Executor interface {
	Ping(ctx context.Context) error
	Snapshot(ctx context.Context) (*schema.Snapshot, error)
	Query(ctx context.Context, query string) ([]map[string]any, error)
	Close() error
}

// Connector is the Postgres implementation of Executor
type Connector struct {
	db           *sql.DB
	queryTimeout time.Duration
	log          *logger.Logger
}

// NewConnector opens a pool against the target database. The
// connection is verified lazily; call Ping to test it.
func NewConnector(cfg config.TargetConfig, queryTimeout time.Duration, log *logger.Logger) (*Connector, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode,
		int(cfg.ConnectTimeout.Seconds()),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.TargetConnectionError(err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Connector{db: db, queryTimeout: queryTimeout, log: log}, nil
}

// Ping verifies connectivity and credentials
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.TargetConnectionError(err)
	}
	return nil
}

const columnsQuery = `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

const primaryKeysQuery = `
SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
WHERE tc.table_schema = 'public' AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY tc.table_name, kcu.ordinal_position`

// Snapshot introspects the public schema of the target database
func (c *Connector) Snapshot(ctx context.Context) (*schema.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	pks := map[string]map[string]bool{}
	rows, err := c.db.QueryContext(ctx, primaryKeysQuery)
	if err != nil {
		return nil, errors.SchemaError(err)
	}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			rows.Close()
			return nil, errors.SchemaError(err)
		}
		if pks[table] == nil {
			pks[table] = map[string]bool{}
		}
		pks[table][column] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.SchemaError(err)
	}
	rows.Close()

	rows, err = c.db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, errors.SchemaError(err)
	}
	defer rows.Close()

	snapshot := &schema.Snapshot{CapturedAt: time.Now().UTC()}
	var current *schema.Table
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, errors.SchemaError(err)
		}
		if current == nil || current.Name != table {
			snapshot.Tables = append(snapshot.Tables, schema.Table{Name: table})
			current = &snapshot.Tables[len(snapshot.Tables)-1]
		}
		current.Columns = append(current.Columns, schema.Column{
			Name:       column,
			DataType:   dataType,
			Nullable:   strings.EqualFold(nullable, "YES"),
			PrimaryKey: pks[table][column],
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.SchemaError(err)
	}

	c.log.WithFields(map[string]interface{}{
		"tables": len(snapshot.Tables),
	}).Debug("captured target schema snapshot")

	return snapshot, nil
}

// Query executes a validated SELECT within the per-query timeout and
// returns the rows as maps keyed by column name.
func (c *Connector) Query(ctx context.Context, query string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyQueryError(err)
	}
	defer rows.Close()

	return scanRowsToMaps(rows)
}

// Close releases the connection pool
func (c *Connector) Close() error {
	return c.db.Close()
}

// scanRowsToMaps converts a result set into maps keyed by column
// name, decoding byte slices to strings so the records serialize as
// readable JSON.
func scanRowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.DatabaseError("failed to read result columns", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.DatabaseError("failed to scan result row", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			case time.Time:
				row[col] = v.UTC().Format(time.RFC3339)
			default:
				row[col] = v
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("failed to read result rows", err)
	}
	return out, nil
}

// IsUndefinedRelation reports whether the error means the query hit a
// table or column that no longer exists. Callers treat this as a
// stale schema snapshot.
func IsUndefinedRelation(err error) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	// 42P01 undefined_table, 42703 undefined_column
	return pqErr.Code == "42P01" || pqErr.Code == "42703"
}

func classifyQueryError(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Internal("target query timed out", err)
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return errors.DatabaseError(fmt.Sprintf("target query failed: %s", pqErr.Message), err)
	}
	return errors.DatabaseError("target query failed", err)
}
