package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"workspace-collections/internal/dbexec"
	"workspace-collections/internal/logging"
	"workspace-collections/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrStorageDisabled is returned when storage inspection is requested without a database.
var ErrStorageDisabled = errors.New("storage inspection is disabled")

// StorageFact is what the database reports about one collection.
type StorageFact struct {
	Exists    bool
	Documents *int64
}

// InspectorConfig configures an Inspector.
type InspectorConfig struct {
	Executor dbexec.QueryExecutor
	// DatabaseName limits the lookup to one schema; empty means the connection's current database.
	DatabaseName   string
	CountDocuments bool
	Logger         *logging.Logger
}

// Inspector reads collection metadata from information_schema. It never writes.
type Inspector struct {
	executor       dbexec.QueryExecutor
	databaseName   string
	countDocuments bool
	logger         *logging.Logger
}

// NewInspector creates a storage inspector.
func NewInspector(cfg InspectorConfig) (*Inspector, error) {
	if cfg.Executor == nil {
		return nil, ErrStorageDisabled
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Inspector{
		executor:       cfg.Executor,
		databaseName:   cfg.DatabaseName,
		countDocuments: cfg.CountDocuments,
		logger:         cfg.Logger.Component("storage_inspector"),
	}, nil
}

// Inspect reports which of the given collections exist as tables and,
// when enabled, how many rows they hold.
func (i *Inspector) Inspect(ctx context.Context, collections []string) (map[string]StorageFact, error) {
	ctx, span := startSpan(ctx, "catalog.inspect_storage",
		attribute.String("db.name", i.databaseName),
		attribute.Int("catalog.collections", len(collections)),
	)
	defer span.End()

	facts := make(map[string]StorageFact, len(collections))
	if len(collections) == 0 {
		return facts, nil
	}

	existing, err := i.existingTables(ctx, collections)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to list collection tables: %w", err)
	}

	for _, name := range collections {
		table, ok := existing[strings.ToLower(name)]
		fact := StorageFact{Exists: ok}
		if ok && i.countDocuments {
			count, err := i.countRows(ctx, table)
			if err != nil {
				recordSpanError(span, err)
				return nil, fmt.Errorf("failed to count documents in %s: %w", name, err)
			}
			fact.Documents = &count
		}
		facts[name] = fact
	}

	span.SetAttributes(attribute.Int("catalog.collections_present", len(existing)))
	i.logger.Debug("storage inspected",
		slog.Int("collections", len(collections)),
		slog.Int("present", len(existing)),
	)
	return facts, nil
}

// existingTables maps each lowercased table name found to its name as stored.
// TABLE_NAME comparisons follow the server's collation, so a table stored as
// "Tasks" can answer for the collection "tasks".
func (i *Inspector) existingTables(ctx context.Context, collections []string) (map[string]string, error) {
	builder := sq.Select("TABLE_NAME").
		From("information_schema.TABLES").
		Where(sq.Eq{"TABLE_NAME": collections})
	if i.databaseName != "" {
		builder = builder.Where(sq.Eq{"TABLE_SCHEMA": i.databaseName})
	} else {
		builder = builder.Where("TABLE_SCHEMA = DATABASE()")
	}

	query, args, err := builder.OrderBy("TABLE_NAME").PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := i.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]string, len(collections))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		existing[strings.ToLower(name)] = name
	}
	return existing, rows.Err()
}

func (i *Inspector) countRows(ctx context.Context, collection string) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").
		From(sqlutil.QualifiedTable(i.databaseName, collection)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return 0, err
	}

	rows, err := i.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("workspace-collections/catalog")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
