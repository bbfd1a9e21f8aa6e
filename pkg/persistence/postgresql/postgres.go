// Package postgresql provides the PostgreSQL entity store. Row changes are announced with
// NOTIFY on a per-tenant channel by a trigger installed through the migrations.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements persistence.Store for PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore connects to PostgreSQL and runs pending migrations.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:     database,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (s *Store) Insert(ctx context.Context, entityType string, record models.Record) (models.Record, error) {
	prepared, err := persistence.PrepareInsert(record, s.now())
	if err != nil {
		return nil, persistence.NewRecordError("Insert", entityType, record.ID(), err)
	}

	data, err := json.Marshal(prepared)
	if err != nil {
		return nil, persistence.NewRecordError("Insert", entityType, prepared.ID(), err)
	}

	query := `
		INSERT INTO records (entity_type, id, tenant_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`

	_, err = s.db.ExecContext(ctx, query, entityType, prepared.ID(), prepared.TenantID(), data)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, persistence.NewRecordError("Insert", entityType, prepared.ID(), persistence.ErrRecordExists)
		}

		return nil, persistence.NewRecordError("Insert", entityType, prepared.ID(), err)
	}

	return prepared, nil
}

func (s *Store) Update(ctx context.Context, entityType, tenantID, id string, fields map[string]any) (models.Record, error) {
	prepared, err := persistence.PrepareUpdate(fields, s.now())
	if err != nil {
		return nil, persistence.NewRecordError("Update", entityType, id, err)
	}

	patch, err := json.Marshal(prepared)
	if err != nil {
		return nil, persistence.NewRecordError("Update", entityType, id, err)
	}

	query := `
		UPDATE records SET data = data || $4::jsonb, updated_at = NOW()
		WHERE entity_type = $1 AND tenant_id = $2 AND id = $3
		RETURNING data
	`

	record, err := s.scanRecord(s.db.QueryRowContext(ctx, query, entityType, tenantID, id, patch))
	if err != nil {
		return nil, persistence.NewRecordError("Update", entityType, id, err)
	}

	return record, nil
}

func (s *Store) SetOnce(ctx context.Context, entityType, tenantID, id, field string, value any) (bool, error) {
	if !fieldName.MatchString(field) {
		return false, persistence.NewRecordError("SetOnce", entityType, id, fmt.Errorf("%w: field %q", persistence.ErrInvalidRecord, field))
	}

	patch, err := json.Marshal(map[string]any{
		field:        value,
		"updated_at": s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, persistence.NewRecordError("SetOnce", entityType, id, err)
	}

	query := `
		UPDATE records SET data = data || $4::jsonb, updated_at = NOW()
		WHERE entity_type = $1 AND tenant_id = $2 AND id = $3 AND data->>$5::text IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, entityType, tenantID, id, patch, field)
	if err != nil {
		return false, persistence.NewRecordError("SetOnce", entityType, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewRecordError("SetOnce", entityType, id, err)
	}

	if affected == 1 {
		return true, nil
	}

	_, err = s.Get(ctx, entityType, tenantID, id)
	if err != nil {
		return false, err
	}

	return false, nil
}

func (s *Store) Get(ctx context.Context, entityType, tenantID, id string) (models.Record, error) {
	query := `SELECT data FROM records WHERE entity_type = $1 AND tenant_id = $2 AND id = $3`

	record, err := s.scanRecord(s.db.QueryRowContext(ctx, query, entityType, tenantID, id))
	if err != nil {
		return nil, persistence.NewRecordError("Get", entityType, id, err)
	}

	return record, nil
}

func (s *Store) Query(ctx context.Context, entityType string, q persistence.Query) ([]models.Record, error) {
	statement, args, err := buildQuery(entityType, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entityType, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	records := make([]models.Record, 0)

	for rows.Next() {
		var data []byte

		err := rows.Scan(&data)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", entityType, err)
		}

		var record models.Record

		err = json.Unmarshal(data, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", entityType, err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", entityType, err)
	}

	return records, nil
}

func (s *Store) Delete(ctx context.Context, entityType, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE entity_type = $1 AND tenant_id = $2 AND id = $3",
		entityType, tenantID, id)
	if err != nil {
		return persistence.NewRecordError("Delete", entityType, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError("Delete", entityType, id, err)
	}

	if affected == 0 {
		return persistence.NewRecordError("Delete", entityType, id, persistence.ErrRecordNotFound)
	}

	return nil
}

func (s *Store) scanRecord(row *sql.Row) (models.Record, error) {
	var data []byte

	err := row.Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRecordNotFound
		}

		return nil, err
	}

	var record models.Record

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	return record, nil
}

func buildQuery(entityType string, q persistence.Query) (string, []any, error) {
	var builder strings.Builder

	builder.WriteString("SELECT data FROM records WHERE entity_type = $1")

	args := []any{entityType}

	if q.TenantID != "" {
		args = append(args, q.TenantID)
		fmt.Fprintf(&builder, " AND tenant_id = $%d", len(args))
	}

	fields := make([]string, 0, len(q.Where))
	for field := range q.Where {
		fields = append(fields, field)
	}

	slices.Sort(fields)

	for _, field := range fields {
		if !fieldName.MatchString(field) {
			return "", nil, fmt.Errorf("%w: field %q", persistence.ErrInvalidRecord, field)
		}

		args = append(args, field)
		position := len(args)

		value := q.Where[field]
		if value == nil {
			fmt.Fprintf(&builder, " AND data->>$%d::text IS NULL", position)

			continue
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode filter %s: %w", field, err)
		}

		args = append(args, encoded)
		fmt.Fprintf(&builder, " AND data->$%d::text = $%d::jsonb", position, len(args))
	}

	switch q.OrderBy {
	case "", "created_at":
		builder.WriteString(" ORDER BY created_at")
	default:
		if !fieldName.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("%w: order field %q", persistence.ErrInvalidRecord, q.OrderBy)
		}

		args = append(args, q.OrderBy)
		fmt.Fprintf(&builder, " ORDER BY data->$%d::text", len(args))
	}

	if q.Descending {
		builder.WriteString(" DESC")
	}

	builder.WriteString(", id")

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&builder, " LIMIT $%d", len(args))
	}

	return builder.String(), args, nil
}
