package engineinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/logx"
	"github.com/jmoiron/sqlx"
)

const sqliteFlowsSchema = `
	CREATE TABLE IF NOT EXISTS flows (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		data       TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`

// SQLiteFlowRepository keeps flows in a local SQLite file, for single node
// deployments and the CLI.
type SQLiteFlowRepository struct {
	db *sqlx.DB
}

var _ engine.FlowRepository = (*SQLiteFlowRepository)(nil)

func NewSQLiteFlowRepository(db *sqlx.DB) *SQLiteFlowRepository {
	return &SQLiteFlowRepository{db: db}
}

func (r *SQLiteFlowRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteFlowsSchema); err != nil {
		return errx.Wrap(err, "failed to create flows table", errx.TypeInternal)
	}
	return nil
}

func (r *SQLiteFlowRepository) SaveFlow(ctx context.Context, doc []byte) (kernel.FlowID, error) {
	if !json.Valid(doc) {
		return "", engine.ErrInvalidFlow().WithDetail("reason", "document is not valid JSON")
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO flows (data, created_at) VALUES (?, ?)`,
		string(doc), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		logx.Error("Error inserting flow: %v", err)
		return "", errx.Wrap(err, "failed to save flow", errx.TypeInternal)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return "", errx.Wrap(err, "failed to read flow id", errx.TypeInternal)
	}
	return kernel.FlowID(strconv.FormatInt(id, 10)), nil
}

func (r *SQLiteFlowRepository) GetFlow(ctx context.Context, id kernel.FlowID) ([]byte, error) {
	numericID, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return nil, engine.ErrFlowNotFound().WithDetail("flow_id", id.String())
	}

	var data string
	err = r.db.GetContext(ctx, &data, `SELECT data FROM flows WHERE id = ?`, numericID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, engine.ErrFlowNotFound().WithDetail("flow_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to get flow", errx.TypeInternal).
			WithDetail("flow_id", id.String())
	}
	return []byte(data), nil
}
