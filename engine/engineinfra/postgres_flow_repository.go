package engineinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/logx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const postgresFlowsSchema = `
	CREATE TABLE IF NOT EXISTS flows (
		id         BIGSERIAL PRIMARY KEY,
		data       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

type PostgresFlowRepository struct {
	db *sqlx.DB
}

var _ engine.FlowRepository = (*PostgresFlowRepository)(nil)

func NewPostgresFlowRepository(db *sqlx.DB) *PostgresFlowRepository {
	return &PostgresFlowRepository{db: db}
}

// EnsureSchema creates the flows table when it does not exist yet.
func (r *PostgresFlowRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, postgresFlowsSchema); err != nil {
		return errx.Wrap(err, "failed to create flows table", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresFlowRepository) SaveFlow(ctx context.Context, doc []byte) (kernel.FlowID, error) {
	if !json.Valid(doc) {
		return "", engine.ErrInvalidFlow().WithDetail("reason", "document is not valid JSON")
	}

	var id int64
	err := r.db.GetContext(ctx, &id, `INSERT INTO flows (data) VALUES ($1) RETURNING id`, string(doc))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Class() == "22" {
			return "", engine.ErrInvalidFlow().WithDetail("reason", pqErr.Message)
		}
		logx.Error("Error inserting flow: %v", err)
		return "", errx.Wrap(err, "failed to save flow", errx.TypeInternal)
	}

	return kernel.FlowID(strconv.FormatInt(id, 10)), nil
}

func (r *PostgresFlowRepository) GetFlow(ctx context.Context, id kernel.FlowID) ([]byte, error) {
	numericID, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return nil, engine.ErrFlowNotFound().WithDetail("flow_id", id.String())
	}

	var data []byte
	err = r.db.GetContext(ctx, &data, `SELECT data FROM flows WHERE id = $1`, numericID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, engine.ErrFlowNotFound().WithDetail("flow_id", id.String())
		}
		logx.Error("Error fetching flow %s: %v", id, err)
		return nil, errx.Wrap(err, "failed to get flow", errx.TypeInternal).
			WithDetail("flow_id", id.String())
	}

	return data, nil
}
