package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"edupulse-backend/internal/models"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Insert appends one audit entry. The table has no update or delete
// path anywhere in the codebase.
func (r *AuditRepo) Insert(ctx context.Context, e models.AuditLogEntry) error {
	query := `INSERT INTO audit_logs
		(id, tenant_id, actor_id, actor_type, operation, resource, allowed, denial_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.TenantID, e.ActorID, e.ActorType, e.Operation, e.Resource, e.Allowed, e.DenialReason, e.CreatedAt,
	)
	return err
}
