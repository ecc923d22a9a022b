package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// ApprovalRepository handles approval decision database operations.
// The approvals table carries a UNIQUE(request_id, level) constraint;
// replacement of a same-approver decision goes through Replace.
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new approval decision
func (r *ApprovalRepository) Create(tx *sql.Tx, approval *entity.Approval) error {
	query := `
		INSERT INTO approvals (request_id, approver, level, decision, comment)
		VALUES (?, ?, ?, ?, ?)
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, approval.RequestID, approval.Approver,
			approval.Level, approval.Decision, approval.Comment)
	} else {
		result, err = r.db.Exec(query, approval.RequestID, approval.Approver,
			approval.Level, approval.Decision, approval.Comment)
	}
	if err != nil {
		r.logger.Error("Failed to create approval", zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	approval.ID = id
	return nil
}

// Replace overwrites the existing decision at (request, level) in place
func (r *ApprovalRepository) Replace(tx *sql.Tx, approval *entity.Approval) error {
	query := `
		UPDATE approvals
		SET decision = ?, comment = ?, created_at = CURRENT_TIMESTAMP
		WHERE request_id = ? AND level = ? AND approver = ?
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, approval.Decision, approval.Comment,
			approval.RequestID, approval.Level, approval.Approver)
	} else {
		result, err = r.db.Exec(query, approval.Decision, approval.Comment,
			approval.RequestID, approval.Level, approval.Approver)
	}
	if err != nil {
		r.logger.Error("Failed to replace approval", zap.Error(err))
		return fmt.Errorf("failed to replace approval: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByRequestAndLevel returns the decision at one level, or (nil, nil)
func (r *ApprovalRepository) GetByRequestAndLevel(tx *sql.Tx, requestID string, level int) (*entity.Approval, error) {
	query := `
		SELECT id, request_id, approver, level, decision, comment, created_at
		FROM approvals
		WHERE request_id = ? AND level = ?
	`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, requestID, level)
	} else {
		row = r.db.QueryRow(query, requestID, level)
	}

	var approval entity.Approval
	var comment sql.NullString
	err := row.Scan(&approval.ID, &approval.RequestID, &approval.Approver,
		&approval.Level, &approval.Decision, &comment, &approval.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval",
			zap.String("request_id", requestID), zap.Int("level", level), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	approval.Comment = comment.String
	return &approval, nil
}

// GetByRequest returns all decisions recorded for a request, by level
func (r *ApprovalRepository) GetByRequest(tx *sql.Tx, requestID string) ([]*entity.Approval, error) {
	query := `
		SELECT id, request_id, approver, level, decision, comment, created_at
		FROM approvals
		WHERE request_id = ?
		ORDER BY level
	`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.Query(query, requestID)
	} else {
		rows, err = r.db.Query(query, requestID)
	}
	if err != nil {
		r.logger.Error("Failed to get approvals", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*entity.Approval
	for rows.Next() {
		var approval entity.Approval
		var comment sql.NullString
		if err := rows.Scan(&approval.ID, &approval.RequestID, &approval.Approver,
			&approval.Level, &approval.Decision, &comment, &approval.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approval.Comment = comment.String
		approvals = append(approvals, &approval)
	}
	return approvals, rows.Err()
}
