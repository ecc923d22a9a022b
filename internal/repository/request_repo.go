package repository

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// RequestRepository handles purchase request database operations
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new purchase request
func (r *RequestRepository) Create(tx *sql.Tx, req *entity.PurchaseRequest) error {
	query := `
		INSERT INTO purchase_requests (
			id, title, description, amount, status, created_by, version
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, req.ID, req.Title, req.Description,
			req.Amount.String(), req.Status, req.CreatedBy, req.Version)
	} else {
		_, err = r.db.Exec(query, req.ID, req.Title, req.Description,
			req.Amount.String(), req.Status, req.CreatedBy, req.Version)
	}

	if err != nil {
		r.logger.Error("Failed to create request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

const requestColumns = `
	id, title, description, amount, status, created_by,
	last_approved_by, version, approved_at, created_at, updated_at
`

func scanRequest(row interface{ Scan(...interface{}) error }) (*entity.PurchaseRequest, error) {
	var req entity.PurchaseRequest
	var amount string
	var lastApprovedBy sql.NullString
	var approvedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&amount,
		&req.Status,
		&req.CreatedBy,
		&lastApprovedBy,
		&req.Version,
		&approvedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	if lastApprovedBy.Valid {
		req.LastApprovedBy = lastApprovedBy.String
	}
	if approvedAt.Valid {
		req.ApprovedAt = &approvedAt.Time
	}
	return &req, nil
}

// GetByID retrieves a purchase request by ID, or (nil, nil) when absent
func (r *RequestRepository) GetByID(tx *sql.Tx, id string) (*entity.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE id = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, id)
	} else {
		row = r.db.QueryRow(query, id)
	}

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// List returns requests filtered by status, newest first. Empty status
// returns everything.
func (r *RequestRepository) List(status string, limit, offset int) ([]*entity.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.PurchaseRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateStatusCAS transitions the request status only if the stored
// version still matches expectedVersion. Returns false without error
// when another writer got there first.
func (r *RequestRepository) UpdateStatusCAS(tx *sql.Tx, id string, expectedVersion int64, status, lastApprovedBy string, approvedAt sql.NullTime) (bool, error) {
	query := `
		UPDATE purchase_requests
		SET status = ?, last_approved_by = ?, approved_at = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, status, lastApprovedBy, approvedAt, id, expectedVersion)
	} else {
		result, err = r.db.Exec(query, status, lastApprovedBy, approvedAt, id, expectedVersion)
	}
	if err != nil {
		r.logger.Error("Failed to update request status", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update request status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateAmountCAS rewrites the derived amount under the same optimistic
// version check used for status transitions.
func (r *RequestRepository) UpdateAmountCAS(tx *sql.Tx, id string, expectedVersion int64, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE purchase_requests
		SET amount = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, amount.String(), id, expectedVersion)
	} else {
		result, err = r.db.Exec(query, amount.String(), id, expectedVersion)
	}
	if err != nil {
		r.logger.Error("Failed to update request amount", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update request amount: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// AddItem inserts a line item for a request
func (r *RequestRepository) AddItem(tx *sql.Tx, item *entity.RequestItem) error {
	query := `
		INSERT INTO request_items (
			request_id, name, quantity, unit_price, description, unit_of_measure
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, item.RequestID, item.Name, item.Quantity,
			item.UnitPrice.String(), item.Description, item.UnitOfMeasure)
	} else {
		result, err = r.db.Exec(query, item.RequestID, item.Name, item.Quantity,
			item.UnitPrice.String(), item.Description, item.UnitOfMeasure)
	}
	if err != nil {
		r.logger.Error("Failed to add request item", zap.Error(err))
		return fmt.Errorf("failed to add request item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	return nil
}

// UpdateItem rewrites an existing line item
func (r *RequestRepository) UpdateItem(tx *sql.Tx, item *entity.RequestItem) error {
	query := `
		UPDATE request_items
		SET name = ?, quantity = ?, unit_price = ?, description = ?, unit_of_measure = ?
		WHERE id = ? AND request_id = ?
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, item.Name, item.Quantity, item.UnitPrice.String(),
			item.Description, item.UnitOfMeasure, item.ID, item.RequestID)
	} else {
		result, err = r.db.Exec(query, item.Name, item.Quantity, item.UnitPrice.String(),
			item.Description, item.UnitOfMeasure, item.ID, item.RequestID)
	}
	if err != nil {
		r.logger.Error("Failed to update request item", zap.Int64("id", item.ID), zap.Error(err))
		return fmt.Errorf("failed to update request item: %w", err)
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

// DeleteItem removes a line item
func (r *RequestRepository) DeleteItem(tx *sql.Tx, requestID string, itemID int64) error {
	query := `DELETE FROM request_items WHERE id = ? AND request_id = ?`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, itemID, requestID)
	} else {
		result, err = r.db.Exec(query, itemID, requestID)
	}
	if err != nil {
		r.logger.Error("Failed to delete request item", zap.Int64("id", itemID), zap.Error(err))
		return fmt.Errorf("failed to delete request item: %w", err)
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

// GetItems returns the line items of a request in insertion order
func (r *RequestRepository) GetItems(tx *sql.Tx, requestID string) ([]*entity.RequestItem, error) {
	query := `
		SELECT id, request_id, name, quantity, unit_price, description,
			unit_of_measure, created_at
		FROM request_items
		WHERE request_id = ?
		ORDER BY id
	`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.Query(query, requestID)
	} else {
		rows, err = r.db.Query(query, requestID)
	}
	if err != nil {
		r.logger.Error("Failed to get request items", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get request items: %w", err)
	}
	defer rows.Close()

	var items []*entity.RequestItem
	for rows.Next() {
		var item entity.RequestItem
		var unitPrice string
		var description, uom sql.NullString
		if err := rows.Scan(&item.ID, &item.RequestID, &item.Name, &item.Quantity,
			&unitPrice, &description, &uom, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request item: %w", err)
		}
		item.UnitPrice, err = decimal.NewFromString(unitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid stored unit price %q: %w", unitPrice, err)
		}
		item.Description = description.String
		item.UnitOfMeasure = uom.String
		items = append(items, &item)
	}
	return items, rows.Err()
}
