package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// OrderRepository handles purchase order database operations
type OrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new purchase order
func (r *OrderRepository) Create(tx *sql.Tx, order *entity.PurchaseOrder) error {
	metadata, err := json.Marshal(order.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal order metadata: %w", err)
	}

	query := `
		INSERT INTO purchase_orders (
			id, po_number, request_id, vendor, vendor_contact, total, status, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if tx != nil {
		_, err = tx.Exec(query, order.ID, order.PONumber, order.RequestID,
			order.Vendor, order.VendorContact, order.Total.String(), order.Status, string(metadata))
	} else {
		_, err = r.db.Exec(query, order.ID, order.PONumber, order.RequestID,
			order.Vendor, order.VendorContact, order.Total.String(), order.Status, string(metadata))
	}
	if err != nil {
		r.logger.Error("Failed to create order", zap.Error(err))
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

const orderColumns = `
	id, po_number, request_id, vendor, vendor_contact, total, status, metadata, created_at
`

func scanOrder(row interface{ Scan(...interface{}) error }) (*entity.PurchaseOrder, error) {
	var order entity.PurchaseOrder
	var total, metadata string
	var vendorContact sql.NullString

	err := row.Scan(
		&order.ID,
		&order.PONumber,
		&order.RequestID,
		&order.Vendor,
		&vendorContact,
		&total,
		&order.Status,
		&metadata,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Total, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("invalid stored total %q: %w", total, err)
	}
	order.VendorContact = vendorContact.String
	if err := json.Unmarshal([]byte(metadata), &order.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order metadata: %w", err)
	}
	return &order, nil
}

// GetByID retrieves a purchase order by ID, or (nil, nil) when absent
func (r *OrderRepository) GetByID(tx *sql.Tx, id string) (*entity.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, id)
	} else {
		row = r.db.QueryRow(query, id)
	}

	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get order by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetByRequestID retrieves the order generated for a request, or (nil, nil)
func (r *OrderRepository) GetByRequestID(tx *sql.Tx, requestID string) (*entity.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE request_id = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, requestID)
	} else {
		row = r.db.QueryRow(query, requestID)
	}

	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get order by request",
			zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// PONumberExists reports whether a PO number is already allocated
func (r *OrderRepository) PONumberExists(tx *sql.Tx, poNumber string) (bool, error) {
	query := `SELECT COUNT(1) FROM purchase_orders WHERE po_number = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, poNumber)
	} else {
		row = r.db.QueryRow(query, poNumber)
	}

	var count int
	if err := row.Scan(&count); err != nil {
		r.logger.Error("Failed to check PO number", zap.String("po_number", poNumber), zap.Error(err))
		return false, fmt.Errorf("failed to check po number: %w", err)
	}
	return count > 0, nil
}

// NextSequence returns the next per-year sequence value for the given
// year prefix, scanning existing PO numbers of that year.
func (r *OrderRepository) NextSequence(tx *sql.Tx, yearPrefix string) (int64, error) {
	// PO-<year><6-digit seq><3-digit suffix>: the sequence sits between
	// the prefix and the final three digits.
	query := `
		SELECT COALESCE(MAX(CAST(SUBSTR(po_number, ?, 6) AS INTEGER)), 0)
		FROM purchase_orders
		WHERE po_number LIKE ?
	`
	seqStart := len(yearPrefix) + 1

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, seqStart, yearPrefix+"%")
	} else {
		row = r.db.QueryRow(query, seqStart, yearPrefix+"%")
	}

	var max int64
	if err := row.Scan(&max); err != nil {
		r.logger.Error("Failed to get next sequence", zap.String("prefix", yearPrefix), zap.Error(err))
		return 0, fmt.Errorf("failed to get next sequence: %w", err)
	}
	return max + 1, nil
}

// UpdateStatus transitions the order lifecycle status
func (r *OrderRepository) UpdateStatus(tx *sql.Tx, id, status string) error {
	query := `UPDATE purchase_orders SET status = ? WHERE id = ?`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, status, id)
	} else {
		result, err = r.db.Exec(query, status, id)
	}
	if err != nil {
		r.logger.Error("Failed to update order status", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update order status: %w", err)
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

// List returns orders newest first
func (r *OrderRepository) List(limit, offset int) ([]*entity.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.Error(err))
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*entity.PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
