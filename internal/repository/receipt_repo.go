package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// ReceiptRepository handles receipt document database operations
type ReceiptRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *sql.DB, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new receipt record
func (r *ReceiptRepository) Create(tx *sql.Tx, receipt *entity.Receipt) error {
	var extracted sql.NullString
	if receipt.ExtractedData != nil {
		data, err := json.Marshal(receipt.ExtractedData)
		if err != nil {
			return fmt.Errorf("failed to marshal extracted data: %w", err)
		}
		extracted = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO receipts (id, order_id, extracted_data)
		VALUES (?, ?, ?)
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, receipt.ID, receipt.OrderID, extracted)
	} else {
		_, err = r.db.Exec(query, receipt.ID, receipt.OrderID, extracted)
	}
	if err != nil {
		r.logger.Error("Failed to create receipt", zap.Error(err))
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	return nil
}

func scanReceipt(row interface{ Scan(...interface{}) error }) (*entity.Receipt, error) {
	var receipt entity.Receipt
	var extracted, result sql.NullString

	err := row.Scan(&receipt.ID, &receipt.OrderID, &extracted, &result,
		&receipt.CreatedAt, &receipt.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if extracted.Valid {
		var data entity.ReceiptData
		if err := json.Unmarshal([]byte(extracted.String), &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extracted data: %w", err)
		}
		receipt.ExtractedData = &data
	}
	if result.Valid {
		var vr entity.ValidationResult
		if err := json.Unmarshal([]byte(result.String), &vr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation result: %w", err)
		}
		receipt.ValidationResult = &vr
	}
	return &receipt, nil
}

const receiptColumns = `id, order_id, extracted_data, validation_result, created_at, updated_at`

// GetByID retrieves a receipt by ID, or (nil, nil) when absent
func (r *ReceiptRepository) GetByID(tx *sql.Tx, id string) (*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, id)
	} else {
		row = r.db.QueryRow(query, id)
	}

	receipt, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get receipt by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return receipt, nil
}

// GetByOrderID returns all receipts recorded against an order
func (r *ReceiptRepository) GetByOrderID(tx *sql.Tx, orderID string) ([]*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE order_id = ? ORDER BY created_at`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.Query(query, orderID)
	} else {
		rows, err = r.db.Query(query, orderID)
	}
	if err != nil {
		r.logger.Error("Failed to get receipts by order", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*entity.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

// SaveValidationResult stores the latest reconciliation outcome
func (r *ReceiptRepository) SaveValidationResult(tx *sql.Tx, receiptID string, result *entity.ValidationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal validation result: %w", err)
	}

	query := `
		UPDATE receipts
		SET validation_result = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var res sql.Result
	if tx != nil {
		res, err = tx.Exec(query, string(data), receiptID)
	} else {
		res, err = r.db.Exec(query, string(data), receiptID)
	}
	if err != nil {
		r.logger.Error("Failed to save validation result", zap.String("receipt_id", receiptID), zap.Error(err))
		return fmt.Errorf("failed to save validation result: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
