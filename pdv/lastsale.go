package pdv

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrQueryNotConfigured = errors.New("consulta de última venda não configurada (PDV_LAST_SALE_QUERY)")

// FetchLastSale runs the store-specific last-sale query against the PDV
// connection and returns the first row with its column order, or nil when
// the query matched nothing.
func FetchLastSale(ctx context.Context, db *gorm.DB, query string) (*SaleRow, error) {
	if query == "" {
		return nil, ErrQueryNotConfigured
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	rows, err := sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, rows.Err()
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	sale := &SaleRow{
		Columns: cols,
		Data:    make(map[string]any, len(cols)),
	}
	for i, col := range cols {
		sale.Data[col] = values[i]
	}
	return sale, nil
}
