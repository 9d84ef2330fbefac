package pdv

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SaleRow is one row of the PDV's last-sale query with column order
// preserved. The PDV schema is not ours, so fields are probed by name
// instead of scanned into a fixed struct; "first" in the heuristics below
// means first in SELECT order, which only the Columns slice can provide.
type SaleRow struct {
	Columns []string
	Data    map[string]any
}

// Column names that carry the sale total, in priority order.
var valorFieldNames = []string{"valor", "valor_total", "total", "valor_venda", "preco", "preco_total"}

// Substrings that identify the invoice-number column.
var notaFieldKeywords = []string{"numero", "nota"}

// ExtractNumeroNota finds the invoice identifier of the sale row: an exact
// numero_nota column wins, then the first column whose name contains one of
// the known keywords. Returns false when the row has no recognizable
// invoice column.
func ExtractNumeroNota(row *SaleRow) (string, bool) {
	for _, col := range row.Columns {
		if strings.EqualFold(col, "numero_nota") {
			if s, ok := stringValue(row.Data[col]); ok {
				return s, true
			}
		}
	}
	for _, col := range row.Columns {
		lower := strings.ToLower(col)
		for _, kw := range notaFieldKeywords {
			if strings.Contains(lower, kw) {
				if s, ok := stringValue(row.Data[col]); ok {
					return s, true
				}
			}
		}
	}
	return "", false
}

// ExtractValor finds the sale amount: the known amount column names are
// tried first (case-insensitive, must hold a positive number), then the
// first positive numeric column of the row.
func ExtractValor(row *SaleRow) (decimal.Decimal, bool) {
	for _, name := range valorFieldNames {
		for _, col := range row.Columns {
			if !strings.EqualFold(col, name) {
				continue
			}
			if v, ok := numericValue(row.Data[col]); ok && v.IsPositive() {
				return v, true
			}
		}
	}
	for _, col := range row.Columns {
		if v, ok := numericValue(row.Data[col]); ok && v.IsPositive() {
			return v, true
		}
	}
	return decimal.Zero, false
}

// stringValue renders an invoice identifier. Numeric columns are common
// (the register stores the sequence as INT), so numbers are accepted and
// formatted without a fraction.
func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case []byte:
		s := strings.TrimSpace(string(val))
		return s, s != ""
	default:
		if d, ok := numericValue(v); ok {
			return d.String(), true
		}
	}
	return "", false
}

// numericValue converts the dynamically-typed values go-mssqldb produces.
// DECIMAL/NUMERIC columns arrive as []byte holding the decimal text.
func numericValue(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int64:
		return decimal.NewFromInt(val), true
	case int32:
		return decimal.NewFromInt(int64(val)), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case []byte:
		// DECIMAL/NUMERIC wire representation; anything non-numeric in a
		// byte column is simply not an amount.
		d, err := decimal.NewFromString(strings.TrimSpace(string(val)))
		return d, err == nil
	}
	return decimal.Zero, false
}
