package models

import (
	"context"
	"errors"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/sammi-sistemas/fidelimax-bridge/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NotaUsada is the ledger of invoices already converted into points.
// Rows are write-once: created when a score for the invoice succeeds and
// never updated or deleted by the application. The unique index on
// numero_nota is the dedup guarantee; the application only detects the
// duplicate, it never relies on a prior read.
type NotaUsada struct {
	ID          int             `gorm:"primary_key" json:"id"`
	NumeroNota  string          `gorm:"size:100;not null;uniqueIndex:uniq_nota_usada" json:"numero_nota"`
	Valor       decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"valor"`
	CpfTelefone string          `gorm:"size:20" json:"cpf_telefone"`
	DataCriacao time.Time       `gorm:"autoCreateTime" json:"data_criacao"`
}

func (NotaUsada) TableName() string {
	return "notas_usadas"
}

// IsNotaUsada reports whether the invoice already earned points.
func IsNotaUsada(ctx context.Context, numeroNota string) (bool, error) {
	var count int64
	err := config.GetLojaDB().WithContext(ctx).
		Model(&NotaUsada{}).
		Where("numero_nota = ?", numeroNota).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordNotaUsada inserts the ledger row for an invoice. First writer wins:
// when a row already exists the call reports alreadyExists instead of
// failing, and the existing row is left untouched.
func RecordNotaUsada(ctx context.Context, numeroNota string, valor decimal.Decimal, cpfTelefone string) (alreadyExists bool, err error) {
	nota := &NotaUsada{
		NumeroNota:  numeroNota,
		Valor:       valor,
		CpfTelefone: cpfTelefone,
	}
	err = config.GetLojaDB().WithContext(ctx).Create(nota).Error
	if err == nil {
		return false, nil
	}
	if IsDuplicateKeyErr(err) {
		return true, nil
	}
	return false, err
}

// IsDuplicateKeyErr classifies unique-constraint violations. The sqlserver
// dialect translates most of them to gorm.ErrDuplicatedKey; raw 2601/2627
// are checked as well for statements that bypass translation.
func IsDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Number == 2601 || sqlErr.Number == 2627
	}
	return false
}
