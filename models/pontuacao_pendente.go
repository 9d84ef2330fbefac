package models

import (
	"context"
	"errors"
	"time"

	"github.com/sammi-sistemas/fidelimax-bridge/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErroMensagemMaxLen bounds the stored upstream error text.
const ErroMensagemMaxLen = 500

// PontuacaoPendente is a retryable intent to award points for an
// invoice+customer pair. At most one unresolved row may exist per
// (numero_nota, cpf_telefone); the filtered unique index created in
// MigrateTable enforces that regardless of request interleaving.
type PontuacaoPendente struct {
	ID              int             `gorm:"primary_key" json:"id"`
	NumeroNota      string          `gorm:"size:100;not null;index" json:"numero_nota"`
	CpfTelefone     string          `gorm:"size:20;not null" json:"cpf_telefone"`
	Valor           decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"valor"`
	ErroMensagem    string          `gorm:"size:500" json:"erro_mensagem"`
	PayloadJSON     string          `gorm:"type:nvarchar(max)" json:"payload"`
	Tentativas      int             `gorm:"default:1" json:"tentativas"`
	Processada      bool            `gorm:"default:false;index" json:"processada"`
	DataCriacao     time.Time       `gorm:"autoCreateTime" json:"data_criacao"`
	UltimaTentativa *time.Time      `json:"ultima_tentativa"`
}

func (PontuacaoPendente) TableName() string {
	return "pontuacao_pendente"
}

// UpsertPontuacaoPendente records a scoring failure. An unresolved row for
// the same (numero_nota, cpf_telefone) is updated in place: tentativas
// bumped, error and payload refreshed, ultima_tentativa stamped. Otherwise
// a new row starts at tentativas=1. Runs inside one transaction; losing the
// insert race to a concurrent failure folds this attempt into the winner's
// row instead of erroring.
func UpsertPontuacaoPendente(ctx context.Context, numeroNota, cpfTelefone string, valor decimal.Decimal, erroMensagem string, payloadJSON string) error {
	return config.GetLojaDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{
			"valor":            valor,
			"erro_mensagem":    truncateErro(erroMensagem),
			"payload_json":     payloadJSON,
			"tentativas":       gorm.Expr("tentativas + 1"),
			"ultima_tentativa": now,
		}

		res := tx.Model(&PontuacaoPendente{}).
			Where("numero_nota = ? AND cpf_telefone = ? AND processada = ?", numeroNota, cpfTelefone, false).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		row := &PontuacaoPendente{
			NumeroNota:      numeroNota,
			CpfTelefone:     cpfTelefone,
			Valor:           valor,
			ErroMensagem:    truncateErro(erroMensagem),
			PayloadJSON:     payloadJSON,
			Tentativas:      1,
			UltimaTentativa: &now,
		}
		err := tx.Create(row).Error
		if err == nil {
			return nil
		}
		if !IsDuplicateKeyErr(err) {
			return err
		}
		return tx.Model(&PontuacaoPendente{}).
			Where("numero_nota = ? AND cpf_telefone = ? AND processada = ?", numeroNota, cpfTelefone, false).
			Updates(updates).Error
	})
}

// FindConflitoPendente returns an unresolved attempt for the invoice under a
// DIFFERENT customer identity, or nil when none exists.
func FindConflitoPendente(ctx context.Context, numeroNota, cpfTelefone string) (*PontuacaoPendente, error) {
	var row PontuacaoPendente
	err := config.GetLojaDB().WithContext(ctx).
		Where("numero_nota = ? AND cpf_telefone <> ? AND processada = ?", numeroNota, cpfTelefone, false).
		Order("data_criacao asc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MarcarPendenteProcessada resolves the unresolved attempt for the exact
// invoice+customer pair. No-op (zero rows) when nothing matches.
func MarcarPendenteProcessada(ctx context.Context, numeroNota, cpfTelefone string) (int64, error) {
	res := config.GetLojaDB().WithContext(ctx).
		Model(&PontuacaoPendente{}).
		Where("numero_nota = ? AND cpf_telefone = ? AND processada = ?", numeroNota, cpfTelefone, false).
		Update("processada", true)
	return res.RowsAffected, res.Error
}

// DeletePendentesNaoProcessadas removes every unresolved attempt for the
// invoice regardless of customer. Used when the operator confirms replacing
// a conflicting attempt.
func DeletePendentesNaoProcessadas(ctx context.Context, numeroNota string) (int64, error) {
	res := config.GetLojaDB().WithContext(ctx).
		Where("numero_nota = ? AND processada = ?", numeroNota, false).
		Delete(&PontuacaoPendente{})
	return res.RowsAffected, res.Error
}

// ListPendentesParaRetry returns the unresolved attempts still under the
// retry ceiling, oldest first so the earliest failures are retried first.
func ListPendentesParaRetry(ctx context.Context, maxTentativas int) ([]PontuacaoPendente, error) {
	var rows []PontuacaoPendente
	err := config.GetLojaDB().WithContext(ctx).
		Where("processada = ? AND tentativas < ?", false, maxTentativas).
		Order("data_criacao asc").
		Find(&rows).Error
	return rows, err
}

// ListPendentesNaoProcessadas returns every unresolved attempt, including
// the ones that exhausted their retries, for operator visibility.
func ListPendentesNaoProcessadas(ctx context.Context) ([]PontuacaoPendente, error) {
	var rows []PontuacaoPendente
	err := config.GetLojaDB().WithContext(ctx).
		Where("processada = ?", false).
		Order("data_criacao asc").
		Find(&rows).Error
	return rows, err
}

// ResetTentativasPendente re-arms an exhausted attempt: tentativas goes back
// to zero so the next reconciliation pass picks the row up again.
func ResetTentativasPendente(ctx context.Context, numeroNota, cpfTelefone string) (int64, error) {
	res := config.GetLojaDB().WithContext(ctx).
		Model(&PontuacaoPendente{}).
		Where("numero_nota = ? AND cpf_telefone = ? AND processada = ?", numeroNota, cpfTelefone, false).
		Updates(map[string]interface{}{
			"tentativas":    0,
			"erro_mensagem": "",
		})
	return res.RowsAffected, res.Error
}

func truncateErro(msg string) string {
	runes := []rune(msg)
	if len(runes) <= ErroMensagemMaxLen {
		return msg
	}
	return string(runes[:ErroMensagemMaxLen])
}
