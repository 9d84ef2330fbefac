package pendentes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sammi-sistemas/fidelimax-bridge/models"
)

type CheckNotaPendenteRequest struct {
	NumeroNota  string `json:"numero_nota" binding:"required"`
	CpfTelefone string `json:"cpf_telefone" binding:"required,cpftelefone"`
}

type ConfirmarSubstituirRequest struct {
	NumeroNota string `json:"numero_nota" binding:"required"`
}

type MarcarProcessadaRequest struct {
	NumeroNota  string `json:"numero_nota" binding:"required"`
	CpfTelefone string `json:"cpf_telefone" binding:"required,cpftelefone"`
}

type ResetarPendenteRequest struct {
	NumeroNota  string `json:"numero_nota" binding:"required"`
	CpfTelefone string `json:"cpf_telefone" binding:"required,cpftelefone"`
}

type SaveNotaUsadaRequest struct {
	NumeroNota  string  `json:"numero_nota" binding:"required"`
	Valor       float64 `json:"valor"`
	CpfTelefone string  `json:"cpf_telefone"`
}

// NotaPendenteInfo is the conflict payload shown to the operator before a
// confirm/cancel decision. Field names follow the UI contract
// (cpf_telefone_anterior is the competing identity).
type NotaPendenteInfo struct {
	NumeroNota          string  `json:"numero_nota"`
	CpfTelefoneAnterior string  `json:"cpf_telefone_anterior"`
	Valor               float64 `json:"valor"`
	Tentativas          int     `json:"tentativas"`
	DataCriacao         string  `json:"data_criacao"`
}

// PendenteResponse is one pending attempt as listed to the operator.
type PendenteResponse struct {
	ID              int     `json:"id"`
	NumeroNota      string  `json:"numero_nota"`
	CpfTelefone     string  `json:"cpf_telefone"`
	Valor           float64 `json:"valor"`
	ErroMensagem    string  `json:"erro_mensagem"`
	Tentativas      int     `json:"tentativas"`
	DataCriacao     string  `json:"data_criacao"`
	UltimaTentativa *string `json:"ultima_tentativa"`
}

const (
	ResultadoProcessada = "processada"
	ResultadoFalha      = "falha"
)

// ResultadoPendente is the per-row outcome of one reconciliation pass.
type ResultadoPendente struct {
	NumeroNota  string `json:"numero_nota"`
	CpfTelefone string `json:"cpf_telefone"`
	Status      string `json:"status"`
	Mensagem    string `json:"mensagem,omitempty"`
}

// ProcessamentoResumo summarizes one reconciliation pass.
type ProcessamentoResumo struct {
	Total       int                 `json:"total"`
	Processadas int                 `json:"processadas"`
	Falhas      int                 `json:"falhas"`
	Resultados  []ResultadoPendente `json:"resultados"`
}

// ValidateCpfTelefone accepts the normalized document-or-phone identity:
// digits only, CPF (11) or phone with DDD (10-11), tolerating the
// 14-digit CNPJ some stores use.
func ValidateCpfTelefone(fl validator.FieldLevel) bool {
	return IsCpfTelefone(fl.Field().String())
}

func IsCpfTelefone(s string) bool {
	if len(s) < 10 || len(s) > 14 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func toNotaPendenteInfo(row *models.PontuacaoPendente) *NotaPendenteInfo {
	return &NotaPendenteInfo{
		NumeroNota:          row.NumeroNota,
		CpfTelefoneAnterior: row.CpfTelefone,
		Valor:               row.Valor.InexactFloat64(),
		Tentativas:          row.Tentativas,
		DataCriacao:         row.DataCriacao.Format(time.RFC3339),
	}
}

func toPendenteResponse(row models.PontuacaoPendente) PendenteResponse {
	resp := PendenteResponse{
		ID:           row.ID,
		NumeroNota:   row.NumeroNota,
		CpfTelefone:  row.CpfTelefone,
		Valor:        row.Valor.InexactFloat64(),
		ErroMensagem: row.ErroMensagem,
		Tentativas:   row.Tentativas,
		DataCriacao:  row.DataCriacao.Format(time.RFC3339),
	}
	if row.UltimaTentativa != nil {
		s := row.UltimaTentativa.Format(time.RFC3339)
		resp.UltimaTentativa = &s
	}
	return resp
}
