package fidelimax

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CodigoSucesso is the business-level success code of the Fidelimax API.
// An HTTP 200 carrying any other code is still a failed score.
const CodigoSucesso = 100

// PontuacaoRequest is the full scoring request. It doubles as the payload
// snapshot persisted with a pending attempt, so a retry replays the exact
// original request; unknown fields in a stored snapshot are ignored on read.
type PontuacaoRequest struct {
	Cpf            string          `json:"cpf,omitempty"`
	Telefone       string          `json:"telefone,omitempty"`
	PontuacaoReais decimal.Decimal `json:"pontuacao_reais"`
	NumeroNota     string          `json:"numero_nota,omitempty"`
	Cartao         string          `json:"cartao,omitempty"`
	TipoCompra     string          `json:"tipo_compra,omitempty"`
	Verificador    string          `json:"verificador,omitempty"`
	Estorno        *bool           `json:"estorno,omitempty"`
}

// CpfTelefone is the normalized customer identity of the request: the CPF
// when present, the phone otherwise.
func (r PontuacaoRequest) CpfTelefone() string {
	if r.Cpf != "" {
		return r.Cpf
	}
	return r.Telefone
}

// wirePayload builds the body PontuaConsumidor expects. pontuacao_reais
// must go out as a JSON number and optional fields must be absent, not
// empty, so the map is assembled by hand.
func (r PontuacaoRequest) wirePayload() map[string]any {
	payload := map[string]any{
		"pontuacao_reais": r.PontuacaoReais.InexactFloat64(),
	}
	if r.Cpf != "" {
		payload["cpf"] = r.Cpf
	}
	if r.Telefone != "" {
		payload["telefone"] = r.Telefone
	}
	if r.Cartao != "" {
		payload["cartao"] = r.Cartao
	}
	if r.TipoCompra != "" {
		payload["tipo_compra"] = r.TipoCompra
	}
	if r.Verificador != "" {
		payload["verificador"] = r.Verificador
	}
	if r.Estorno != nil {
		payload["estorno"] = *r.Estorno
	}
	return payload
}

// PontuacaoResultado is the classified outcome of one PontuaConsumidor
// call that reached the API. Transport-level failures never produce one.
type PontuacaoResultado struct {
	HTTPStatus     int
	CodigoResposta int
	Mensagem       string
	Body           json.RawMessage
}

// Sucesso requires both HTTP success and the business success code.
func (r *PontuacaoResultado) Sucesso() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300 && r.CodigoResposta == CodigoSucesso
}

// Falha describes the failure for the pending-store error column.
func (r *PontuacaoResultado) Falha() string {
	if r.Mensagem != "" {
		return r.Mensagem
	}
	return fmt.Sprintf("resposta inesperada da API Fidelimax (HTTP %d)", r.HTTPStatus)
}
