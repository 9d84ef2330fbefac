package pendentes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sammi-sistemas/fidelimax-bridge/fidelimax"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubScorer struct {
	res *fidelimax.PontuacaoResultado
	err error
}

func (s stubScorer) PontuaConsumidor(ctx context.Context, req fidelimax.PontuacaoRequest) (*fidelimax.PontuacaoResultado, error) {
	return s.res, s.err
}

func postJSON(handler gin.HandlerFunc, body string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/t", handler)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/t", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestPontuarCliente_SuccessPassesUpstreamBodyThrough(t *testing.T) {
	upstream := `{"CodigoResposta":100,"Mensagem":"ok","SaldoAtual":120}`
	scorer := stubScorer{res: &fidelimax.PontuacaoResultado{
		HTTPStatus:     200,
		CodigoResposta: fidelimax.CodigoSucesso,
		Mensagem:       "ok",
		Body:           json.RawMessage(upstream),
	}}

	w := postJSON(PontuarClienteHandler(scorer), `{"cpf":"12345678901","pontuacao_reais":25.5,"numero_nota":"1001"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	// The UI reads the Fidelimax response as-is, extra fields included.
	if w.Body.String() != upstream {
		t.Fatalf("body must be the raw upstream response, got %s", w.Body)
	}
}

func TestPontuarCliente_RejectsInvalidRequests(t *testing.T) {
	scorer := stubScorer{res: &fidelimax.PontuacaoResultado{HTTPStatus: 200, CodigoResposta: fidelimax.CodigoSucesso}}
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"zero value", `{"cpf":"12345678901","pontuacao_reais":0}`},
		{"negative value", `{"cpf":"12345678901","pontuacao_reais":-5}`},
		{"no identity", `{"pontuacao_reais":10}`},
	}
	for _, tc := range cases {
		if w := postJSON(PontuarClienteHandler(scorer), tc.body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.name, w.Code, w.Body)
		}
	}
}

func TestPontuarCliente_FailureWithoutInvoiceKeyIsNotQueued(t *testing.T) {
	scorer := stubScorer{res: &fidelimax.PontuacaoResultado{
		HTTPStatus:     200,
		CodigoResposta: 42,
		Mensagem:       "Consumidor não encontrado",
	}}

	// No numero_nota and no verificador: nothing to queue the retry under.
	w := postJSON(PontuarClienteHandler(scorer), `{"cpf":"12345678901","pontuacao_reais":10}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, present := resp["saved_for_retry"]; present {
		t.Fatalf("saved_for_retry must be absent when nothing was queued: %s", w.Body)
	}
	if resp["user_message"] != "Consumidor não encontrado" {
		t.Fatalf("upstream message must reach the operator: %s", w.Body)
	}
}

func TestIsCpfTelefone(t *testing.T) {
	valid := []string{"12345678901", "1133334444", "11999998888", "12345678000190"}
	for _, s := range valid {
		if !IsCpfTelefone(s) {
			t.Errorf("%q should be accepted", s)
		}
	}
	invalid := []string{"", "123", "123456789012345", "119999988-8", "11 99999888", "abcdefghijk"}
	for _, s := range invalid {
		if IsCpfTelefone(s) {
			t.Errorf("%q should be rejected", s)
		}
	}
}
