package fidelimax

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sammi-sistemas/fidelimax-bridge/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.FidelimaxConfig{
		BaseURL:   baseURL,
		AuthToken: "token-de-teste",
		Timeout:   2 * time.Second,
	})
}

func TestPontuaConsumidor_BusinessSuccess(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("AuthToken")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"CodigoResposta":100,"Mensagem":"Pontuação realizada com sucesso"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	res, err := client.PontuaConsumidor(context.Background(), PontuacaoRequest{
		Cpf:            "12345678901",
		PontuacaoReais: decimal.NewFromFloat(37.9),
		NumeroNota:     "1001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Sucesso() {
		t.Fatalf("expected success, got %+v", res)
	}
	if gotPath != "/PontuaConsumidor" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotToken != "token-de-teste" {
		t.Fatalf("unexpected AuthToken header %q", gotToken)
	}
	if gotBody["cpf"] != "12345678901" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
	// pontuacao_reais must travel as a JSON number, never a string.
	if v, ok := gotBody["pontuacao_reais"].(float64); !ok || v != 37.9 {
		t.Fatalf("pontuacao_reais should be the number 37.9, got %v (%T)", gotBody["pontuacao_reais"], gotBody["pontuacao_reais"])
	}
	// Empty optional fields are omitted, not sent blank.
	for _, field := range []string{"telefone", "cartao", "tipo_compra", "verificador", "estorno"} {
		if _, present := gotBody[field]; present {
			t.Fatalf("field %q should be absent from the payload", field)
		}
	}
}

func TestPontuaConsumidor_HTTPOKWithBusinessFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"CodigoResposta":42,"Mensagem":"Consumidor não cadastrado"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).PontuaConsumidor(context.Background(), PontuacaoRequest{
		Telefone:       "1133334444",
		PontuacaoReais: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Sucesso() {
		t.Fatal("HTTP 200 with CodigoResposta != 100 is a failed score")
	}
	if res.Falha() != "Consumidor não cadastrado" {
		t.Fatalf("unexpected failure message %q", res.Falha())
	}
}

func TestPontuaConsumidor_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).PontuaConsumidor(context.Background(), PontuacaoRequest{
		Cpf:            "12345678901",
		PontuacaoReais: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("an HTTP error status is not a transport error: %v", err)
	}
	if res.Sucesso() {
		t.Fatal("HTTP 500 must not classify as success")
	}
	if res.Falha() == "" {
		t.Fatal("expected a failure description for the pending store")
	}
}

func TestPontuaConsumidor_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	if _, err := newTestClient(srv.URL).PontuaConsumidor(context.Background(), PontuacaoRequest{
		Cpf:            "12345678901",
		PontuacaoReais: decimal.NewFromInt(10),
	}); err == nil {
		t.Fatal("expected a transport error")
	}
}

func TestCall_ForwardsRawBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"CodigoResposta":7}`))
	}))
	defer srv.Close()

	status, body, err := newTestClient(srv.URL).Call(context.Background(), "ConsultaConsumidor", map[string]string{"cpf": "123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", status)
	}
	if string(body) != `{"CodigoResposta":7}` {
		t.Fatalf("unexpected body %s", body)
	}
}
