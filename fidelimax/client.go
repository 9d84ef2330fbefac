package fidelimax

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sammi-sistemas/fidelimax-bridge/config"
)

// Client talks to the Fidelimax integration API. It performs exactly one
// call per invocation; retry policy belongs to the callers (the immediate
// scoring path and the pending reconciler).
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

func NewClient(cfg config.FidelimaxConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: timeout},
	}
}

// Call posts the payload to one Fidelimax endpoint and returns the raw
// response. A non-nil error means the API was never reached (network,
// timeout); HTTP-level and business-level failures are the caller's call.
func (c *Client) Call(ctx context.Context, endpoint string, payload any) (int, json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(endpoint, "/"), bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("AuthToken", c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// PontuaConsumidor submits one score and classifies the outcome. The error
// return covers transport failures only; business failure lives in the
// resultado (see PontuacaoResultado.Sucesso).
func (c *Client) PontuaConsumidor(ctx context.Context, preq PontuacaoRequest) (*PontuacaoResultado, error) {
	status, body, err := c.Call(ctx, "PontuaConsumidor", preq.wirePayload())
	if err != nil {
		return nil, err
	}

	res := &PontuacaoResultado{HTTPStatus: status, Body: body}
	var parsed struct {
		CodigoResposta int    `json:"CodigoResposta"`
		Mensagem       string `json:"Mensagem"`
	}
	if uerr := json.Unmarshal(body, &parsed); uerr == nil {
		res.CodigoResposta = parsed.CodigoResposta
		res.Mensagem = parsed.Mensagem
	}
	return res, nil
}
