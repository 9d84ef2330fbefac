// Package proxy exposes the stateless pass-through routes to the Fidelimax
// API. These exist only to keep the auth token and CORS handling out of the
// browser; no retry or dedup semantics live here.
package proxy

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sammi-sistemas/fidelimax-bridge/config"
	"github.com/sammi-sistemas/fidelimax-bridge/fidelimax"
)

type consultaRequest struct {
	Cpf      string `json:"cpf,omitempty"`
	Telefone string `json:"telefone,omitempty"`
}

type cadastroRequest struct {
	Nome       string `json:"nome,omitempty"`
	Cpf        string `json:"cpf,omitempty"`
	Sexo       string `json:"sexo,omitempty"`
	Nascimento string `json:"nascimento,omitempty"`
	Email      string `json:"email,omitempty"`
	Telefone   string `json:"telefone,omitempty"`
}

// BuscarClienteHandler forwards a customer lookup by document or phone.
func BuscarClienteHandler(client *fidelimax.Client) gin.HandlerFunc {
	return forward[consultaRequest](client, "ConsultaConsumidor")
}

// BuscarPontosHandler forwards a points-balance lookup.
func BuscarPontosHandler(client *fidelimax.Client) gin.HandlerFunc {
	return forward[consultaRequest](client, "RetornaSaldoPontos")
}

// DadosClienteHandler forwards the full-profile lookup.
func DadosClienteHandler(client *fidelimax.Client) gin.HandlerFunc {
	return forward[consultaRequest](client, "RetornaDadosCliente")
}

// CadastrarClienteHandler forwards a customer registration.
func CadastrarClienteHandler(client *fidelimax.Client) gin.HandlerFunc {
	return forward[cadastroRequest](client, "CadastrarConsumidor")
}

// AtualizarClienteHandler forwards a customer update.
func AtualizarClienteHandler(client *fidelimax.Client) gin.HandlerFunc {
	return forward[cadastroRequest](client, "AtualizarConsumidor")
}

func forward[T any](client *fidelimax.Client, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req T
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Requisição inválida"})
			return
		}

		status, body, err := client.Call(c.Request.Context(), endpoint, req)
		if err != nil {
			config.LogError(config.GetLogger(), "proxy/handlers.go", "forward", endpoint, nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Erro interno do servidor",
				"message": err.Error(),
			})
			return
		}
		if status < 200 || status >= 300 {
			c.JSON(status, gin.H{
				"error":   "Erro na API Fidelimax",
				"details": body,
			})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}
