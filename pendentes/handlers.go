package pendentes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sammi-sistemas/fidelimax-bridge/config"
	"github.com/sammi-sistemas/fidelimax-bridge/fidelimax"
	"github.com/sammi-sistemas/fidelimax-bridge/models"
	"github.com/sammi-sistemas/fidelimax-bridge/utils"
)

// PontuarClienteHandler submits one score to the Fidelimax API. Any
// upstream failure (transport, HTTP, or business code) enqueues a pending
// attempt keyed by the invoice so the reconciler retries it, and the
// operator is told the retry will happen automatically.
func PontuarClienteHandler(scorer Scorer) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req fidelimax.PontuacaoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Requisição inválida"})
			return
		}
		if !req.PontuacaoReais.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pontuacao_reais deve ser maior que zero"})
			return
		}
		if req.CpfTelefone() == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Informe cpf ou telefone"})
			return
		}

		ctx := c.Request.Context()
		res, err := scorer.PontuaConsumidor(ctx, req)
		if err == nil && res.Sucesso() {
			c.Data(http.StatusOK, "application/json", res.Body)
			return
		}

		msg := ""
		if err != nil {
			msg = err.Error()
		} else {
			msg = res.Falha()
		}
		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		config.LogError(logger, "pendentes/handlers.go", "PontuarClienteHandler", "PontuaConsumidor", map[string]string{
			"cpf_telefone":   req.CpfTelefone(),
			"correlation_id": cid,
		}, errors.New(msg))

		numeroNota := req.NumeroNota
		if numeroNota == "" {
			numeroNota = req.Verificador
		}
		if numeroNota == "" {
			// No invoice key to queue under: the operator has to retry by
			// hand once the API is back.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":        "Erro na API Fidelimax",
				"user_message": msg,
			})
			return
		}

		payloadJSON, _ := utils.MarshalToJSON(req)
		if uerr := models.UpsertPontuacaoPendente(ctx, numeroNota, req.CpfTelefone(), req.PontuacaoReais, msg, payloadJSON); uerr != nil {
			config.LogError(logger, "pendentes/handlers.go", "PontuarClienteHandler", "UpsertPontuacaoPendente", numeroNota, uerr)
			c.JSON(http.StatusBadGateway, gin.H{
				"error":           "Erro na API Fidelimax",
				"saved_for_retry": false,
				"user_message":    msg,
			})
			return
		}

		c.JSON(http.StatusBadGateway, gin.H{
			"error":           "Erro na API Fidelimax",
			"saved_for_retry": true,
			"user_message":    "Não foi possível pontuar agora. A pontuação foi salva e será reprocessada automaticamente.",
		})
	}
}

// CheckNotaPendenteHandler surfaces a conflict: an unresolved attempt for
// the same invoice under a different customer. The caller must get an
// explicit operator decision before proceeding.
func CheckNotaPendenteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckNotaPendenteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "numero_nota e cpf_telefone são obrigatórios"})
			return
		}

		row, err := models.FindConflitoPendente(c.Request.Context(), req.NumeroNota, req.CpfTelefone)
		if err != nil {
			config.LogError(config.GetLogger(), "pendentes/handlers.go", "CheckNotaPendenteHandler", "FindConflitoPendente", req.NumeroNota, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro ao verificar pendência"})
			return
		}

		if row == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "conflito": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"conflito":      true,
			"nota_pendente": toNotaPendenteInfo(row),
		})
	}
}

// ConfirmarSubstituirPendenteHandler clears every unresolved attempt for
// the invoice after the operator confirmed replacing the previous customer.
func ConfirmarSubstituirPendenteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfirmarSubstituirRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "numero_nota é obrigatório"})
			return
		}

		removidas, err := models.DeletePendentesNaoProcessadas(c.Request.Context(), req.NumeroNota)
		if err != nil {
			config.LogError(config.GetLogger(), "pendentes/handlers.go", "ConfirmarSubstituirPendenteHandler", "DeletePendentesNaoProcessadas", req.NumeroNota, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro ao substituir pendência"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "removidas": removidas})
	}
}

// MarcarPendenteProcessadaHandler resolves the attempt for the exact
// invoice+customer pair. No-op when none exists; the UI calls this
// unconditionally after every successful score.
func MarcarPendenteProcessadaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MarcarProcessadaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "numero_nota e cpf_telefone são obrigatórios"})
			return
		}

		atualizadas, err := models.MarcarPendenteProcessada(c.Request.Context(), req.NumeroNota, req.CpfTelefone)
		if err != nil {
			config.LogError(config.GetLogger(), "pendentes/handlers.go", "MarcarPendenteProcessadaHandler", "MarcarPendenteProcessada", req.NumeroNota, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro ao marcar pendência"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "atualizadas": atualizadas})
	}
}

// PontuacoesPendentesHandler lists every unresolved attempt, including the
// ones past the retry ceiling, for the operator modal.
func PontuacoesPendentesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.ListPendentesNaoProcessadas(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "pendentes/handlers.go", "PontuacoesPendentesHandler", "ListPendentesNaoProcessadas", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro ao listar pendências"})
			return
		}

		data := make([]PendenteResponse, 0, len(rows))
		for _, row := range rows {
			data = append(data, toPendenteResponse(row))
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"count":   len(data),
			"data":    data,
		})
	}
}

// ProcessarPendentesHandler triggers one reconciliation pass on demand and
// returns its summary, waiting for an in-flight pass first.
func ProcessarPendentesHandler(rec *Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		resumo, err := rec.ProcessarPendentes(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "pendentes/handlers.go", "ProcessarPendentesHandler", "ProcessarPendentes", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro ao processar pendências"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"total":       resumo.Total,
			"processadas": resumo.Processadas,
			"falhas":      resumo.Falhas,
			"resultados":  resumo.Resultados,
		})
	}
}

// SaveNotaUsadaHandler records the invoice in the ledger. Idempotent:
// a duplicate reports already_exists without touching the first write.
func SaveNotaUsadaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SaveNotaUsadaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "numero_nota é obrigatório"})
			return
		}

		alreadyExists, err := models.RecordNotaUsada(c.Request.Context(), req.NumeroNota, decimal.NewFromFloat(req.Valor), req.CpfTelefone)
		if err != nil {
			config.LogError(config.GetLogger(), "pendentes/handlers.go", "SaveNotaUsadaHandler", "RecordNotaUsada", req.NumeroNota, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro ao salvar nota usada"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "already_exists": alreadyExists})
	}
}

// ResetarPendenteHandler re-arms an attempt that exhausted its retries.
// The row keeps its history except tentativas, which restarts from zero.
func ResetarPendenteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResetarPendenteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "numero_nota e cpf_telefone são obrigatórios"})
			return
		}

		atualizadas, err := models.ResetTentativasPendente(c.Request.Context(), req.NumeroNota, req.CpfTelefone)
		if err != nil {
			config.LogError(config.GetLogger(), "pendentes/handlers.go", "ResetarPendenteHandler", "ResetTentativasPendente", req.NumeroNota, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro ao resetar pendência"})
			return
		}
		if atualizadas == 0 {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Nenhuma pendência encontrada"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "atualizadas": atualizadas})
	}
}
