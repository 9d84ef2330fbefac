package pdv

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sammi-sistemas/fidelimax-bridge/config"
	"github.com/sammi-sistemas/fidelimax-bridge/models"
	"gorm.io/gorm"
)

// LastSaleUnusedHandler polls the PDV for its most recent sale and gates it
// through the ledger: a sale whose invoice already earned points is
// reported as "no new sale" so the UI clears any stale pre-filled amount.
func LastSaleUnusedHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		db := config.GetPDVDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"message": "Banco de dados do PDV indisponível",
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		sale, err := FetchLastSale(ctx, db, cfg.PDV.LastSaleQuery)
		if err != nil {
			config.LogError(logger, "pdv/handlers.go", "LastSaleUnusedHandler", "FetchLastSale", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Erro ao buscar última venda",
				"error":   err.Error(),
			})
			return
		}
		if sale == nil {
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Nenhuma venda encontrada",
			})
			return
		}

		numeroNota, hasNota := ExtractNumeroNota(sale)
		if hasNota {
			used, err := models.IsNotaUsada(ctx, numeroNota)
			if err != nil {
				config.LogError(logger, "pdv/handlers.go", "LastSaleUnusedHandler", "IsNotaUsada", numeroNota, err)
				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": "Erro ao verificar nota usada",
					"error":   err.Error(),
				})
				return
			}
			if used {
				c.JSON(http.StatusOK, gin.H{
					"success":      false,
					"already_used": true,
					"message":      fmt.Sprintf("A última nota (%s) já foi usada para pontuação", numeroNota),
				})
				return
			}
		}

		valor, _ := ExtractValor(sale)
		resp := gin.H{
			"success": true,
			"data": gin.H{
				"valor": valor.InexactFloat64(),
				"raw":   sale.Data,
			},
		}
		if hasNota {
			resp["numero_nota"] = numeroNota
		}
		c.JSON(http.StatusOK, resp)
	}
}

// TestConnectionHandler pings both databases so the operator can validate
// the configured profiles without restarting.
func TestConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		for name, db := range map[string]func() *gorm.DB{
			"loja": config.GetLojaDB,
			"pdv":  config.GetPDVDB,
		} {
			conn := db()
			if conn == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"success": false,
					"message": fmt.Sprintf("Banco %s ainda não conectado", name),
				})
				return
			}
			sqlDB, err := conn.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": fmt.Sprintf("Erro ao conectar ao banco %s", name),
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Conexões estabelecidas com sucesso",
		})
	}
}

// ConfigHandler exposes the active connection profiles with credentials
// stripped. Configuration is env-driven; changing it requires a restart.
func ConfigHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"configured":       cfg.PDV.LastSaleQuery != "",
			"loja":             cfg.LojaDB.MaskedDSN(),
			"pdv":              cfg.PDVDB.MaskedDSN(),
			"retry_interval_m": int(cfg.Retry.Interval.Minutes()),
		})
	}
}
