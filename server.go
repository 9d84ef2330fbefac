package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sammi-sistemas/fidelimax-bridge/config"
	"github.com/sammi-sistemas/fidelimax-bridge/fidelimax"
	"github.com/sammi-sistemas/fidelimax-bridge/models"
	"github.com/sammi-sistemas/fidelimax-bridge/pdv"
	"github.com/sammi-sistemas/fidelimax-bridge/pendentes"
	"github.com/sammi-sistemas/fidelimax-bridge/proxy"
	"github.com/sammi-sistemas/fidelimax-bridge/utils"
)

func main() {
	logger := config.GetLogger()
	cfg := config.Load()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("cpftelefone", pendentes.ValidateCpfTelefone)
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Store-backed routes are unavailable until the loja connection
		// comes up; the desktop shell retries while this returns 503.
		if strings.HasPrefix(c.Request.URL.Path, "/api/sql/") && config.GetLojaDB() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"message": "Banco de dados ainda não conectado",
			})
			return
		}
		c.Next()
	})

	// The UI runs inside a local desktop shell; the proxy exists exactly so
	// the browser side never deals with CORS or the auth token.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "x-correlation-id")
	r.Use(cors.New(corsConfig))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	client := fidelimax.NewClient(cfg.Fidelimax)
	rec := pendentes.NewReconciler(pendentes.NewDBStore(), client, cfg.Retry.MaxTentativas, logger)

	api := r.Group("/api")
	api.POST("/buscar-cliente", proxy.BuscarClienteHandler(client))
	api.POST("/buscar-pontos", proxy.BuscarPontosHandler(client))
	api.POST("/cadastrar-cliente", proxy.CadastrarClienteHandler(client))
	api.POST("/atualizar-cliente", proxy.AtualizarClienteHandler(client))
	api.POST("/dados-cliente", proxy.DadosClienteHandler(client))
	api.POST("/pontuar-cliente", pendentes.PontuarClienteHandler(client))

	sql := api.Group("/sql")
	sql.GET("/last-sale-unused", pdv.LastSaleUnusedHandler(cfg))
	sql.GET("/config", pdv.ConfigHandler(cfg))
	sql.POST("/test", pdv.TestConnectionHandler())
	sql.POST("/check-nota-pendente", pendentes.CheckNotaPendenteHandler())
	sql.POST("/confirmar-substituir-pendente", pendentes.ConfirmarSubstituirPendenteHandler())
	sql.POST("/marcar-pendente-processada", pendentes.MarcarPendenteProcessadaHandler())
	sql.GET("/pontuacoes-pendentes", pendentes.PontuacoesPendentesHandler())
	sql.POST("/processar-pendentes", pendentes.ProcessarPendentesHandler(rec))
	sql.POST("/save-nota-usada", pendentes.SaveNotaUsadaHandler())
	sql.POST("/resetar-pendente", pendentes.ResetarPendenteHandler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Infof("servidor ouvindo em http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.LogError(logger, "server.go", "main", "ListenAndServe", nil, err)
			stopSignals()
		}
	}()

	// Connect the databases AFTER the server is listening: the desktop
	// shell polls the local URL while SQL Server comes up.
	go func() {
		config.ConnectLojaWithRetry(sigCtx, cfg.LojaDB)
		if config.GetLojaDB() == nil {
			return
		}
		if err := models.MigrateTable(); err != nil {
			config.LogError(logger, "server.go", "main", "MigrateTable", nil, err)
		}
	}()
	go config.ConnectPDVWithRetry(sigCtx, cfg.PDVDB)

	go runPendentesScheduler(sigCtx, cfg.Retry, rec, logger)

	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "server.go", "main", "Shutdown", nil, err)
	}
}
