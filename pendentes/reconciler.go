package pendentes

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sammi-sistemas/fidelimax-bridge/fidelimax"
	"github.com/sammi-sistemas/fidelimax-bridge/models"
	"github.com/sammi-sistemas/fidelimax-bridge/utils"
)

// Store is what the reconciler needs from the durable pending/ledger
// tables. The production implementation delegates to the models package;
// tests swap in fakes.
type Store interface {
	ListParaRetry(ctx context.Context, maxTentativas int) ([]models.PontuacaoPendente, error)
	MarcarProcessada(ctx context.Context, numeroNota, cpfTelefone string) (int64, error)
	RegistrarFalha(ctx context.Context, numeroNota, cpfTelefone string, valor decimal.Decimal, erroMensagem, payloadJSON string) error
	RegistrarNotaUsada(ctx context.Context, numeroNota string, valor decimal.Decimal, cpfTelefone string) (bool, error)
}

// Scorer is the single-call upstream operation (fidelimax.Client in
// production).
type Scorer interface {
	PontuaConsumidor(ctx context.Context, req fidelimax.PontuacaoRequest) (*fidelimax.PontuacaoResultado, error)
}

// Reconciler retries every eligible pending attempt against the upstream
// API. The timer loop and the manual endpoint share this one
// implementation so their retry semantics cannot drift apart.
type Reconciler struct {
	store         Store
	scorer        Scorer
	maxTentativas int
	logger        *logrus.Logger

	mu sync.Mutex
}

func NewReconciler(store Store, scorer Scorer, maxTentativas int, logger *logrus.Logger) *Reconciler {
	if maxTentativas <= 0 {
		maxTentativas = 5
	}
	return &Reconciler{
		store:         store,
		scorer:        scorer,
		maxTentativas: maxTentativas,
		logger:        logger,
	}
}

// ProcessarPendentes runs one full pass, serializing behind any pass
// already in flight. Used by the manual endpoint, which must return a
// summary even when it had to wait for the timer's pass to finish.
func (r *Reconciler) ProcessarPendentes(ctx context.Context) (*ProcessamentoResumo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx)
}

// TryProcessarPendentes runs one pass unless another is in flight, in
// which case it reports skipped. Used by the timer so overlapping ticks
// never stack up.
func (r *Reconciler) TryProcessarPendentes(ctx context.Context) (*ProcessamentoResumo, bool, error) {
	if !r.mu.TryLock() {
		return nil, false, nil
	}
	defer r.mu.Unlock()
	resumo, err := r.run(ctx)
	return resumo, true, err
}

func (r *Reconciler) run(ctx context.Context) (*ProcessamentoResumo, error) {
	rows, err := r.store.ListParaRetry(ctx, r.maxTentativas)
	if err != nil {
		return nil, err
	}

	resumo := &ProcessamentoResumo{Total: len(rows)}
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		resultado := r.processarRow(ctx, row)
		resumo.Resultados = append(resumo.Resultados, resultado)
		if resultado.Status == ResultadoProcessada {
			resumo.Processadas++
		} else {
			resumo.Falhas++
		}
	}

	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"module":      "pendentes",
			"total":       resumo.Total,
			"processadas": resumo.Processadas,
			"falhas":      resumo.Falhas,
		}).Info("processamento de pendentes concluído")
	}
	return resumo, nil
}

// processarRow retries one attempt. Every failure path ends in a store
// write, never in an error that could abort the batch.
func (r *Reconciler) processarRow(ctx context.Context, row models.PontuacaoPendente) ResultadoPendente {
	resultado := ResultadoPendente{
		NumeroNota:  row.NumeroNota,
		CpfTelefone: row.CpfTelefone,
	}

	req := r.decodeSnapshot(row)
	res, err := r.scorer.PontuaConsumidor(ctx, req)

	if err != nil || !res.Sucesso() {
		msg := ""
		if err != nil {
			msg = err.Error()
		} else {
			msg = res.Falha()
		}
		if serr := r.store.RegistrarFalha(ctx, row.NumeroNota, row.CpfTelefone, row.Valor, msg, row.PayloadJSON); serr != nil && r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"module":      "pendentes",
				"numero_nota": row.NumeroNota,
			}).Errorf("falha ao registrar tentativa: %v", serr)
		}
		resultado.Status = ResultadoFalha
		resultado.Mensagem = msg
		return resultado
	}

	// The points went through: the ledger write and the resolve are both
	// best-effort from here on. The upstream award already happened and
	// must not be re-queued because of a local write error.
	if _, lerr := r.store.RegistrarNotaUsada(ctx, row.NumeroNota, row.Valor, row.CpfTelefone); lerr != nil && r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"module":      "pendentes",
			"numero_nota": row.NumeroNota,
		}).Errorf("pontuação aplicada mas nota não registrada: %v", lerr)
	}
	if _, merr := r.store.MarcarProcessada(ctx, row.NumeroNota, row.CpfTelefone); merr != nil && r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"module":      "pendentes",
			"numero_nota": row.NumeroNota,
		}).Errorf("pontuação aplicada mas pendência não resolvida: %v", merr)
	}

	resultado.Status = ResultadoProcessada
	resultado.Mensagem = res.Mensagem
	return resultado
}

// decodeSnapshot reconstructs the original scoring request. A missing or
// corrupt snapshot falls back to the row's own columns so old rows stay
// retryable.
func (r *Reconciler) decodeSnapshot(row models.PontuacaoPendente) fidelimax.PontuacaoRequest {
	if row.PayloadJSON != "" {
		var req fidelimax.PontuacaoRequest
		if err := utils.UnmarshalFromJSON([]byte(row.PayloadJSON), &req); err == nil && req.CpfTelefone() != "" {
			return req
		}
	}

	req := fidelimax.PontuacaoRequest{
		PontuacaoReais: row.Valor,
		NumeroNota:     row.NumeroNota,
		Verificador:    row.NumeroNota,
	}
	// cpf_telefone holds either identity; an 11-digit value is treated as
	// a CPF, which misclassifies 11-digit mobile numbers. Only rows written
	// before payload snapshots existed hit this branch.
	if len(strings.TrimSpace(row.CpfTelefone)) == 11 {
		req.Cpf = row.CpfTelefone
	} else {
		req.Telefone = row.CpfTelefone
	}
	return req
}

// dbStore is the production Store backed by the loja database.
type dbStore struct{}

func NewDBStore() Store {
	return dbStore{}
}

func (dbStore) ListParaRetry(ctx context.Context, maxTentativas int) ([]models.PontuacaoPendente, error) {
	return models.ListPendentesParaRetry(ctx, maxTentativas)
}

func (dbStore) MarcarProcessada(ctx context.Context, numeroNota, cpfTelefone string) (int64, error) {
	return models.MarcarPendenteProcessada(ctx, numeroNota, cpfTelefone)
}

func (dbStore) RegistrarFalha(ctx context.Context, numeroNota, cpfTelefone string, valor decimal.Decimal, erroMensagem, payloadJSON string) error {
	return models.UpsertPontuacaoPendente(ctx, numeroNota, cpfTelefone, valor, erroMensagem, payloadJSON)
}

func (dbStore) RegistrarNotaUsada(ctx context.Context, numeroNota string, valor decimal.Decimal, cpfTelefone string) (bool, error) {
	return models.RecordNotaUsada(ctx, numeroNota, valor, cpfTelefone)
}
