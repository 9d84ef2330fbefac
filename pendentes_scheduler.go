package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sammi-sistemas/fidelimax-bridge/config"
	"github.com/sammi-sistemas/fidelimax-bridge/pendentes"
)

// runPendentesScheduler reprocesses pending awards on a fixed interval.
// The first pass is deferred so it does not compete with startup I/O, and
// a tick that fires while a pass is still running is skipped instead of
// stacking up. The loop only exits on shutdown; any per-pass error is
// logged and the next tick proceeds normally.
func runPendentesScheduler(ctx context.Context, cfg config.RetryConfig, rec *pendentes.Reconciler, logger *logrus.Logger) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	delay := cfg.InitialDelay
	if delay < 0 {
		delay = time.Minute
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runPendentesPass(ctx, rec, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runPendentesPass(ctx context.Context, rec *pendentes.Reconciler, logger *logrus.Logger) {
	if config.GetLojaDB() == nil {
		logger.Debug("banco ainda não conectado, ciclo de pendentes adiado")
		return
	}

	// One pass must finish well within the interval; a stuck upstream is
	// cut off here and each row lands back in the store as a failure.
	runCtx, cancel := context.WithTimeout(ctx, 4*time.Minute)
	defer cancel()

	_, ran, err := rec.TryProcessarPendentes(runCtx)
	if err != nil {
		config.LogError(logger, "pendentes_scheduler.go", "runPendentesPass", "TryProcessarPendentes", nil, err)
		return
	}
	if !ran {
		logger.Info("processamento de pendentes ainda em andamento, ciclo pulado")
	}
}
