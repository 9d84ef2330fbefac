package config

import (
	"context"
	"log"
	"time"

	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	lojaDB *gorm.DB
	pdvDB  *gorm.DB
)

// GetLojaDB returns the application store connection (notas_usadas,
// pontuacao_pendente). Nil until ConnectLojaWithRetry succeeds.
func GetLojaDB() *gorm.DB {
	return lojaDB
}

// GetPDVDB returns the read-only point-of-sale connection. Nil until
// ConnectPDVWithRetry succeeds.
func GetPDVDB() *gorm.DB {
	return pdvDB
}

// ConnectLojaWithRetry connects the application store and sets the global.
// Call from main() AFTER the HTTP server is listening: the desktop shell
// polls the local URL while the databases come up.
func ConnectLojaWithRetry(ctx context.Context, cfg DatabaseConfig) {
	lojaDB = openWithRetry(ctx, cfg, "loja")
}

// ConnectPDVWithRetry connects the point-of-sale source and sets the global.
func ConnectPDVWithRetry(ctx context.Context, cfg DatabaseConfig) {
	pdvDB = openWithRetry(ctx, cfg, "pdv")
}

func openWithRetry(ctx context.Context, cfg DatabaseConfig, name string) *gorm.DB {
	var attempt int
	for {
		attempt++
		db, err := gorm.Open(sqlserver.Open(cfg.SQLServerDSN()), initConfig())
		if err == nil {
			if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
				if cfg.MaxOpenConns > 0 {
					sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
				}
				if cfg.MaxIdleConns >= 0 {
					sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
				}
				if cfg.ConnMaxLifetime > 0 {
					sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
				}
				if cfg.ConnMaxIdleTime > 0 {
					sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
				}
			}
			log.Printf("connected to %s database (attempt=%d)", name, attempt)
			return db
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect %s database (attempt=%d): %v; retrying in %s", name, attempt, err, sleep)
		select {
		case <-ctx.Done():
			log.Printf("giving up on %s database: %v", name, ctx.Err())
			return nil
		case <-time.After(sleep):
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
		TranslateError: true,
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
