package models

import (
	"github.com/sammi-sistemas/fidelimax-bridge/config"
)

// MigrateTable creates/updates the bridge tables on the loja store.
// AutoMigrate cannot express SQL Server filtered indexes, so the
// one-unresolved-row-per-pair constraint is applied with raw DDL.
func MigrateTable() error {
	db := config.GetLojaDB()
	if err := db.AutoMigrate(&NotaUsada{}, &PontuacaoPendente{}); err != nil {
		return err
	}

	return db.Exec(`
IF NOT EXISTS (
    SELECT 1 FROM sys.indexes
    WHERE name = 'uniq_pendente_aberta'
      AND object_id = OBJECT_ID('pontuacao_pendente')
)
CREATE UNIQUE INDEX uniq_pendente_aberta
    ON pontuacao_pendente (numero_nota, cpf_telefone)
    WHERE processada = 0`).Error
}
