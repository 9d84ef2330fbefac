package models

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sammi-sistemas/fidelimax-bridge/config"
)

// Integration coverage for the two durable tables. Requires docker and is
// opt-in:
//
//	INTEGRATION_TESTS=1 go test ./models/ -run TestIntegrationStore -v
//
// One SQL Server container is shared by all subtests; each subtest starts
// from empty tables.
func TestIntegrationStore(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run docker-backed tests")
	}

	port := startSQLServerContainer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	config.ConnectLojaWithRetry(ctx, config.DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     port,
		User:     "sa",
		Password: sqlServerPassword,
		Database: "master",
	})
	if config.GetLojaDB() == nil {
		t.Fatal("sql server container never became ready")
	}
	if err := MigrateTable(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cleanTables := func(t *testing.T) {
		t.Helper()
		db := config.GetLojaDB()
		if err := db.Exec("DELETE FROM pontuacao_pendente").Error; err != nil {
			t.Fatalf("clean pontuacao_pendente: %v", err)
		}
		if err := db.Exec("DELETE FROM notas_usadas").Error; err != nil {
			t.Fatalf("clean notas_usadas: %v", err)
		}
	}

	t.Run("ledger first writer wins", func(t *testing.T) {
		cleanTables(t)
		ctx := context.Background()

		already, err := RecordNotaUsada(ctx, "1001", decimal.NewFromFloat(50.00), "11999998888")
		if err != nil || already {
			t.Fatalf("first insert: already=%v err=%v", already, err)
		}
		already, err = RecordNotaUsada(ctx, "1001", decimal.NewFromFloat(99.99), "22888887777")
		if err != nil {
			t.Fatalf("second insert: %v", err)
		}
		if !already {
			t.Fatal("second insert must report already_exists")
		}

		used, err := IsNotaUsada(ctx, "1001")
		if err != nil || !used {
			t.Fatalf("IsNotaUsada: used=%v err=%v", used, err)
		}

		var row NotaUsada
		if err := config.GetLojaDB().Where("numero_nota = ?", "1001").First(&row).Error; err != nil {
			t.Fatalf("read back: %v", err)
		}
		if !row.Valor.Equal(decimal.NewFromFloat(50.00)) || row.CpfTelefone != "11999998888" {
			t.Fatalf("first write must be untouched, got %+v", row)
		}
	})

	t.Run("upsert keeps one row per open pair", func(t *testing.T) {
		cleanTables(t)
		ctx := context.Background()

		for i := 1; i <= 3; i++ {
			err := UpsertPontuacaoPendente(ctx, "2002", "11999998888", decimal.NewFromInt(30), fmt.Sprintf("falha %d", i), `{"numero_nota":"2002"}`)
			if err != nil {
				t.Fatalf("upsert %d: %v", i, err)
			}
		}

		rows, err := ListPendentesNaoProcessadas(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected a single open row, got %d", len(rows))
		}
		if rows[0].Tentativas != 3 {
			t.Fatalf("tentativas must equal the failure count, got %d", rows[0].Tentativas)
		}
		if rows[0].ErroMensagem != "falha 3" {
			t.Fatalf("error must be the latest one, got %q", rows[0].ErroMensagem)
		}
		if rows[0].UltimaTentativa == nil {
			t.Fatal("ultima_tentativa must be stamped")
		}
	})

	t.Run("different customer opens a second row", func(t *testing.T) {
		cleanTables(t)
		ctx := context.Background()

		if err := UpsertPontuacaoPendente(ctx, "3003", "11999998888", decimal.NewFromInt(10), "falha", ""); err != nil {
			t.Fatal(err)
		}
		if err := UpsertPontuacaoPendente(ctx, "3003", "22888887777", decimal.NewFromInt(10), "falha", ""); err != nil {
			t.Fatal(err)
		}

		rows, err := ListPendentesNaoProcessadas(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected two rows for two customers, got %d", len(rows))
		}

		// The second customer sees the first one's attempt as a conflict.
		conflito, err := FindConflitoPendente(ctx, "3003", "22888887777")
		if err != nil {
			t.Fatal(err)
		}
		if conflito == nil || conflito.CpfTelefone != "11999998888" {
			t.Fatalf("expected conflict with the first customer, got %+v", conflito)
		}
		// And symmetrically for the first customer.
		conflito, err = FindConflitoPendente(ctx, "3003", "11999998888")
		if err != nil {
			t.Fatal(err)
		}
		if conflito == nil || conflito.CpfTelefone != "22888887777" {
			t.Fatalf("expected the other customer's row, got %+v", conflito)
		}
	})

	t.Run("resolving frees the pair for a new attempt", func(t *testing.T) {
		cleanTables(t)
		ctx := context.Background()

		if err := UpsertPontuacaoPendente(ctx, "4004", "11999998888", decimal.NewFromInt(20), "falha", ""); err != nil {
			t.Fatal(err)
		}
		n, err := MarcarPendenteProcessada(ctx, "4004", "11999998888")
		if err != nil || n != 1 {
			t.Fatalf("resolve: n=%d err=%v", n, err)
		}
		// Resolving again is a no-op, not an error.
		n, err = MarcarPendenteProcessada(ctx, "4004", "11999998888")
		if err != nil || n != 0 {
			t.Fatalf("second resolve: n=%d err=%v", n, err)
		}

		// The filtered index only guards open rows, so a fresh failure for
		// the same pair starts a new cycle at tentativas=1.
		if err := UpsertPontuacaoPendente(ctx, "4004", "11999998888", decimal.NewFromInt(20), "nova falha", ""); err != nil {
			t.Fatal(err)
		}
		rows, err := ListPendentesNaoProcessadas(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 1 || rows[0].Tentativas != 1 {
			t.Fatalf("expected a fresh open row, got %+v", rows)
		}
	})

	t.Run("replace removes open attempts only", func(t *testing.T) {
		cleanTables(t)
		ctx := context.Background()

		if err := UpsertPontuacaoPendente(ctx, "5005", "11999998888", decimal.NewFromInt(10), "falha", ""); err != nil {
			t.Fatal(err)
		}
		if err := UpsertPontuacaoPendente(ctx, "5005", "22888887777", decimal.NewFromInt(10), "falha", ""); err != nil {
			t.Fatal(err)
		}
		if _, err := MarcarPendenteProcessada(ctx, "5005", "11999998888"); err != nil {
			t.Fatal(err)
		}

		removidas, err := DeletePendentesNaoProcessadas(ctx, "5005")
		if err != nil {
			t.Fatal(err)
		}
		if removidas != 1 {
			t.Fatalf("only the open row should be removed, got %d", removidas)
		}

		var count int64
		if err := config.GetLojaDB().Model(&PontuacaoPendente{}).Where("numero_nota = ?", "5005").Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Fatalf("the resolved row must survive as history, count=%d", count)
		}
	})

	t.Run("retry listing respects the ceiling", func(t *testing.T) {
		cleanTables(t)
		ctx := context.Background()
		db := config.GetLojaDB()

		if err := UpsertPontuacaoPendente(ctx, "6006", "11999998888", decimal.NewFromInt(10), "falha", ""); err != nil {
			t.Fatal(err)
		}
		if err := UpsertPontuacaoPendente(ctx, "6007", "11999998888", decimal.NewFromInt(10), "falha", ""); err != nil {
			t.Fatal(err)
		}
		if err := db.Model(&PontuacaoPendente{}).Where("numero_nota = ?", "6007").Update("tentativas", 5).Error; err != nil {
			t.Fatal(err)
		}

		rows, err := ListPendentesParaRetry(ctx, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 1 || rows[0].NumeroNota != "6006" {
			t.Fatalf("exhausted row must be excluded, got %+v", rows)
		}

		// Resetting re-arms the exhausted row.
		n, err := ResetTentativasPendente(ctx, "6007", "11999998888")
		if err != nil || n != 1 {
			t.Fatalf("reset: n=%d err=%v", n, err)
		}
		rows, err = ListPendentesParaRetry(ctx, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 2 {
			t.Fatalf("reset row must be retryable again, got %d rows", len(rows))
		}
	})

	t.Run("filtered index rejects a duplicate open pair", func(t *testing.T) {
		cleanTables(t)
		db := config.GetLojaDB()

		if err := db.Create(&PontuacaoPendente{NumeroNota: "7007", CpfTelefone: "11999998888", Tentativas: 1}).Error; err != nil {
			t.Fatal(err)
		}
		err := db.Create(&PontuacaoPendente{NumeroNota: "7007", CpfTelefone: "11999998888", Tentativas: 1}).Error
		if err == nil {
			t.Fatal("expected the filtered unique index to reject the insert")
		}
		if !IsDuplicateKeyErr(err) {
			t.Fatalf("violation must classify as duplicate key, got %v", err)
		}
	})
}

const sqlServerPassword = "Fideliza!Teste123"

// startSQLServerContainer starts a disposable SQL Server on a random host
// port and returns that port. The container is removed when the test ends.
func startSQLServerContainer(t *testing.T) int {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available")
	}

	id := dockerRun(t,
		"run", "-d",
		"-e", "ACCEPT_EULA=Y",
		"-e", "MSSQL_SA_PASSWORD="+sqlServerPassword,
		"-p", "127.0.0.1:0:1433",
		"mcr.microsoft.com/mssql/server:2022-latest",
	)
	t.Cleanup(func() { dockerRmForce(id) })

	port := dockerHostPort(t, id, "1433/tcp")

	// SQL Server takes a while on first boot; wait for its readiness
	// message before handing the port to the caller.
	deadline := time.Now().Add(2 * time.Minute)
	for {
		out, _ := exec.Command("docker", "logs", id).CombinedOutput()
		if strings.Contains(string(out), "Recovery is complete") {
			return port
		}
		if time.Now().After(deadline) {
			t.Fatalf("sql server container not ready, last logs:\n%s", tail(string(out), 2000))
		}
		time.Sleep(2 * time.Second)
	}
}

func dockerRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("docker %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

var hostPortRe = regexp.MustCompile(`:(\d+)\s*$`)

func dockerHostPort(t *testing.T, id, containerPort string) int {
	t.Helper()
	out := dockerRun(t, "port", id, containerPort)
	// "0.0.0.0:49153" or "127.0.0.1:49153"; take the first line.
	line := strings.SplitN(out, "\n", 2)[0]
	m := hostPortRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		t.Fatalf("cannot parse docker port output %q", out)
	}
	port, err := strconv.Atoi(m[1])
	if err != nil {
		t.Fatalf("cannot parse port from %q: %v", line, err)
	}
	return port
}

func dockerRmForce(id string) {
	_ = exec.Command("docker", "rm", "-f", id).Run()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
