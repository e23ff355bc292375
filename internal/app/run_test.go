package app

import (
	"bytes"
	"testing"
)

// TestRun_ServeCommand_FailsWithoutDB はserveコマンドがDB接続を試みることを検証する。
// テスト環境ではDB接続先が存在しないため、エラーが返る。
func TestRun_ServeCommand_FailsWithoutDB(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) without a reachable DB should return an error")
	}
}

// TestRun_WorkerCommand_FailsWithoutDB はworkerコマンドがDB接続を試みることを検証する。
func TestRun_WorkerCommand_FailsWithoutDB(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"worker"})
	if err == nil {
		t.Fatal("Run(worker) without a reachable DB should return an error")
	}
}

// TestRun_MigrateCommand_FailsWithoutDB はmigrateコマンドがDB接続を試みることを検証する。
func TestRun_MigrateCommand_FailsWithoutDB(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil {
		t.Fatal("Run(migrate) without a reachable DB should return an error")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DISCORD_CLIENT_ID", "")
	t.Setenv("DISCORD_CLIENT_SECRET", "")
	t.Setenv("DISCORD_REDIRECT_URL", "")
	t.Setenv("DISCORD_GUILD_ID", "")
	t.Setenv("BASE_URL", "")
	t.Setenv("FRONTEND_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

// TestRun_HealthcheckCommand_FailsWithoutServer はhealthcheckコマンドが
// ローカルサーバー不在時にエラーを返すことを検証する。
func TestRun_HealthcheckCommand_FailsWithoutServer(t *testing.T) {
	t.Setenv("SERVER_PORT", "1") // 接続できないポート

	var buf bytes.Buffer
	err := Run(&buf, []string{"healthcheck"})
	if err == nil {
		t.Fatal("Run(healthcheck) without a running server should return an error")
	}
}
