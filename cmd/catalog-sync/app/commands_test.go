package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/versions"
)

// These tests share the global viper instance and therefore do not run in parallel.

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a memory-backed configuration pointing the rp-main
// integration at baseURL and returns its path
func writeConfig(t *testing.T, baseURL, token string) string {
	t.Helper()
	dir := t.TempDir()

	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte(token), 0o600))

	cfg := fmt.Sprintf(`
storage:
  type: memory
integrations:
  - id: rp-main
    provider: rp
    baseURL: %s
    tokenFile: %s
syncConfigurations:
  - id: nightly-rp
    sourceIntegrationId: rp-main
    storeIds: [7, 8]
`, baseURL, tokenFile)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func rpServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"Produtos":[
			{"CodigoProduto":1,"PrecoVenda":"10,00","PrecoPromocional":"8,50","QuantidadeLimite":2},
			{"CodigoProduto":2,"PrecoVenda":"5,00","PrecoPromocional":"5,00"}
		]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versions.Version, info.Version)
}

func TestRunCmd(t *testing.T) {
	srv := rpServer(t)
	path := writeConfig(t, srv.URL, "secret")

	tests := []struct {
		name    string
		args    []string
		wantErr string
		wantOut []string
	}{
		{
			name:    "configured run",
			args:    []string{"run", "--config", path, "--sync-config", "nightly-rp"},
			wantOut: []string{"synced", "completed (2/2 stores, 4 sent, 0 errors"},
		},
		{
			name:    "ad hoc run",
			args:    []string{"run", "--config", path, "--integration", "rp-main", "--store", "9", "--batch-size", "2"},
			wantOut: []string{"completed (1/1 stores, 2 sent"},
		},
		{
			name:    "unknown sync configuration",
			args:    []string{"run", "--config", path, "--sync-config", "weekly"},
			wantErr: `sync configuration "weekly" not found`,
		},
		{
			name:    "ad hoc without stores",
			args:    []string{"run", "--config", path, "--integration", "rp-main"},
			wantErr: "at least one --store",
		},
		{
			name:    "mutually exclusive selectors",
			args:    []string{"run", "--config", path, "--integration", "rp-main", "--sync-config", "nightly-rp"},
			wantErr: "none of the others can be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err, out)
			for _, want := range tt.wantOut {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestRunCmd_AuthFailureExitsNonZero(t *testing.T) {
	srv := rpServer(t)
	path := writeConfig(t, srv.URL, "expired")

	out, err := execute(t, "run", "--config", path, "--sync-config", "nightly-rp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finished failed")
	assert.Contains(t, out, "failed")
}

func TestExecutionsListCmd(t *testing.T) {
	path := writeConfig(t, "http://rp.invalid", "secret")

	out, err := execute(t, "executions", "list", "--config", path, "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = execute(t, "executions", "list", "--config", path, "--format", "yaml")
	require.EqualError(t, err, `unknown format "yaml"`)
}

func TestMigrateCmd_RequiresDatabase(t *testing.T) {
	path := writeConfig(t, "http://rp.invalid", "secret")

	_, err := execute(t, "migrate", "up", "--config", path, "--yes")
	require.EqualError(t, err, "database configuration is required")
}

func TestDescribeSteps(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "all migrations", describeSteps(0))
	assert.Equal(t, "1 migration", describeSteps(1))
	assert.Equal(t, "3 migrations", describeSteps(3))
}

func TestSyncConfigurationFromFlags_Overrides(t *testing.T) {
	cfg := &config.Config{
		Integrations: []config.IntegrationConfig{{ID: "rp-main", Provider: config.ProviderRP}},
		SyncConfigurations: []config.SyncConfiguration{
			{ID: "nightly-rp", SourceIntegrationID: "rp-main", StoreIDs: []int64{1}, Options: config.SyncOptions{BatchSize: 4}},
		},
	}

	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--sync-config", "nightly-rp", "--force"}))

	sc, err := syncConfigurationFromFlags(cmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, "nightly-rp", sc.ID)
	assert.True(t, sc.Options.ForceSync)
	assert.Equal(t, 4, sc.Options.BatchSize)
	// the loaded configuration is left untouched
	assert.False(t, cfg.SyncConfigurations[0].Options.ForceSync)
}
