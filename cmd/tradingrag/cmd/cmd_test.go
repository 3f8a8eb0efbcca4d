package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/russo2100/trading-analytics-rag/internal/config"
	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
	"github.com/russo2100/trading-analytics-rag/pkg/version"
)

const testEvents = `{"source":"logs","timestamp":"2026-01-30T10:15:00Z","embedding_text":"sleeping market detected, bot skipped entry and entered cooldown","canonical_form":{"type":"decision","action":"skip"}}
{"source":"eia","timestamp":"2026-01-29T15:30:00Z","embedding_text":"EIA weekly crude inventory draw of 2.1 million barrels","canonical_form":{"type":"report"}}
{"source":"logs","timestamp":"2026-01-31T09:00:00Z","embedding_text":"opened long position 2 lots after breakout","canonical_form":{"type":"trade","lots":2}}
not json
`

const testSessions = `{"session_id":"20260130_0900","first_timestamp":"2026-01-30T09:00:00Z","last_timestamp":"2026-01-30T18:00:00Z","total_cycles":120,"total_trades":0,"sleeping_market_cycles":80,"cooldown_cycles":10}
{"session_id":"20260131_0900","first_timestamp":"2026-01-31T09:00:00Z","total_cycles":100,"total_trades":3,"initial_lots":0,"final_lots":2,"final_pnl_pct":1.5}
`

// isolate keeps user config and API keys out of the test.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "TRADINGRAG_LLM_API_KEY",
		"TRADINGRAG_LLM_PROVIDER", "TRADINGRAG_LLM_BASE_URL", "TRADINGRAG_VECTOR_BACKEND",
		"TRADINGRAG_FULLTEXT_BACKEND", "TRADINGRAG_EMBEDDINGS_PROVIDER", "TRADINGRAG_CACHE_BACKEND"} {
		t.Setenv(k, "")
	}
	return t.TempDir()
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seedProject runs init, import and index in a fresh project.
func seedProject(t *testing.T) string {
	t.Helper()
	dir := isolate(t)

	_, err := runCLI(t, "-C", dir, "init", "--no-mcp")
	require.NoError(t, err)
	_, err = runCLI(t, "-C", dir, "import", writeFile(t, dir, "events.jsonl", testEvents))
	require.NoError(t, err)
	_, err = runCLI(t, "-C", dir, "import", "--sessions", writeFile(t, dir, "sessions.jsonl", testSessions))
	require.NoError(t, err)
	_, err = runCLI(t, "-C", dir, "index")
	require.NoError(t, err)
	return dir
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: the root command
	root := NewRootCmd()

	// When: listing subcommands
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	// Then: every workflow command is registered
	for _, want := range []string{"init", "import", "index", "retrieve", "ask", "chat", "sessions", "events", "serve", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestVersionCmd_Outputs(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tradingrag")
	assert.Contains(t, out, "commit")

	out, err = runCLI(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out, err = runCLI(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestInitCmd_CreatesProjectFiles(t *testing.T) {
	// Given: an empty directory
	dir := isolate(t)

	// When: running init
	out, err := runCLI(t, "-C", dir, "init")

	// Then: config, database and .mcp.json exist
	require.NoError(t, err)
	assert.Contains(t, out, "Project initialized")
	assert.FileExists(t, filepath.Join(dir, config.ProjectFileName))
	assert.FileExists(t, filepath.Join(dir, "data", "metadata.db"))

	data, err := os.ReadFile(filepath.Join(dir, ".mcp.json"))
	require.NoError(t, err)
	var mcpCfg MCPConfig
	require.NoError(t, json.Unmarshal(data, &mcpCfg))
	entry, ok := mcpCfg.MCPServers["tradingrag"]
	require.True(t, ok)
	assert.Equal(t, []string{"serve"}, entry.Args)
	assert.Equal(t, "stdio", entry.Type)
}

func TestInitCmd_KeepsExistingConfig(t *testing.T) {
	// Given: a project config with a custom top_k
	dir := isolate(t)
	cfg := config.NewConfig()
	cfg.Retrieval.DefaultTopK = 9
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, config.ProjectFileName)))

	// When: running init without --force
	out, err := runCLI(t, "-C", dir, "init", "--no-mcp")

	// Then: the config is untouched
	require.NoError(t, err)
	assert.Contains(t, out, "Keeping existing")
	loaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Retrieval.DefaultTopK)
	assert.NoFileExists(t, filepath.Join(dir, ".mcp.json"))
}

func TestImportCmd_ReportsSkippedLines(t *testing.T) {
	// Given: an initialized project
	dir := isolate(t)
	_, err := runCLI(t, "-C", dir, "init", "--no-mcp")
	require.NoError(t, err)

	// When: importing a file with one bad line
	out, err := runCLI(t, "-C", dir, "import", writeFile(t, dir, "events.jsonl", testEvents))

	// Then: valid events are saved and the bad line is reported
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 events from 4 lines")
	assert.Contains(t, out, "Skipped 1 invalid lines")
	assert.Contains(t, out, "line 4")
}

func TestImportCmd_MissingFile(t *testing.T) {
	dir := isolate(t)

	_, err := runCLI(t, "-C", dir, "import", filepath.Join(dir, "nope.jsonl"))

	require.Error(t, err)
}

func TestIndexCmd_BuildAndCheck(t *testing.T) {
	// Given: a project with imported events
	dir := isolate(t)
	_, err := runCLI(t, "-C", dir, "init", "--no-mcp")
	require.NoError(t, err)
	_, err = runCLI(t, "-C", dir, "import", writeFile(t, dir, "events.jsonl", testEvents))
	require.NoError(t, err)

	// When: checking before indexing
	_, err = runCLI(t, "-C", dir, "index", "--check")

	// Then: the index is stale
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index stale: 3 events stored, 0 vectors indexed")

	// When: building the index
	out, err := runCLI(t, "-C", dir, "index", "--no-color")

	// Then: all events are embedded and the check passes
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 3 events indexed")
	assert.FileExists(t, filepath.Join(dir, "data", "vectors.hnsw"))

	out, err = runCLI(t, "-C", dir, "index", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "event store integrity ok")
	assert.Contains(t, out, "index up to date (3 events)")
}

func TestEventsCmd_StructuredFilters(t *testing.T) {
	// Given: an indexed project with logs and eia events
	dir := seedProject(t)

	// When: listing one source
	out, err := runCLI(t, "-C", dir, "events", "--source", "eia")

	// Then: only that source is listed
	require.NoError(t, err)
	assert.Contains(t, out, "crude inventory draw")
	assert.NotContains(t, out, "sleeping market")

	// When: filtering by date, as JSON
	out, err = runCLI(t, "-C", dir, "events", "--since", "2026-01-30", "--json")
	require.NoError(t, err)
	var events []eventJSON
	require.NoError(t, json.Unmarshal([]byte(out), &events))

	// Then: freshest first, nothing before the cutoff
	require.Len(t, events, 2)
	assert.Contains(t, events[0].Text, "opened long position")
	assert.Contains(t, events[1].Text, "sleeping market")

	// When: requiring more authority than the bot logs carry
	out, err = runCLI(t, "-C", dir, "events", "--min-authority", "0.9")
	require.NoError(t, err)
	assert.Contains(t, out, "crude inventory draw")
	assert.NotContains(t, out, "opened long position")

	_, err = runCLI(t, "-C", dir, "events", "--since", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --since")
}

func TestRetrieveCmd_JSON(t *testing.T) {
	// Given: an indexed project
	dir := seedProject(t)

	// When: retrieving as JSON
	out, err := runCLI(t, "-C", dir, "retrieve", "sleeping market cooldown", "--json", "-k", "2")

	// Then: at most two results, including the sleeping-market decision
	require.NoError(t, err)
	var results []retrieveResultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)

	var found bool
	for _, r := range results {
		if strings.Contains(r.Content, "sleeping market") {
			found = true
		}
	}
	assert.True(t, found, "sleeping market event should be retrieved")
}

func TestRetrieveCmd_SourceFilterAndText(t *testing.T) {
	dir := seedProject(t)

	out, err := runCLI(t, "-C", dir, "retrieve", "crude inventory", "--source", "eia")

	require.NoError(t, err)
	assert.Contains(t, out, "1. ")
	assert.Contains(t, out, "eia |")
}

func TestRetrieveCmd_BadFilter(t *testing.T) {
	dir := isolate(t)

	_, err := runCLI(t, "-C", dir, "retrieve", "x", "--filter", "novalue")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "want key=value")
}

func TestSessionsCmd(t *testing.T) {
	dir := seedProject(t)

	// When: listing sessions
	out, err := runCLI(t, "-C", dir, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "Session 20260131_0900")
	assert.Contains(t, out, "Session 20260130_0900")

	// When: looking one up by date
	out, err = runCLI(t, "-C", dir, "sessions", "2026-01-30")
	require.NoError(t, err)
	assert.Contains(t, out, "sleeping market: 80")
	assert.NotContains(t, out, "20260131_0900")

	// When: the date has no session
	out, err = runCLI(t, "-C", dir, "sessions", "2025-12-25")
	require.NoError(t, err)
	assert.Contains(t, out, "No session found")
}

func TestAskCmd_WithoutAPIKey(t *testing.T) {
	// Given: the default openrouter provider and no key
	dir := seedProject(t)

	// When: asking
	_, err := runCLI(t, "-C", dir, "ask", "why no trades?")

	// Then: a missing key error with a suggestion
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeMissingAPIKey, ragerrors.GetCode(err))
	assert.NotEmpty(t, ragerrors.GetSuggestion(err))
}

func TestAskCmd_AgentAnswersThroughOllama(t *testing.T) {
	// Given: an indexed project and a fake Ollama that answers at once
	dir := seedProject(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{
				"role":    "assistant",
				"content": "Thought: the logs say it all\nFinal Answer: The market was sleeping.",
			},
		})
	}))
	defer srv.Close()
	t.Setenv("TRADINGRAG_LLM_PROVIDER", "ollama")
	t.Setenv("TRADINGRAG_LLM_BASE_URL", srv.URL)

	// When: asking with the agent
	out, err := runCLI(t, "-C", dir, "ask", "-v", "Why did the bot skip trading on 2026-01-30?")

	// Then: the final answer is printed along with the run summary
	require.NoError(t, err)
	assert.Contains(t, out, "The market was sleeping.")
	assert.Contains(t, out, "after 1 steps")
}

func TestConfigCmd_ShowAndPath(t *testing.T) {
	dir := isolate(t)

	out, err := runCLI(t, "-C", dir, "config", "show", "--json")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, filepath.Join(dir, "data", "metadata.db"), cfg.Paths.Database)

	out, err = runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath(), strings.TrimSpace(out))
}

func TestConfigCmd_InitBacksUpOnForce(t *testing.T) {
	isolate(t)
	path := config.GetUserConfigPath()

	out, err := runCLI(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user configuration")
	assert.FileExists(t, path)

	out, err = runCLI(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = runCLI(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
