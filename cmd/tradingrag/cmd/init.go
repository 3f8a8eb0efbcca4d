package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/russo2100/trading-analytics-rag/internal/config"
	"github.com/russo2100/trading-analytics-rag/internal/output"
	"github.com/russo2100/trading-analytics-rag/pkg/version"
)

// MCPServerConfig is one server entry in .mcp.json.
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig is the root of .mcp.json.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		force bool
		noMCP bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize tradingrag in a project directory",
		Long: `Initialize tradingrag in the project directory.

This:
  1. Writes .tradingrag.yaml with default settings
  2. Creates the data/ directory and the event database
  3. Registers 'tradingrag serve' in .mcp.json for MCP clients

Existing files are kept unless --force is given.`,
		Example: `  tradingrag init
  tradingrag init -C ~/bots/oil --no-mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force, noMCP)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing .tradingrag.yaml and .mcp.json entry")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "Do not write .mcp.json")

	return cmd
}

func runInit(cmd *cobra.Command, force, noMCP bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	cfgPath := filepath.Join(root, config.ProjectFileName)
	if fileExists(cfgPath) && !force {
		out.Statusf("ℹ️ ", "Keeping existing %s", config.ProjectFileName)
	} else {
		if err := config.NewConfig().WriteYAML(cfgPath); err != nil {
			return err
		}
		out.Statusf("📝", "Created %s", cfgPath)
	}

	a, err := openApp(root)
	if err != nil {
		return err
	}
	dbPath := a.cfg.Paths.Database
	if err := a.Close(); err != nil {
		return err
	}
	out.Statusf("🗄️ ", "Database: %s", dbPath)

	if !noMCP {
		if err := writeMCPConfig(out, root, force); err != nil {
			out.Warningf("Could not configure MCP: %v", err)
		}
	}

	out.Newline()
	out.Success("Project initialized")
	out.Status("📋", "Next steps:")
	out.Status("", "  1. tradingrag import events.jsonl")
	out.Status("", "  2. tradingrag import --sessions sessions.jsonl")
	out.Status("", "  3. tradingrag index")
	out.Status("", "  4. tradingrag ask \"What happened on the last trading day?\"")
	return nil
}

// writeMCPConfig adds a tradingrag entry to .mcp.json, keeping other servers.
func writeMCPConfig(out *output.Writer, root string, force bool) error {
	path := filepath.Join(root, ".mcp.json")

	existing := MCPConfig{MCPServers: make(map[string]MCPServerConfig)}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("failed to parse existing .mcp.json: %w", err)
		}
		if existing.MCPServers == nil {
			existing.MCPServers = make(map[string]MCPServerConfig)
		}
		if _, ok := existing.MCPServers[version.Name]; ok && !force {
			out.Status("ℹ️ ", "tradingrag already configured in .mcp.json")
			return nil
		}
	}

	binary, err := findBinary()
	if err != nil {
		return err
	}
	existing.MCPServers[version.Name] = MCPServerConfig{
		Type:    "stdio",
		Command: binary,
		Args:    []string{"serve"},
		Cwd:     root,
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal .mcp.json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write .mcp.json: %w", err)
	}
	out.Statusf("📝", "Created %s", path)
	return nil
}

// findBinary locates the running tradingrag executable.
func findBinary() (string, error) {
	if execPath, err := os.Executable(); err == nil {
		if real, err := filepath.EvalSymlinks(execPath); err == nil {
			return real, nil
		}
		return execPath, nil
	}
	path, err := exec.LookPath(version.Name)
	if err != nil {
		return "", fmt.Errorf("tradingrag not found in PATH: %w", err)
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
