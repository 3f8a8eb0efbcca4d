package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/russo2100/trading-analytics-rag/internal/config"
	"github.com/russo2100/trading-analytics-rag/internal/retrieval"
	"github.com/russo2100/trading-analytics-rag/internal/store"
	"github.com/russo2100/trading-analytics-rag/pkg/version"
)

// Tool limits.
const (
	DefaultTopK = 5
	MaxTopK     = 50
)

const sessionsResourceURI = "tradingrag://sessions"

// Retriever is satisfied by *retrieval.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, text string, topK int, filters map[string]string) ([]retrieval.Result, error)
}

// Agent is satisfied by *agent.Agent.
type Agent interface {
	Run(ctx context.Context, question string) string
}

// Answerer is satisfied by *generate.Generator.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Deps are the components behind the tools. Agent and Answerer are optional;
// ask reports an error for a mode whose component is missing.
type Deps struct {
	Retriever Retriever
	Sessions  store.SessionStore
	Agent     Agent
	Answerer  Answerer
}

// Server bridges MCP clients to the retrieval pipeline and the agent.
type Server struct {
	mcp    *mcp.Server
	deps   Deps
	config *config.Config
	logger *slog.Logger

	mu sync.RWMutex
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// RetrieveInput is the retrieve tool schema.
type RetrieveInput struct {
	Query  string `json:"query" jsonschema:"natural-language search over recorded trading events"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"number of results, default 5, max 50"`
	Source string `json:"source,omitempty" jsonschema:"only events from this source, e.g. logs or eia"`
}

// RetrieveOutput is the retrieve tool result.
type RetrieveOutput struct {
	Results []ResultOutput `json:"results" jsonschema:"ranked events"`
	Context string         `json:"context" jsonschema:"results rendered as numbered documents"`
}

// ResultOutput is one retrieved event.
type ResultOutput struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Source    string  `json:"source,omitempty"`
	Freshness string  `json:"freshness,omitempty"`
}

// AskInput is the ask tool schema.
type AskInput struct {
	Question string `json:"question" jsonschema:"question about the trading bot's behaviour"`
	Mode     string `json:"mode,omitempty" jsonschema:"agent (multi-step, default) or direct (single retrieval + answer)"`
}

// AskOutput is the ask tool result.
type AskOutput struct {
	Answer string `json:"answer"`
	Mode   string `json:"mode"`
}

// SessionInput is the session tool schema.
type SessionInput struct {
	Key string `json:"key,omitempty" jsonschema:"session id or date (2026-01-30 or 20260130); empty lists recent sessions"`
}

// SessionOutput is the session tool result.
type SessionOutput struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSummary is one session.
type SessionSummary struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	TotalCycles int     `json:"total_cycles"`
	TotalTrades int     `json:"total_trades"`
	FinalPnLPct float64 `json:"final_pnl_pct"`
	Summary     string  `json:"summary"`
}

var toolInfos = []ToolInfo{
	{
		Name:        "retrieve",
		Description: "Hybrid search (semantic + full-text, fused and reranked) over the trading bot's recorded events. Returns ranked events with source and date.",
	},
	{
		Name:        "ask",
		Description: "Answer a question about the trading bot's decisions. Mode 'agent' reasons over several tool calls; mode 'direct' answers from one retrieval.",
	},
	{
		Name:        "session",
		Description: "Trading session statistics by id or date. Empty key lists recent sessions.",
	},
}

// NewServer creates the server and registers tools.
func NewServer(deps Deps, cfg *config.Config) (*Server, error) {
	if deps.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		deps:   deps,
		config: cfg,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// SetDeps swaps components after the index is rebuilt. A nil Retriever or
// Sessions keeps the current one. Agent and Answerer are bound to the
// retriever they were built over, so they are always replaced, and a nil
// one leaves its ask mode unavailable. Replacing an agent drops its
// conversation history.
func (s *Server) SetDeps(deps Deps) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deps.Retriever != nil {
		s.deps.Retriever = deps.Retriever
	}
	if deps.Sessions != nil {
		s.deps.Sessions = deps.Sessions
	}
	if s.deps.Agent != nil {
		s.logger.Info("agent_history_reset", slog.Bool("agent_available", deps.Agent != nil))
	}
	s.deps.Agent = deps.Agent
	s.deps.Answerer = deps.Answerer
}

func (s *Server) current() Deps {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deps
}

// CallTool invokes a tool with JSON-style arguments and returns markdown.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "retrieve":
		in := RetrieveInput{}
		in.Query, _ = args["query"].(string)
		in.Source, _ = args["source"].(string)
		if k, ok := args["top_k"].(float64); ok {
			in.TopK = int(k)
		}
		out, err := s.retrieve(ctx, in)
		if err != nil {
			return "", err
		}
		return FormatResults(in.Query, out.Results), nil
	case "ask":
		in := AskInput{}
		in.Question, _ = args["question"].(string)
		in.Mode, _ = args["mode"].(string)
		out, err := s.ask(ctx, in)
		if err != nil {
			return "", err
		}
		return out.Answer, nil
	case "session":
		in := SessionInput{}
		in.Key, _ = args["key"].(string)
		out, err := s.session(ctx, in)
		if err != nil {
			return "", err
		}
		return FormatSessions(out.Sessions), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func (s *Server) retrieve(ctx context.Context, in RetrieveInput) (RetrieveOutput, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return RetrieveOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	topK := clampLimit(in.TopK, DefaultTopK, 1, MaxTopK)
	var filters map[string]string
	if in.Source != "" {
		filters = map[string]string{"source": in.Source}
	}

	start := time.Now()
	requestID := generateRequestID()
	results, err := s.current().Retriever.Retrieve(ctx, query, topK, filters)
	if err != nil {
		s.logger.Error("retrieve failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return RetrieveOutput{}, MapError(err)
	}
	s.logger.Info("retrieve completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(results)))

	out := RetrieveOutput{
		Results: make([]ResultOutput, 0, len(results)),
		Context: retrieval.FormatContext(results),
	}
	for _, r := range results {
		out.Results = append(out.Results, toResultOutput(r))
	}
	return out, nil
}

func (s *Server) ask(ctx context.Context, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, NewInvalidParamsError("question parameter is required")
	}
	mode := in.Mode
	if mode == "" {
		mode = "agent"
	}

	deps := s.current()
	start := time.Now()
	var answer string
	switch mode {
	case "agent":
		if deps.Agent == nil {
			return AskOutput{}, NewInvalidParamsError("agent mode is not available: no language model configured")
		}
		answer = deps.Agent.Run(ctx, question)
	case "direct":
		if deps.Answerer == nil {
			return AskOutput{}, NewInvalidParamsError("direct mode is not available: no language model configured")
		}
		var err error
		answer, err = deps.Answerer.Answer(ctx, question)
		if err != nil {
			return AskOutput{}, MapError(err)
		}
	default:
		return AskOutput{}, NewInvalidParamsError(fmt.Sprintf("unknown mode %q (use agent or direct)", mode))
	}

	s.logger.Info("ask completed",
		slog.String("mode", mode),
		slog.Duration("duration", time.Since(start)))
	return AskOutput{Answer: answer, Mode: mode}, nil
}

func (s *Server) session(ctx context.Context, in SessionInput) (SessionOutput, error) {
	sessions := s.current().Sessions
	key := strings.TrimSpace(in.Key)

	if key == "" || strings.EqualFold(key, "list") {
		list, err := sessions.ListSessions(ctx, 10)
		if err != nil {
			return SessionOutput{}, MapError(err)
		}
		out := SessionOutput{Sessions: make([]SessionSummary, 0, len(list))}
		for i := range list {
			out.Sessions = append(out.Sessions, toSessionSummary(&list[i]))
		}
		return out, nil
	}

	sess, err := sessions.GetSession(ctx, key)
	if err != nil {
		return SessionOutput{}, MapError(err)
	}
	if sess == nil {
		return SessionOutput{Sessions: []SessionSummary{}}, nil
	}
	return SessionOutput{Sessions: []SessionSummary{toSessionSummary(sess)}}, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolInfos[0].Name, Description: toolInfos[0].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
			out, err := s.retrieve(ctx, in)
			return nil, out, err
		})
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolInfos[1].Name, Description: toolInfos[1].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
			out, err := s.ask(ctx, in)
			return nil, out, err
		})
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolInfos[2].Name, Description: toolInfos[2].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, SessionOutput, error) {
			out, err := s.session(ctx, in)
			return nil, out, err
		})
	s.logger.Debug("MCP tools registered", slog.Int("count", len(toolInfos)))
}

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "sessions",
			URI:         sessionsResourceURI,
			Description: "Recent trading sessions",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			out, err := s.session(ctx, SessionInput{})
			if err != nil {
				return nil, err
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return nil, MapError(err)
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{
					URI:      sessionsResourceURI,
					MIMEType: "application/json",
					Text:     string(data),
				}},
			}, nil
		},
	)
}

// Serve runs the server until ctx is done. Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func toResultOutput(r retrieval.Result) ResultOutput {
	out := ResultOutput{ID: r.ID, Content: r.Content, Score: r.Score}
	if v, ok := r.Metadata["source"]; ok {
		out.Source = fmt.Sprint(v)
	}
	if v, ok := r.Metadata["freshness"]; ok {
		out.Freshness = fmt.Sprint(v)
	}
	return out
}

func toSessionSummary(s *store.Session) SessionSummary {
	return SessionSummary{
		ID:          s.ID,
		Date:        s.Date,
		TotalCycles: s.TotalCycles,
		TotalTrades: s.TotalTrades,
		FinalPnLPct: s.FinalPnLPct,
		Summary:     s.Summary(),
	}
}

func clampLimit(v, def, lo, hi int) int {
	if v <= 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
