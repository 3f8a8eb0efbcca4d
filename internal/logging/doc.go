// Package logging provides file-based structured logging with rotation.
// With --debug, JSON logs are written to ~/.tradingrag/logs/. The MCP server
// mode logs to file only so stdout stays reserved for JSON-RPC.
package logging
