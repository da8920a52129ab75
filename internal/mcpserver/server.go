package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Sentra tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("sentra", "0.1.0")
	client := NewSentraClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolListFraudAlerts, h.HandleListFraudAlerts)
	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)
	s.AddTool(ToolGetFraudStats, h.HandleGetFraudStats)
	s.AddTool(ToolReviewAlert, h.HandleReviewAlert)
	s.AddTool(ToolGetUserActivity, h.HandleGetUserActivity)
	s.AddTool(ToolScoreTransaction, h.HandleScoreTransaction)

	return s
}
