// Sentra MCP Server - Exposes fraud triage capabilities as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nmoreau/sentra/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("SENTRA_API_URL", "http://localhost:8080"),
		APIKey: os.Getenv("SENTRA_API_KEY"),
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
