// Package mcp exposes the diagnosis engine over the Model Context
// Protocol so AI assistants can diagnose failed executions directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/varenko/inquest/internal/diagnosis"
	"github.com/varenko/inquest/internal/mcp/tools"
)

// Tool defines the interface all MCP tool implementations satisfy.
type Tool interface {
	Execute(ctx context.Context, input json.RawMessage) (interface{}, error)
}

// Server wires the diagnosis engine into an MCP server.
type Server struct {
	mcpServer *server.MCPServer
	tools     map[string]Tool
	version   string
}

// NewServer creates an MCP server exposing the engine's diagnosis tools.
func NewServer(engine *diagnosis.Engine, version string) *Server {
	mcpServer := server.NewMCPServer(
		"Inquest MCP Server",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		tools:     make(map[string]Tool),
		version:   version,
	}
	s.registerTools(engine)
	return s
}

// registerTools declares the tool catalog. Schemas are kept inline so the
// wire contract is visible next to the registration.
func (s *Server) registerTools(engine *diagnosis.Engine) {
	s.registerTool(
		"diagnose_execution",
		"Diagnose a failed workflow execution record. Returns ranked root-cause findings with weighted evidence, the originating node, and a suggested remediation class.",
		tools.NewDiagnoseExecutionTool(engine),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"record": map[string]interface{}{
					"type":        "object",
					"description": "Inline execution record JSON. Mutually exclusive with record_path.",
				},
				"record_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to an execution record JSON file. Mutually exclusive with record.",
				},
				"history_path": map[string]interface{}{
					"type":        "string",
					"description": "Optional: path to a JSON array of prior executions of the same workflow, used to sharpen time-correlated signatures.",
				},
				"include_report": map[string]interface{}{
					"type":        "boolean",
					"description": "Optional: include a rendered markdown findings report alongside the structured diagnosis (default: false)",
				},
			},
		},
	)

	s.registerTool(
		"list_patterns",
		"List the failure signatures the engine matches executions against, with match thresholds and tie-break priority.",
		tools.NewListPatternsTool(engine.Registry()),
		map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	)
}

func (s *Server) registerTool(name, description string, tool Tool, schema map[string]interface{}) {
	s.tools[name] = tool

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal schema for tool %s: %v", name, err))
	}

	mcpTool := mcp.NewToolWithRawSchema(name, description, schemaJSON)
	s.mcpServer.AddTool(mcpTool, s.createToolHandler(tool))
}

// createToolHandler adapts our Tool interface to the mcp-go handler shape.
func (s *Server) createToolHandler(tool Tool) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
		}

		result, err := tool.Execute(ctx, input)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
		}

		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

// GetMCPServer returns the underlying MCP server for transport binding.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
