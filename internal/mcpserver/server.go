// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes nbpublish tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nbpublish/internal/apperr"
	"github.com/starford/nbpublish/internal/buildservice"
)

const rulesURI = "nbpublish://rules"

// Server wraps the MCP server with nbpublish tools.
type Server struct {
	mcp *server.MCPServer
	svc *buildservice.Service
}

// New creates a new MCP server with all nbpublish tools registered.
func New(svc *buildservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"nbpublish",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List authored notebooks with their last publish status."),
		mcp.WithString("topic", mcp.Description("Optional topic to list (empty for all)")),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("preview_notebook",
		mcp.WithDescription("Show what an authored notebook looks like after sanitizing, "+
			"without writing anything. Solution and hidden test regions are replaced by "+
			"their placeholders."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic of the notebook (e.g. 1)")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Notebook file name (e.g. 1.01-Intro.ipynb)")),
	), s.previewNotebook)

	s.mcp.AddTool(mcp.NewTool("publish_notebook",
		mcp.WithDescription("Sanitize one authored notebook and write it to the published folder."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic of the notebook")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Notebook file name")),
		mcp.WithBoolean("force", mcp.Description("Publish even if the notebook is unchanged")),
	), s.publishNotebook)

	s.mcp.AddTool(mcp.NewTool("get_build_record",
		mcp.WithDescription("Get the last publish outcome and media files of a notebook."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source path (e.g. notebooks/1-dev/1.01-Intro.ipynb)")),
	), s.getBuildRecord)

	s.mcp.AddTool(mcp.NewTool("get_rules",
		mcp.WithDescription("Returns the authoring conventions and the active sanitizing rules. "+
			"Call this before editing notebooks so solution regions and admonitions are recognized."),
	), s.getRules)

	// Resource: authoring conventions.
	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Notebook Authoring Rules",
			mcp.WithResourceDescription("Markers and markup that nbpublish rewrites when publishing."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type notebookStatus struct {
	Source string `json:"source"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) listNotebooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic := req.GetString("topic", "")
	sources, err := s.svc.ListSources(ctx, topic)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]notebookStatus, 0, len(sources))
	for _, src := range sources {
		st := notebookStatus{Source: src, Status: "unpublished"}
		rec, err := s.svc.GetBuild(ctx, src)
		switch {
		case err == nil:
			st.Status, st.Error = rec.Status, rec.Error
		case !errors.Is(err, apperr.ErrNotFound):
			return mcp.NewToolResultError(err.Error()), nil
		}
		out = append(out, st)
	}
	return jsonResult(out)
}

func (s *Server) previewNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.PreviewSource(ctx, topic, name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s/%s", topic, name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p)
}

func (s *Server) publishNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.PublishOne(ctx, topic, name, req.GetBool("force", false))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && res.Status == "" {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s/%s", topic, name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getBuildRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.GetBuild(ctx, source)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no build record: %s", source)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func (s *Server) getRules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.rulesDocument()), nil
}

func (s *Server) readRulesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     s.rulesDocument(),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
