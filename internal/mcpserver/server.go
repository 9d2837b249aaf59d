// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the attractor gallery for LLM integration via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/catalog"
	"github.com/starford/attractor-gallery/internal/curationservice"
	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/gallery"
	"github.com/starford/attractor-gallery/internal/models"
)

// ScoringURI is the resource holding ScoringContract.
const ScoringURI = "gallery://scoring"

// RunLister reads recorded runs. catalog.DB implements it.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]catalog.Run, error)
}

// Server wraps the MCP server with gallery tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *curationservice.Service
	runs RunLister
}

// New creates a new MCP server with all gallery tools registered. runs may
// be nil, in which case list_runs is not offered.
func New(svc *curationservice.Service, runs RunLister) *Server {
	s := &Server{svc: svc, runs: runs}

	s.mcp = server.NewMCPServer(
		"Attractor Gallery",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("curate",
		mcp.WithDescription("Run a curation pass over the record store, export the gallery "+
			"and return the per-group ranking tables and counts."),
	), s.curate)

	s.mcp.AddTool(mcp.NewTool("list_selection",
		mcp.WithDescription("List the final records of the latest curation run, per group, as JSON."),
		mcp.WithString("group", mcp.Description("Optional group label to restrict the listing")),
	), s.listSelection)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Return the metadata of a selected record by its hex id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id, 16 hex digits, optional 0x prefix")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("score",
		mcp.WithDescription("Evaluate a scoring policy on a leading Lyapunov exponent and "+
			"Kaplan-Yorke dimension. See the "+ScoringURI+" resource for the formulas."),
		mcp.WithNumber("leading_exponent", mcp.Required(), mcp.Description("Leading Lyapunov exponent (spectrum[0])")),
		mcp.WithNumber("ky_dim", mcp.Required(), mcp.Description("Kaplan-Yorke dimension")),
		mcp.WithString("policy", mcp.Description("linear or bell; defaults to the configured policy")),
	), s.score)

	if runs != nil {
		s.mcp.AddTool(mcp.NewTool("list_runs",
			mcp.WithDescription("List recorded curation runs, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		), s.listRuns)
	}

	s.mcp.AddResource(
		mcp.NewResource(ScoringURI, "Scoring Contract",
			mcp.WithResourceDescription("How records are validated, scored and selected."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readScoringResource,
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

func (s *Server) curate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.svc.Curate(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if snap.RunID != "" {
		fmt.Fprintf(&buf, "run %s\n\n", snap.RunID)
	}
	if err := curator.WriteSummary(&buf, snap.Result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

type selectionItem struct {
	Rank    int     `json:"rank"`
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Caption string  `json:"caption"`
	Image   string  `json:"image"`
}

type selectionGroup struct {
	Label   string          `json:"label"`
	Records []selectionItem `json:"records"`
}

func (s *Server) listSelection(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.svc.Latest()
	if err != nil {
		return mcp.NewToolResultError(toolMessage(err)), nil
	}
	only := req.GetString("group", "")

	groups := []selectionGroup{}
	for _, g := range snap.Result.Groups {
		if only != "" && g.Label != only {
			continue
		}
		sg := selectionGroup{Label: g.Label, Records: []selectionItem{}}
		for _, sel := range g.Selected {
			sg.Records = append(sg.Records, selectionItem{
				Rank:    sel.Rank,
				ID:      sel.Record.ID.Hex(),
				Score:   sel.Score,
				Caption: gallery.Caption(sel.Record),
				Image:   gallery.ImageName(sel.Record.ID),
			})
		}
		groups = append(groups, sg)
	}
	if only != "" && len(groups) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("unknown group: %s", only)), nil
	}
	out, _ := json.MarshalIndent(groups, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getRecord(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := models.ParseID(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid id: %s", raw)), nil
	}
	sel, err := s.svc.Record(id)
	if err != nil {
		return mcp.NewToolResultError(toolMessage(err)), nil
	}
	out, err := json.MarshalIndent(map[string]any{
		"group":    sel.Group,
		"rank":     sel.Rank,
		"score":    sel.Score,
		"caption":  gallery.Caption(sel.Record),
		"points":   len(sel.Record.Trajectory),
		"metadata": sel.Record.Metadata,
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) score(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	leading, err := req.RequireFloat("leading_exponent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kyDim, err := req.RequireFloat("ky_dim")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	policy := req.GetString("policy", "")

	score, selectable, err := s.svc.Score(policy, leading, kyDim)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.Marshal(map[string]any{
		"score":      score,
		"selectable": selectable,
	})
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(req.GetFloat("limit", 20))
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if runs == nil {
		runs = []catalog.Run{}
	}
	out, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readScoringResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ScoringURI,
			MIMEType: "text/markdown",
			Text:     ScoringContract,
		},
	}, nil
}

func toolMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNoSelection):
		return "no selection yet: run the curate tool first"
	case errors.Is(err, apperr.ErrNotFound):
		return "not found in the latest selection"
	default:
		return err.Error()
	}
}
