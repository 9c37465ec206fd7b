// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only Voxnote tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ravnholt/voxnote/internal/models"
	"github.com/ravnholt/voxnote/internal/notestore"
)

// PendingLister reports orphaned recordings awaiting recovery.
type PendingLister interface {
	Scan(ctx context.Context) ([]models.PendingRecordingSnapshot, error)
}

// Server wraps the MCP server with Voxnote tools.
type Server struct {
	mcp     *server.MCPServer
	notes   notestore.NoteStore
	pending PendingLister
}

// New creates a new MCP server with all Voxnote tools registered.
func New(notes notestore.NoteStore, pending PendingLister) *Server {
	s := &Server{notes: notes, pending: pending}

	s.mcp = server.NewMCPServer(
		"Voxnote",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List saved voice notes, newest first."),
		mcp.WithString("limit", mcp.Description("Maximum number of notes to return (default 50)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a voice note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search note content by substring."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_pending_recordings",
		mcp.WithDescription("List orphaned recordings left behind by an interrupted capture, awaiting recovery or discard."),
	), s.listPendingRecordings)

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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 50
	if raw, err := req.RequireString("limit"); err == nil {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			limit = n
		}
	}

	metas, _, err := s.notes.List(limit, 0, models.LifecycleActive)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(metas, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.notes.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPendingRecordings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snaps, err := s.pending.Scan(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	type item struct {
		ID              string `json:"id"`
		DurationSeconds int    `json:"duration_seconds"`
		NoteID          string `json:"note_id,omitempty"`
		CreatedAt       string `json:"created_at"`
	}
	items := make([]item, 0, len(snaps))
	for _, p := range snaps {
		items = append(items, item{
			ID:              p.ID,
			DurationSeconds: int(p.Duration.Seconds()),
			NoteID:          p.NoteID,
			CreatedAt:       p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
