package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/quizrooms/game/catalog"
	"github.com/wricardo/quizrooms/game/results"
	"github.com/wricardo/quizrooms/game/room"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Quiz Rooms",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Quiz Rooms - MCP Admin Interface

This is a read-only client that proxies requests to the quiz room server's REST API.
Players create and play rooms over the WebSocket protocol; these tools only observe.

AVAILABLE TOOLS:
- health: Check that the server is up
- list_rooms: List live rooms with status and player counts
- get_room: Show one room's roster, scores and progress
- list_game_types: List the question sets that can be used as game types
- list_results: Show finished games and their rankings`),
	)

	c.registerTools()
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "health",
		Description: "Check that the quiz room server is reachable",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHealth)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List live rooms",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"sort": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"created", "players"},
					"description": "Sort key (default: created)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Sort order (default: desc)",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of rooms to return",
				},
			},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get the roster, scores and progress of a room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_code": map[string]interface{}{
					"type":        "string",
					"description": "Six character room code",
				},
			},
			Required: []string{"room_code"},
		},
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_game_types",
		Description: "List the question sets available as game types",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListGameTypes)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_results",
		Description: "List finished games, most recent first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of results to return",
				},
			},
		},
	}, c.handleListResults)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

func (c *Client) apiCall(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// Tool handlers

func (c *Client) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp map[string]string
	if err := c.apiCall(ctx, "/api/health", &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Server %s is %s", c.baseURL, resp["status"])), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	query := url.Values{}
	if s, _ := args["sort"].(string); s != "" {
		query.Set("sort", s)
	}
	if o, _ := args["order"].(string); o != "" {
		query.Set("order", o)
	}
	if l, ok := args["limit"].(float64); ok && l > 0 {
		query.Set("limit", strconv.Itoa(int(l)))
	}

	path := "/api/rooms"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var response struct {
		Count int             `json:"count"`
		Total int             `json:"total"`
		Rooms []room.Snapshot `json:"rooms"`
	}
	if err := c.apiCall(ctx, path, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoomList(response.Rooms, response.Total)), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, _ := arguments(request)["room_code"].(string)
	code = strings.TrimSpace(code)
	if code == "" {
		return mcp.NewToolResultError("room_code is required"), nil
	}

	var snap room.Snapshot
	if err := c.apiCall(ctx, "/api/rooms/"+url.PathEscape(strings.ToUpper(code)), &snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoom(snap)), nil
}

func (c *Client) handleListGameTypes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count     int               `json:"count"`
		GameTypes []catalog.SetInfo `json:"gameTypes"`
	}
	if err := c.apiCall(ctx, "/api/game-types", &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Game Types (%d):\n\n", response.Count)
	for _, s := range response.GameTypes {
		fmt.Fprintf(&b, "- %s: %s (%d questions)\n", s.ID, s.Name, s.QuestionCount)
		if s.Description != "" {
			fmt.Fprintf(&b, "  %s\n", s.Description)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleListResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/results"
	if l, ok := arguments(request)["limit"].(float64); ok && l > 0 {
		path += "?limit=" + strconv.Itoa(int(l))
	}

	var response struct {
		Count   int              `json:"count"`
		Total   int              `json:"total"`
		Results []results.Result `json:"results"`
	}
	if err := c.apiCall(ctx, path, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Finished Games (%d of %d):\n", response.Count, response.Total)
	for _, r := range response.Results {
		fmt.Fprintf(&b, "\n%s [%s] finished %s\n", r.RoomCode, r.GameType, r.FinishedAt.Format(time.RFC3339))
		for _, s := range r.Rankings {
			fmt.Fprintf(&b, "  %d. %s - %d\n", s.Rank, s.Name, s.Score)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func formatRoomList(rooms []room.Snapshot, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Live Rooms (%d of %d):\n\n", len(rooms), total)
	for _, r := range rooms {
		fmt.Fprintf(&b, "- %s [%s] %s, %d/%d players, created %s\n",
			r.Code, r.GameType, r.Status, len(r.Players), r.MaxPlayers, r.CreatedAt.Format("15:04:05"))
	}
	return b.String()
}

func formatRoom(r room.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room %s\n", r.Code)
	fmt.Fprintf(&b, "Game Type: %s\n", r.GameType)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	if r.Status != room.StatusWaiting {
		fmt.Fprintf(&b, "Question: %d/%d\n", r.CurrentQuestionIndex+1, r.TotalQuestions)
	}
	fmt.Fprintf(&b, "Players (%d/%d):\n", len(r.Players), r.MaxPlayers)
	for _, p := range r.Players {
		var flags []string
		if p.IsHost {
			flags = append(flags, "host")
		}
		if p.IsReady {
			flags = append(flags, "ready")
		}
		line := fmt.Sprintf("  - %s (%s) score %d", p.Name, p.ID, p.Score)
		if len(flags) > 0 {
			line += " [" + strings.Join(flags, ", ") + "]"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
