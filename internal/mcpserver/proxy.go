package mcpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// ProxyHandler creates MCP tool handlers that proxy to the REST API.
type ProxyHandler struct {
	apiURL string
	client *http.Client
	logger zerolog.Logger
}

// NewProxyHandler creates a new proxy handler targeting the given API URL.
func NewProxyHandler(apiURL string, logger zerolog.Logger) *ProxyHandler {
	return &ProxyHandler{
		apiURL: strings.TrimRight(apiURL, "/"),
		// No client timeout: provisioning and backup restores are
		// synchronous API calls that legitimately run for minutes.
		client: &http.Client{},
		logger: logger,
	}
}

// Handler returns an MCP tool handler function for the given operation.
func (p *ProxyHandler) Handler(op ToolOperation) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		// Substitute path parameters into the URL template.
		reqURL := p.apiURL + op.Path
		for _, param := range op.Parameters {
			if param.In != "path" {
				continue
			}
			val, ok := args[param.Name]
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("missing required path parameter: %s", param.Name)), nil
			}
			reqURL = strings.ReplaceAll(reqURL, "{"+param.Name+"}", url.PathEscape(fmt.Sprintf("%v", val)))
		}

		query := url.Values{}
		for _, param := range op.Parameters {
			if param.In != "query" {
				continue
			}
			if val, ok := args[param.Name]; ok && val != nil && fmt.Sprintf("%v", val) != "" {
				query.Set(param.Name, fmt.Sprintf("%v", val))
			}
		}
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}

		var bodyReader io.Reader
		if body, ok := args["body"]; ok && body != nil {
			if bodyStr := fmt.Sprintf("%v", body); bodyStr != "" {
				bodyReader = strings.NewReader(bodyStr)
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, op.Method, reqURL, bodyReader)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("build request: %s", err)), nil
		}
		if bodyReader != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		// Forward the caller's API key. Some MCP clients can only send a
		// bearer token, so accept that form too.
		apiKey := req.Header.Get("X-API-Key")
		if apiKey == "" {
			if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if apiKey != "" {
			httpReq.Header.Set("X-API-Key", apiKey)
		}

		p.logger.Debug().
			Str("method", op.Method).
			Str("url", reqURL).
			Str("tool", req.Params.Name).
			Msg("proxying MCP tool call")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %s", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read response: %s", err)), nil
		}

		if resp.StatusCode >= 400 {
			return mcp.NewToolResultError(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody))), nil
		}

		if resp.StatusCode == http.StatusNoContent {
			return mcp.NewToolResultText(`{"status":"success"}`), nil
		}

		return mcp.NewToolResultText(string(respBody)), nil
	}
}
