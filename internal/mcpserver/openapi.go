package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SwaggerSpec represents a Swagger 2.0 specification (subset we care about).
type SwaggerSpec struct {
	BasePath    string                          `json:"basePath"`
	Paths       map[string]map[string]Operation `json:"paths"`
	Definitions map[string]json.RawMessage      `json:"definitions"`
}

// Operation represents a single API operation.
type Operation struct {
	Tags        []string                   `json:"tags"`
	Summary     string                     `json:"summary"`
	Description string                     `json:"description"`
	OperationID string                     `json:"operationId"`
	Parameters  []Parameter                `json:"parameters"`
	Responses   map[string]json.RawMessage `json:"responses"`
}

// Parameter represents an API parameter.
type Parameter struct {
	Name        string          `json:"name"`
	In          string          `json:"in"`
	Required    bool            `json:"required"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Default     any             `json:"default"`
	Schema      json.RawMessage `json:"schema"`
	Enum        []any           `json:"enum"`
}

// ToolOperation holds the data needed to proxy a tool call.
type ToolOperation struct {
	Method     string
	Path       string // URL path template with {param} placeholders
	Parameters []Parameter
}

// ParseSpec parses a Swagger 2.0 JSON spec.
func ParseSpec(data []byte) (*SwaggerSpec, error) {
	var spec SwaggerSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse swagger spec: %w", err)
	}
	return &spec, nil
}

// BuildTools generates MCP tools from the spec, grouped by the config's group
// definitions. Returns a map of group name to tools, and a map of tool name to
// ToolOperation for proxying. Operations whose tag belongs to no group are
// skipped, which is how the websocket event stream stays out of the tool set.
func BuildTools(spec *SwaggerSpec, cfg *Config, proxyFn func(op ToolOperation) server.ToolHandlerFunc) (map[string][]server.ServerTool, map[string]ToolOperation) {
	tagMap := cfg.tagToGroup()
	groups := make(map[string][]server.ServerTool)
	operations := make(map[string]ToolOperation)

	for path, methods := range spec.Paths {
		for method, op := range methods {
			method = strings.ToUpper(method)

			group := ""
			if len(op.Tags) > 0 {
				group = tagMap[op.Tags[0]]
			}
			if group == "" {
				continue
			}

			toolName := deriveName(method, path)

			override, hasOverride := cfg.Overrides[toolName]
			if hasOverride && override.Name != "" {
				toolName = override.Name
			}

			desc := op.Description
			if desc == "" {
				desc = op.Summary
			}
			if hasOverride && override.Description != "" {
				desc = override.Description
			}

			toolOpts := []mcp.ToolOption{
				mcp.WithDescription(desc),
			}
			toolOpts = append(toolOpts, buildAnnotations(method, cfg, override)...)
			toolOpts = append(toolOpts, buildParams(op.Parameters)...)

			toolOp := ToolOperation{
				Method:     method,
				Path:       spec.BasePath + path,
				Parameters: op.Parameters,
			}

			groups[group] = append(groups[group], server.ServerTool{
				Tool:    mcp.NewTool(toolName, toolOpts...),
				Handler: proxyFn(toolOp),
			})
			operations[toolName] = toolOp
		}
	}

	return groups, operations
}

// buildAnnotations resolves the method defaults against any per-tool override.
func buildAnnotations(method string, cfg *Config, override ToolOverride) []mcp.ToolOption {
	ann := cfg.Defaults[method].merge(override.Annotations)

	var opts []mcp.ToolOption
	if ann.ReadOnly != nil {
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(*ann.ReadOnly))
	}
	if ann.Destructive != nil {
		opts = append(opts, mcp.WithDestructiveHintAnnotation(*ann.Destructive))
	}
	if ann.Idempotent != nil {
		opts = append(opts, mcp.WithIdempotentHintAnnotation(*ann.Idempotent))
	}
	return opts
}

// buildParams converts API parameters to MCP tool parameter options.
func buildParams(params []Parameter) []mcp.ToolOption {
	var opts []mcp.ToolOption

	for _, p := range params {
		switch p.In {
		case "path":
			opts = append(opts, mcp.WithString(p.Name, paramOpts(p)...))

		case "query":
			popts := paramOpts(p)
			switch p.Type {
			case "integer", "number":
				opts = append(opts, mcp.WithNumber(p.Name, popts...))
			case "boolean":
				opts = append(opts, mcp.WithBoolean(p.Name, popts...))
			default:
				opts = append(opts, mcp.WithString(p.Name, popts...))
			}

		case "body":
			// The body schema is not expanded; agents pass a JSON object
			// as a single string parameter.
			bodyDesc := p.Description
			if bodyDesc == "" {
				bodyDesc = "Request body (JSON object)"
			}
			popts := []mcp.PropertyOption{
				mcp.Description(bodyDesc),
			}
			if p.Required {
				popts = append(popts, mcp.Required())
			}
			opts = append(opts, mcp.WithString("body", popts...))
		}
	}

	return opts
}

// paramOpts builds PropertyOption slice from a Parameter.
func paramOpts(p Parameter) []mcp.PropertyOption {
	desc := p.Description
	if desc == "" {
		desc = p.Name
	}
	opts := []mcp.PropertyOption{mcp.Description(desc)}

	if p.Required {
		opts = append(opts, mcp.Required())
	}

	if len(p.Enum) > 0 {
		var vals []string
		for _, v := range p.Enum {
			vals = append(vals, fmt.Sprintf("%v", v))
		}
		opts = append(opts, mcp.Enum(vals...))
	}

	return opts
}

// deriveName generates a tool name from the HTTP method and path.
// REST verbs become list/get/create/update/delete prefixes; action
// endpoints like POST /servers/{id}/start become start_server.
func deriveName(method, path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")

	var resources []string
	for _, p := range parts {
		if !strings.HasPrefix(p, "{") {
			resources = append(resources, strings.ReplaceAll(p, "-", "_"))
		}
	}
	if len(resources) == 0 {
		return strings.ToLower(method)
	}

	lastRes := resources[len(resources)-1]
	endsWithParam := strings.HasPrefix(parts[len(parts)-1], "{")

	// Console endpoints are verbs on a live server, not collections;
	// name them for what they do to the world.
	if len(resources) >= 2 && resources[len(resources)-2] == "console" {
		switch lastRes {
		case "command":
			return "send_console_command"
		case "say":
			return "broadcast_message"
		case "stop":
			return "stop_server_gracefully"
		case "players":
			return "list_players"
		}
	}

	// Grants read better as grant/revoke than create/delete.
	if lastRes == "permissions" {
		switch method {
		case "POST":
			return "grant_permission"
		case "DELETE":
			return "revoke_permission"
		}
	}

	switch method {
	case "GET":
		if endsWithParam {
			return "get_" + singularize(lastRes)
		}
		if lastRes == "me" {
			return "get_me"
		}
		if lastRes == "stats" && len(resources) >= 2 {
			return "get_" + singularize(resources[len(resources)-2]) + "_stats"
		}
		return "list_" + lastRes

	case "POST":
		if !endsWithParam && len(parts) >= 2 && strings.HasPrefix(parts[len(parts)-2], "{") {
			if strings.HasSuffix(lastRes, "s") {
				// POST /parent/{id}/children creates a child.
				return "create_" + singularize(lastRes)
			}
			// Action endpoint: POST /servers/{id}/restart, /backups/{id}/restore.
			return lastRes + "_" + singularize(resources[len(resources)-2])
		}
		return "create_" + singularize(lastRes)

	case "PUT":
		if !endsWithParam && len(resources) >= 2 {
			return "set_" + singularize(resources[len(resources)-2]) + "_" + lastRes
		}
		return "update_" + singularize(lastRes)

	case "DELETE":
		if !endsWithParam && len(resources) >= 2 {
			return "delete_" + singularize(resources[len(resources)-2]) + "_" + lastRes
		}
		return "delete_" + singularize(lastRes)
	}

	return strings.ToLower(method) + "_" + lastRes
}

// singularize strips a plural suffix. The API's resource names are all
// regular plurals, so suffix rules are enough.
func singularize(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses"), strings.HasSuffix(s, "xes"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return s[:len(s)-1]
	}
	return s
}
