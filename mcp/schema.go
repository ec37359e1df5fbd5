package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// JSONRPCVersion is the only protocol version accepted on the wire.
const JSONRPCVersion = "2.0"

// ProtocolVersion is the provider protocol revision negotiated during the
// initialization handshake.
const ProtocolVersion = "2024-11-05"

// Method names for requests issued by the orchestrator.
const (
	MethodInitialize         = "initialize"
	MethodPing               = "ping"
	MethodToolsList          = "tools/list"
	MethodToolsCall          = "tools/call"
	MethodResourcesList      = "resources/list"
	MethodResourcesTemplates = "resources/templates/list"
	MethodResourcesRead      = "resources/read"
	notificationInitialized  = "notifications/initialized"
	notificationCancelled    = "notifications/cancelled"
)

// JSON-RPC error codes used by the Server.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MustString normalizes request IDs that may arrive as either a JSON string
// or a JSON number.
type MustString string

// MarshalJSON implements json.Marshaler.
func (s MustString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *MustString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = MustString(str)
		return nil
	}
	var num int64
	if err := json.Unmarshal(data, &num); err == nil {
		*s = MustString(strconv.FormatInt(num, 10))
		return nil
	}
	return fmt.Errorf("invalid request ID: %s", string(data))
}

// Message is a JSON-RPC 2.0 message. Depending on which fields are populated
// it represents a request (ID, Method, Params), a response (ID and either
// Result or Error) or a notification (Method without ID).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      MustString      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsResponse reports whether the message carries a result or error for a
// previously issued request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.ID != ""
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Info identifies a protocol peer.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises which capability families a provider exposes.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
}

// ToolsCapability marks tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability marks resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is sent by the orchestrator as the first request on a
// fresh session.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Info           `json:"clientInfo"`
}

// InitializeResult is the provider's handshake reply.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Info               `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Tool describes a callable tool exposed by a provider. InputSchema is the
// JSON Schema of the arguments object for ToolsCall.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Resource describes a concrete, directly addressable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a parametrized resource by URI template
// (RFC 6570), e.g. "papers://{topic}".
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListToolsParams requests a page of the provider's tool list.
type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult is one page of tools.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListResourcesParams requests a page of the provider's resource list.
type ListResourcesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourcesResult is one page of resources.
type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ListResourceTemplatesParams requests the provider's resource templates.
type ListResourceTemplatesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourceTemplatesResult is one page of resource templates.
type ListResourceTemplatesResult struct {
	Templates  []ResourceTemplate `json:"resourceTemplates"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

// CallToolParams invokes a named tool with a JSON arguments object.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the outcome of a tool invocation. IsError marks a
// tool-level failure whose details are carried in Content; transport and
// protocol failures are reported as Go errors instead.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// ReadResourceParams addresses a resource by URI.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult carries the contents of a resource read.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// ContentType enumerates content block kinds.
type ContentType string

// Content block kinds.
const (
	ContentTypeText     ContentType = "text"
	ContentTypeResource ContentType = "resource"
)

// Content is a single block of tool-result content.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`

	// Resource is set when Type is ContentTypeResource.
	Resource *ResourceContents `json:"resource,omitempty"`
}

// TextContent builds a text content block.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ResourceContents is the text or binary payload of a resource.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// JoinedText concatenates the text blocks of a tool result.
func (r CallToolResult) JoinedText() string {
	var out string
	for _, c := range r.Content {
		if c.Type != ContentTypeText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += c.Text
	}
	return out
}

// JoinedText concatenates the text payloads of a resource read.
func (r ReadResourceResult) JoinedText() string {
	var out string
	for _, c := range r.Contents {
		if c.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += c.Text
	}
	return out
}

type cancelledParams struct {
	RequestID MustString `json:"requestId"`
	Reason    string     `json:"reason,omitempty"`
}
