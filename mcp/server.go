package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/yosida95/uritemplate/v3"
)

// ToolHandler executes one tool invocation on the provider side.
type ToolHandler func(ctx context.Context, args json.RawMessage) (CallToolResult, error)

// ResourceHandler serves one resource read. For templated resources the
// expanded variables are passed alongside the full URI.
type ResourceHandler func(ctx context.Context, uri string, vars map[string]string) (ReadResourceResult, error)

type serverTool struct {
	def     Tool
	handler ToolHandler
}

type serverResource struct {
	uri     string
	tmpl    *uritemplate.Template
	handler ResourceHandler
}

// Server is a minimal provider-side implementation of the protocol, enough to
// write tool providers in Go and to exercise the client end to end. Handlers
// are registered before Serve; registration order is the listing order.
type Server struct {
	info         Info
	instructions string

	tools     []serverTool
	resources []Resource
	templates []ResourceTemplate
	readers   []serverResource

	mu      sync.Mutex
	serving bool
}

// NewServer creates a provider server identified by name and version.
func NewServer(name, version string) *Server {
	return &Server{
		info: Info{Name: name, Version: version},
	}
}

// WithInstructions sets the free-form usage instructions returned from the
// initialization handshake.
func (s *Server) WithInstructions(text string) *Server {
	s.instructions = text
	return s
}

// RegisterTool exposes a callable tool. Duplicate names are a programming
// error and panic at registration time.
func (s *Server) RegisterTool(def Tool, handler ToolHandler) {
	for _, t := range s.tools {
		if t.def.Name == def.Name {
			panic(fmt.Sprintf("mcp: tool %q registered twice", def.Name))
		}
	}
	s.tools = append(s.tools, serverTool{def: def, handler: handler})
}

// RegisterResource exposes a concrete resource at a fixed URI.
func (s *Server) RegisterResource(def Resource, handler ResourceHandler) {
	s.resources = append(s.resources, def)
	s.readers = append(s.readers, serverResource{uri: def.URI, handler: handler})
}

// RegisterResourceTemplate exposes a parametrized resource, e.g.
// "papers://{topic}".
func (s *Server) RegisterResourceTemplate(def ResourceTemplate, handler ResourceHandler) {
	tmpl := uritemplate.MustNew(def.URITemplate)
	s.templates = append(s.templates, def)
	s.readers = append(s.readers, serverResource{tmpl: tmpl, handler: handler})
}

// Serve answers requests on the transport until the context is cancelled or
// the transport closes.
func (s *Server) Serve(ctx context.Context, tr Transport) error {
	done := make(chan struct{})

	tr.SetErrorHandler(func(err error) {
		logger.KV(xlog.WARNING, "server", s.info.Name, "status", "transport_error", "err", err.Error())
	})
	tr.SetCloseHandler(func() {
		close(done)
	})
	tr.SetMessageHandler(func(ctx context.Context, msg *Message) {
		s.handleMessage(ctx, tr, msg)
	})

	if err := tr.Start(ctx); err != nil {
		return errors.WithMessage(err, "failed to start server transport")
	}

	select {
	case <-ctx.Done():
		return tr.Close()
	case <-done:
		return nil
	}
}

func (s *Server) handleMessage(ctx context.Context, tr Transport, msg *Message) {
	if msg.Method == "" || msg.ID == "" {
		// Notifications require no reply.
		return
	}
	go func() {
		result, rpcErr := s.dispatch(ctx, msg)
		reply := &Message{
			JSONRPC: JSONRPCVersion,
			ID:      msg.ID,
		}
		if rpcErr != nil {
			reply.Error = rpcErr
		} else {
			raw, err := json.Marshal(result)
			if err != nil {
				reply.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
			} else {
				reply.Result = raw
			}
		}
		if err := tr.Send(ctx, reply); err != nil {
			logger.KV(xlog.WARNING, "server", s.info.Name, "status", "failed_to_send_reply", "err", err.Error())
		}
	}()
}

func (s *Server) dispatch(ctx context.Context, msg *Message) (any, *RPCError) {
	switch msg.Method {
	case MethodInitialize:
		return s.handleInitialize(msg)
	case MethodPing:
		return map[string]any{}, nil
	case MethodToolsList:
		return s.handleListTools(), nil
	case MethodToolsCall:
		return s.handleCallTool(ctx, msg)
	case MethodResourcesList:
		return ListResourcesResult{Resources: append([]Resource{}, s.resources...)}, nil
	case MethodResourcesTemplates:
		return ListResourceTemplatesResult{Templates: append([]ResourceTemplate{}, s.templates...)}, nil
	case MethodResourcesRead:
		return s.handleReadResource(ctx, msg)
	}
	return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", msg.Method)}
}

func (s *Server) handleInitialize(msg *Message) (any, *RPCError) {
	var params InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	if params.ProtocolVersion != ProtocolVersion {
		return nil, &RPCError{
			Code:    CodeInvalidParams,
			Message: fmt.Sprintf("unsupported protocol version: %s", params.ProtocolVersion),
		}
	}

	caps := ServerCapabilities{}
	if len(s.tools) > 0 {
		caps.Tools = &ToolsCapability{}
	}
	if len(s.readers) > 0 {
		caps.Resources = &ResourcesCapability{}
	}
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

func (s *Server) handleListTools() ListToolsResult {
	res := ListToolsResult{Tools: make([]Tool, 0, len(s.tools))}
	for _, t := range s.tools {
		res.Tools = append(res.Tools, t.def)
	}
	return res
}

func (s *Server) handleCallTool(ctx context.Context, msg *Message) (any, *RPCError) {
	var params CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	for _, t := range s.tools {
		if t.def.Name != params.Name {
			continue
		}
		result, err := t.handler(ctx, params.Arguments)
		if err != nil {
			// Tool-level failures are data for the model, not protocol errors.
			return CallToolResult{
				Content: []Content{TextContent(err.Error())},
				IsError: true,
			}, nil
		}
		return result, nil
	}
	return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown tool: %s", params.Name)}
}

func (s *Server) handleReadResource(ctx context.Context, msg *Message) (any, *RPCError) {
	var params ReadResourceParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	for _, r := range s.readers {
		var vars map[string]string
		if r.tmpl != nil {
			match := r.tmpl.Match(params.URI)
			if match == nil {
				continue
			}
			vars = make(map[string]string, len(match))
			for name, val := range match {
				vars[name] = val.String()
			}
		} else if r.uri != params.URI {
			continue
		}
		result, err := r.handler(ctx, params.URI, vars)
		if err != nil {
			return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		return result, nil
	}
	return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown resource: %s", params.URI)}
}
