package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/service"
	"github.com/spec-kit/incident-gateway/pkg/util"
)

// maxLineSize bounds a single protocol message on the stream transport.
const maxLineSize = 4 * 1024 * 1024

// Server speaks JSON-RPC 2.0 over newline-delimited messages and exposes
// the incident operations as tools. The same dispatch serves both the
// stdio stream (Serve/Run) and single-message HTTP posts (HandleMessage),
// so tool behavior cannot differ between transports.
type Server struct {
	incidents *service.IncidentService
	log       *zap.Logger
	version   string

	mu          sync.Mutex
	initialized bool
}

// NewServer builds a protocol server over the shared incident service.
func NewServer(incidents *service.IncidentService, logger *zap.Logger, version string) *Server {
	return &Server{
		incidents: incidents,
		log:       logger,
		version:   version,
	}
}

// Serve runs the stream transport on stdin/stdout until EOF.
func (s *Server) Serve(ctx context.Context) error {
	return s.Run(ctx, os.Stdin, os.Stdout)
}

// Run processes newline-delimited JSON-RPC messages from input,
// writing one response line per request. Messages are handled
// sequentially in arrival order. Malformed input and failed calls are
// answered in-band; only I/O failure ends the session.
func (s *Server) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		resp := s.handleMessage(ctx, line, true)
		if resp == nil {
			continue
		}
		if _, err := output.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	return nil
}

// HandleMessage dispatches a single protocol message and returns the
// marshaled response, or nil for notifications. The HTTP transport is
// stateless: no prior initialize handshake is required per message.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) []byte {
	return s.handleMessage(ctx, raw, false)
}

func (s *Server) handleMessage(ctx context.Context, raw []byte, requireInit bool) []byte {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return marshalResponse(errorResponse(nil, codeParseError, "parse error: "+err.Error()))
	}
	if req.JSONRPC != "2.0" {
		return marshalResponse(errorResponse(req.ID, codeInvalidRequest, "unsupported jsonrpc version"))
	}
	if req.isNotification() {
		// Notifications get no response. notifications/initialized is
		// the only one clients send; anything else is ignored too.
		return nil
	}

	resp := s.dispatch(ctx, &req, requireInit)
	return marshalResponse(resp)
}

func (s *Server) dispatch(ctx context.Context, req *request, requireInit bool) response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return okResponse(req.ID, struct{}{})
	case "tools/list":
		if resp, ok := s.checkInitialized(req, requireInit); !ok {
			return resp
		}
		return okResponse(req.ID, toolsListResult{Tools: toolCatalog()})
	case "tools/call":
		if resp, ok := s.checkInitialized(req, requireInit); !ok {
			return resp
		}
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *request) response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
		}
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	s.log.Info("protocol session initialized",
		zap.String("client", params.ClientInfo.Name),
		zap.String("client_version", params.ClientInfo.Version),
	)
	return okResponse(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Tools: &toolCapability{},
		},
		ServerInfo: serverInfo{
			Name:    "incident-gateway",
			Version: s.version,
		},
	})
}

// checkInitialized enforces the initialize handshake on the stream
// transport. Returns ok=false with the error response when the session
// has not been initialized.
func (s *Server) checkInitialized(req *request, requireInit bool) (response, bool) {
	if !requireInit {
		return response{}, true
	}
	s.mu.Lock()
	ready := s.initialized
	s.mu.Unlock()
	if !ready {
		return errorResponse(req.ID, codeInvalidRequest, "session not initialized"), false
	}
	return response{}, true
}

func (s *Server) handleToolsCall(ctx context.Context, req *request) response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		var unknown *unknownToolError
		if errors.As(err, &unknown) {
			return errorResponse(req.ID, codeInvalidParams, err.Error())
		}
		// Tool execution failures are reported in-band so the session
		// and the agent's error context both survive.
		s.log.Warn("tool call failed",
			zap.String("tool", params.Name),
			zap.Error(err),
		)
		return okResponse(req.ID, failedCallResult(err))
	}
	return okResponse(req.ID, result)
}

type unknownToolError struct {
	name string
}

func (e *unknownToolError) Error() string {
	return "unknown tool: " + e.name
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (toolsCallResult, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	case "incident_list":
		return s.toolList(ctx, args)
	case "incident_get":
		return s.toolGet(ctx, args)
	case "incident_create":
		return s.toolCreate(ctx, args)
	case "incident_update":
		return s.toolUpdate(ctx, args)
	case "incident_delete":
		return s.toolDelete(ctx, args)
	case "incident_assign":
		return s.toolAssign(ctx, args)
	case "incident_resolve":
		return s.toolResolve(ctx, args)
	default:
		return toolsCallResult{}, &unknownToolError{name: name}
	}
}

func (s *Server) toolList(ctx context.Context, args json.RawMessage) (toolsCallResult, error) {
	var in struct {
		Limit    int    `json:"limit,omitempty"`
		Query    string `json:"query,omitempty"`
		Priority string `json:"priority,omitempty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return toolsCallResult{}, err
	}
	records, err := s.incidents.List(ctx, in.Limit, in.Query, in.Priority)
	if err != nil {
		return toolsCallResult{}, err
	}
	return jsonResult(records)
}

func (s *Server) toolGet(ctx context.Context, args json.RawMessage) (toolsCallResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return toolsCallResult{}, err
	}
	record, err := s.incidents.Get(ctx, in.ID)
	if err != nil {
		return toolsCallResult{}, err
	}
	return jsonResult(record)
}

func (s *Server) toolCreate(ctx context.Context, args json.RawMessage) (toolsCallResult, error) {
	var fields domain.IncidentFields
	if err := decodeArgs(args, &fields); err != nil {
		return toolsCallResult{}, err
	}
	record, err := s.incidents.Create(ctx, fields)
	if err != nil {
		return toolsCallResult{}, err
	}
	return jsonResult(record)
}

func (s *Server) toolUpdate(ctx context.Context, args json.RawMessage) (toolsCallResult, error) {
	var in struct {
		ID string `json:"id"`
		domain.IncidentFields
	}
	if err := decodeArgs(args, &in); err != nil {
		return toolsCallResult{}, err
	}
	record, err := s.incidents.Update(ctx, in.ID, in.IncidentFields)
	if err != nil {
		return toolsCallResult{}, err
	}
	return jsonResult(record)
}

func (s *Server) toolDelete(ctx context.Context, args json.RawMessage) (toolsCallResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return toolsCallResult{}, err
	}
	if err := s.incidents.Delete(ctx, in.ID); err != nil {
		return toolsCallResult{}, err
	}
	return textResult("incident " + in.ID + " deleted"), nil
}

func (s *Server) toolAssign(ctx context.Context, args json.RawMessage) (toolsCallResult, error) {
	var in struct {
		ID         string `json:"id"`
		AssignedTo string `json:"assigned_to"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return toolsCallResult{}, err
	}
	record, err := s.incidents.Assign(ctx, in.ID, in.AssignedTo)
	if err != nil {
		return toolsCallResult{}, err
	}
	return jsonResult(record)
}

func (s *Server) toolResolve(ctx context.Context, args json.RawMessage) (toolsCallResult, error) {
	var in struct {
		ID         string `json:"id"`
		CloseNotes string `json:"close_notes"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return toolsCallResult{}, err
	}
	record, err := s.incidents.Resolve(ctx, in.ID, in.CloseNotes)
	if err != nil {
		return toolsCallResult{}, err
	}
	return jsonResult(record)
}

// decodeArgs rejects unknown argument keys, mirroring the REST layer's
// strict body decoding.
func decodeArgs(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return util.NewValidationError("invalid tool arguments: "+err.Error(), nil)
	}
	return nil
}

func jsonResult(v any) (toolsCallResult, error) {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolsCallResult{}, util.NewInternalError(err)
	}
	return textResult(string(text)), nil
}

func textResult(text string) toolsCallResult {
	return toolsCallResult{
		Content: []contentBlock{{Type: "text", Text: text}},
	}
}

// failedCallResult renders an operation failure as an isError tool
// result with classification metadata.
func failedCallResult(err error) toolsCallResult {
	return toolsCallResult{
		Content:   []contentBlock{{Type: "text", Text: err.Error()}},
		IsError:   true,
		ErrorInfo: classifyError(err),
	}
}

// classifyError maps error codes to the protocol error taxonomy.
// Transport failures are the only class marked retryable: the request
// never reached the upstream, so repeating it is safe.
func classifyError(err error) *errorInfo {
	switch {
	case util.IsCode(err, "VALIDATION_FAILED"):
		return &errorInfo{Category: "validation"}
	case util.IsCode(err, "NOT_FOUND"):
		return &errorInfo{Category: "not_found"}
	case util.IsCode(err, "UNAUTHORIZED"), util.IsCode(err, "FORBIDDEN"):
		return &errorInfo{Category: "forbidden"}
	case util.IsCode(err, "CONFLICT"):
		return &errorInfo{Category: "conflict"}
	case util.IsCode(err, "TRANSPORT_ERROR"):
		return &errorInfo{Category: "transient", Retryable: true}
	case util.IsCode(err, "UPSTREAM_ERROR"):
		return &errorInfo{Category: "transient"}
	default:
		return &errorInfo{Category: "internal"}
	}
}

func okResponse(id json.RawMessage, result any) response {
	return response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) response {
	return response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	}
}

func marshalResponse(resp response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		// Result values are plain structs and maps; this cannot fail
		// for them, but losing the response entirely would hang the
		// caller.
		fallback := errorResponse(resp.ID, codeInternalError, "failed to encode response")
		out, _ = json.Marshal(fallback)
	}
	return out
}
