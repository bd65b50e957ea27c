package servicenow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-gateway/internal/config"
	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/pkg/util"
)

const incidentTable = "/api/now/table/incident"

// Client is the ticket bridge to the external Table API. It is stateless
// per call: no record caching, no automatic retries. A timeout or 5xx
// surfaces to the caller as a transport or upstream error; retrying is
// the caller's decision because create is not idempotent and a blind
// retry risks duplicate incidents.
type Client struct {
	baseURL  string
	strategy Strategy
	http     *http.Client
	log      *zap.Logger
}

// NewClient builds a bridge client with a fixed per-request timeout.
func NewClient(cfg config.ServiceNowConfig, strategy Strategy, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.InstanceURL, "/"),
		strategy: strategy,
		http:     &http.Client{Timeout: cfg.RequestTimeout()},
		log:      logger,
	}
}

// ComposeQuery conjoins a free-form sysparm query with a priority
// constraint. The constraint is appended with the ^ (AND) separator and
// never overrides an existing query term.
func ComposeQuery(query, priority string) string {
	if priority == "" {
		return query
	}
	if query == "" {
		return "priority=" + priority
	}
	return query + "^priority=" + priority
}

// Fetch lists incidents matching the sysparm query, newest first per the
// instance's default ordering, capped at limit.
func (c *Client) Fetch(ctx context.Context, limit int, query string) ([]domain.IncidentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{
		"sysparm_limit":         {strconv.Itoa(limit)},
		"sysparm_display_value": {"true"},
	}
	if query != "" {
		params.Set("sysparm_query", query)
	}

	body, err := c.do(ctx, http.MethodGet, incidentTable+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result []domain.IncidentRecord `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, util.NewUpstreamError(http.StatusOK, "malformed result envelope")
	}
	return envelope.Result, nil
}

// Get resolves idOrNumber to a single incident. The argument may be the
// opaque sys id or the human-readable number; see resolve.
func (c *Client) Get(ctx context.Context, idOrNumber string) (*domain.IncidentRecord, error) {
	return c.resolve(ctx, idOrNumber)
}

// Create opens a new incident with the given fields.
func (c *Client) Create(ctx context.Context, fields domain.IncidentFields) (*domain.IncidentRecord, error) {
	if problems := fields.ValidateForCreate(); problems != nil {
		return nil, util.NewValidationError("invalid incident fields", problems)
	}
	return c.writeRecord(ctx, http.MethodPost, incidentTable, fields.TableValues())
}

// Update patches an incident identified by sys id or number.
func (c *Client) Update(ctx context.Context, idOrNumber string, fields domain.IncidentFields) (*domain.IncidentRecord, error) {
	if problems := fields.ValidateForUpdate(); problems != nil {
		return nil, util.NewValidationError("invalid incident fields", problems)
	}
	record, err := c.resolve(ctx, idOrNumber)
	if err != nil {
		return nil, err
	}
	return c.writeRecord(ctx, http.MethodPatch, incidentTable+"/"+url.PathEscape(record.SysID), fields.TableValues())
}

// Delete removes an incident identified by sys id or number.
func (c *Client) Delete(ctx context.Context, idOrNumber string) error {
	record, err := c.resolve(ctx, idOrNumber)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, incidentTable+"/"+url.PathEscape(record.SysID), nil)
	return err
}

// Assign routes an incident to an assignee. There is no dedicated
// endpoint upstream; this is an update with a field preset, which keeps
// the mapping total instead of growing a code path per verb.
func (c *Client) Assign(ctx context.Context, idOrNumber, assignee string) (*domain.IncidentRecord, error) {
	if assignee == "" {
		return nil, util.NewValidationError("assigned_to required", nil)
	}
	return c.Update(ctx, idOrNumber, domain.IncidentFields{AssignedTo: assignee})
}

// Resolve closes out an incident with resolution notes. Same preset
// treatment as Assign.
func (c *Client) Resolve(ctx context.Context, idOrNumber, notes string) (*domain.IncidentRecord, error) {
	if notes == "" {
		return nil, util.NewValidationError("close_notes required", nil)
	}
	return c.Update(ctx, idOrNumber, domain.IncidentFields{
		State:      domain.IncidentStateResolved,
		CloseNotes: notes,
	})
}

// resolve maps a caller-supplied identifier to a record. It first tries
// a direct fetch by sys id; on any failure, not-found or transport, it
// falls back to a number lookup limited to one result. Exhausting both
// paths yields NotFound.
func (c *Client) resolve(ctx context.Context, idOrNumber string) (*domain.IncidentRecord, error) {
	if idOrNumber == "" {
		return nil, util.NewValidationError("incident identifier required", nil)
	}

	body, err := c.do(ctx, http.MethodGet, incidentTable+"/"+url.PathEscape(idOrNumber), nil)
	if err == nil {
		var envelope struct {
			Result domain.IncidentRecord `json:"result"`
		}
		if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil && envelope.Result.SysID != "" {
			return &envelope.Result, nil
		}
	}

	records, err := c.Fetch(ctx, 1, "number="+idOrNumber)
	if err == nil && len(records) > 0 {
		return &records[0], nil
	}
	return nil, util.NewNotFound("incident", map[string]any{"id": idOrNumber})
}

// writeRecord sends a create or patch body and unwraps the single-record
// result envelope.
func (c *Client) writeRecord(ctx context.Context, method, path string, values map[string]string) (*domain.IncidentRecord, error) {
	payload, err := json.Marshal(values)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Result domain.IncidentRecord `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, util.NewUpstreamError(http.StatusOK, "malformed result envelope")
	}
	return &envelope.Result, nil
}

// do performs one authenticated call against the instance. Errors carry
// the operation context: transport failures wrap the underlying error,
// upstream failures keep status and body.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.strategy.apply(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("upstream call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, util.NewTransportError(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, util.NewTransportError(fmt.Errorf("reading %s %s response: %w", method, path, err))
	}
	if resp.StatusCode >= 300 {
		c.log.Error("upstream error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, util.NewUpstreamError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.log.Debug("upstream call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))
	return body, nil
}
