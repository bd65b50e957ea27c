package servicenow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-gateway/internal/config"
	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/pkg/util"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.ServiceNowConfig{InstanceURL: server.URL}
	return NewClient(cfg, &BasicStrategy{Username: "admin", Password: "secret"}, zap.NewNop())
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": result}))
}

func TestComposeQuery(t *testing.T) {
	tests := []struct {
		query    string
		priority string
		want     string
	}{
		{"", "", ""},
		{"state=2", "", "state=2"},
		{"", "1", "priority=1"},
		{"state=2", "1", "state=2^priority=1"},
		{"state=2^urgency=1", "3", "state=2^urgency=1^priority=3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ComposeQuery(tt.query, tt.priority))
	}
}

func TestFetchSendsQueryParams(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/now/table/incident", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("sysparm_limit"))
		assert.Equal(t, "true", r.URL.Query().Get("sysparm_display_value"))
		assert.Equal(t, "state=2^priority=1", r.URL.Query().Get("sysparm_query"))
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "admin", user)
		writeResult(t, w, []domain.IncidentRecord{{SysID: "a1", Number: "INC0010001"}})
	}))

	records, err := client.Fetch(context.Background(), 5, "state=2^priority=1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "INC0010001", records[0].Number)
}

func TestFetchDefaultsLimit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("sysparm_limit"))
		assert.Empty(t, r.URL.Query().Get("sysparm_query"))
		writeResult(t, w, []domain.IncidentRecord{})
	}))

	_, err := client.Fetch(context.Background(), 0, "")
	require.NoError(t, err)
}

func TestGetBySysID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/now/table/incident/a1b2c3", r.URL.Path)
		writeResult(t, w, domain.IncidentRecord{SysID: "a1b2c3", Number: "INC0010001"})
	}))

	record, err := client.Get(context.Background(), "a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3", record.SysID)
}

func TestGetFallsBackToNumberLookup(t *testing.T) {
	record := domain.IncidentRecord{SysID: "a1b2c3", Number: "INC0010001", ShortDescription: "printer on fire"}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/now/table/incident/INC0010001":
			http.Error(w, `{"error":{"message":"No Record found"}}`, http.StatusNotFound)
		case r.URL.Path == "/api/now/table/incident":
			assert.Equal(t, "number=INC0010001", r.URL.Query().Get("sysparm_query"))
			assert.Equal(t, "1", r.URL.Query().Get("sysparm_limit"))
			writeResult(t, w, []domain.IncidentRecord{record})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	got, err := client.Get(context.Background(), "INC0010001")
	require.NoError(t, err)
	assert.Equal(t, record, *got)
}

func TestGetUnknownIdentifier(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/now/table/incident" {
			writeResult(t, w, []domain.IncidentRecord{})
			return
		}
		http.Error(w, "{}", http.StatusNotFound)
	}))

	_, err := client.Get(context.Background(), "INC9999999")
	require.Error(t, err)
	assert.True(t, util.IsCode(err, "NOT_FOUND"))
}

func TestGetEmptyIdentifier(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := client.Get(context.Background(), "")
	assert.True(t, util.IsCode(err, "VALIDATION_FAILED"))
}

func TestCreate(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/now/table/incident", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "printer on fire", body["short_description"])
		assert.Equal(t, "1", body["priority"])
		assert.NotContains(t, body, "state")

		w.WriteHeader(http.StatusCreated)
		writeResult(t, w, domain.IncidentRecord{SysID: "new1", Number: "INC0010002", State: "1"})
	}))

	record, err := client.Create(context.Background(), domain.IncidentFields{
		ShortDescription: "printer on fire",
		Description:      "third floor printer is emitting smoke",
		Priority:         "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "INC0010002", record.Number)
}

func TestCreateValidation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("invalid fields must not reach the wire")
	}))

	_, err := client.Create(context.Background(), domain.IncidentFields{
		ShortDescription: "no description",
		Priority:         "9",
	})
	require.Error(t, err)
	assert.True(t, util.IsCode(err, "VALIDATION_FAILED"))

	var domainErr *util.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Contains(t, domainErr.Details, "description")
	assert.Contains(t, domainErr.Details, "priority")
}

func TestUpdateResolvesNumberBeforePatch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/now/table/incident/INC0010001":
			http.Error(w, "{}", http.StatusNotFound)
		case r.Method == http.MethodGet && r.URL.Path == "/api/now/table/incident":
			writeResult(t, w, []domain.IncidentRecord{{SysID: "a1b2c3", Number: "INC0010001"}})
		case r.Method == http.MethodPatch && r.URL.Path == "/api/now/table/incident/a1b2c3":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]string{"urgency": "2"}, body)
			writeResult(t, w, domain.IncidentRecord{SysID: "a1b2c3", Number: "INC0010001", Urgency: "2"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	record, err := client.Update(context.Background(), "INC0010001", domain.IncidentFields{Urgency: "2"})
	require.NoError(t, err)
	assert.Equal(t, "2", record.Urgency)
}

func TestDelete(t *testing.T) {
	var deleted bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeResult(t, w, domain.IncidentRecord{SysID: "a1b2c3"})
		case http.MethodDelete:
			require.Equal(t, "/api/now/table/incident/a1b2c3", r.URL.Path)
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	require.NoError(t, client.Delete(context.Background(), "a1b2c3"))
	assert.True(t, deleted)
}

func TestAssignPreset(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeResult(t, w, domain.IncidentRecord{SysID: "a1b2c3"})
			return
		}
		require.Equal(t, http.MethodPatch, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"assigned_to": "beth.anglin"}, body)
		writeResult(t, w, domain.IncidentRecord{SysID: "a1b2c3", AssignedTo: "beth.anglin"})
	}))

	record, err := client.Assign(context.Background(), "a1b2c3", "beth.anglin")
	require.NoError(t, err)
	assert.Equal(t, "beth.anglin", record.AssignedTo)

	_, err = client.Assign(context.Background(), "a1b2c3", "")
	assert.True(t, util.IsCode(err, "VALIDATION_FAILED"))
}

func TestResolvePreset(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeResult(t, w, domain.IncidentRecord{SysID: "a1b2c3"})
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"state":       "6",
			"close_notes": "replaced toner",
		}, body)
		writeResult(t, w, domain.IncidentRecord{SysID: "a1b2c3", State: "6"})
	}))

	record, err := client.Resolve(context.Background(), "a1b2c3", "replaced toner")
	require.NoError(t, err)
	assert.Equal(t, "6", record.State)

	_, err = client.Resolve(context.Background(), "a1b2c3", "")
	assert.True(t, util.IsCode(err, "VALIDATION_FAILED"))
}

func TestUpstreamErrorKeepsStatusAndBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"insert failed"}}`, http.StatusInternalServerError)
	}))

	_, err := client.Fetch(context.Background(), 10, "")
	require.Error(t, err)

	var domainErr *util.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "UPSTREAM_ERROR", domainErr.Code)
	assert.Equal(t, 500, domainErr.Details["upstream_status"])
	assert.Contains(t, domainErr.Details["upstream_body"], "insert failed")
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	cfg := config.ServiceNowConfig{InstanceURL: server.URL}
	client := NewClient(cfg, &BasicStrategy{Username: "a", Password: "b"}, zap.NewNop())
	server.Close()

	_, err := client.Fetch(context.Background(), 10, "")
	require.Error(t, err)
	assert.True(t, util.IsCode(err, "TRANSPORT_ERROR"))
}
