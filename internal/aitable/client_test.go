package aitable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", 5*time.Second)
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": status == http.StatusOK,
		"code":    status,
		"message": "SUCCESS",
		"data":    json.RawMessage(raw),
	})
}

func TestFetchTableRecords_Paginates(t *testing.T) {
	var pages []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/datasheets/dstClients/records", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, `{Name}="Acme"`, r.URL.Query().Get("filterByFormula"))
		assert.Equal(t, "name", r.URL.Query().Get("fieldKey"))

		page := r.URL.Query().Get("pageNum")
		pages = append(pages, page)
		n, _ := strconv.Atoi(page)

		// Two records on page one, one on page two.
		var recs []map[string]any
		if n == 1 {
			recs = []map[string]any{
				{"recordId": "rec1", "fields": map[string]any{"Name": "Acme"}},
				{"recordId": "rec2", "fields": map[string]any{"Name": "Acme"}},
			}
		} else {
			recs = []map[string]any{{"recordId": "rec3", "fields": map[string]any{"Name": "Acme"}}}
		}
		writeEnvelope(w, http.StatusOK, map[string]any{"total": 3, "pageNum": n, "pageSize": 2, "records": recs})
	})

	recs, err := c.FetchTableRecords(context.Background(), "dstClients", `{Name}="Acme"`)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "rec1", recs[0].ID)
	assert.Equal(t, "rec3", recs[2].ID)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestFetchTableRecords_NoFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["filterByFormula"]
		assert.False(t, ok)
		writeEnvelope(w, http.StatusOK, map[string]any{"total": 0, "records": []any{}})
	})

	recs, err := c.FetchTableRecords(context.Background(), "dst", "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCreateRecord(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body writeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Records, 1)
		assert.Empty(t, body.Records[0].RecordID)
		assert.Equal(t, "name", body.FieldKey)
		assert.Equal(t, "Acme", body.Records[0].Fields["Name"])

		writeEnvelope(w, http.StatusOK, map[string]any{
			"records": []map[string]any{{"recordId": "recNew", "fields": body.Records[0].Fields}},
		})
	})

	rec, err := c.CreateRecord(context.Background(), "dst", map[string]any{"Name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "recNew", rec.ID)
	assert.Equal(t, "Acme", rec.Fields["Name"])
}

func TestUpdateRecord(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body writeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rec9", body.Records[0].RecordID)
		writeEnvelope(w, http.StatusOK, map[string]any{
			"records": []map[string]any{{"recordId": "rec9", "fields": map[string]any{"Usage Count": 4}}},
		})
	})

	rec, err := c.UpdateRecord(context.Background(), "dst", "rec9", map[string]any{"Usage Count": 4})
	require.NoError(t, err)
	assert.Equal(t, "rec9", rec.ID)
	assert.InDelta(t, 4, rec.Fields["Usage Count"], 0.001)
}

func TestErrors_HTTPStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"success":false,"code":401,"message":"invalid token"}`)
	})

	_, err := c.FetchTableRecords(context.Background(), "dst", "")
	require.Error(t, err)
	assert.Equal(t, "AITable API error (401): invalid token", err.Error())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestErrors_NonJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	})

	_, err := c.CreateRecord(context.Background(), "dst", map[string]any{})
	assert.EqualError(t, err, "AITable API error (502): upstream down")
}

func TestErrors_SuccessFalse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"code":429,"message":"rate limited"}`)
	})

	_, err := c.UpdateRecord(context.Background(), "dst", "rec1", map[string]any{})
	code, ok := StatusFromError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestErrors_Transport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(srv.URL, "tok", time.Second)

	_, err := c.FetchTableRecords(context.Background(), "dst", "")
	code, ok := StatusFromError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		code int
		ok   bool
	}{
		{nil, 0, false},
		{&APIError{StatusCode: 404, Message: "nope"}, 404, true},
		{fmt.Errorf("saving mapping: %w", &APIError{StatusCode: 422, Message: "bad"}), 422, true},
		{errors.New("row 3: AITable API error (500): boom"), 500, true},
		{errors.New("something else"), 0, false},
	}
	for _, tt := range tests {
		code, ok := StatusFromError(tt.err)
		assert.Equal(t, tt.ok, ok, "%v", tt.err)
		assert.Equal(t, tt.code, code, "%v", tt.err)
	}
}
