package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/payrecon/internal/api/handlers"
	"github.com/cleared-dev/payrecon/internal/clients"
	"github.com/cleared-dev/payrecon/internal/importer"
	"github.com/cleared-dev/payrecon/internal/records"
)

var clientTables = clients.Tables{Clients: "clients", Mappings: "client_mappings"}

func newTestServer(t *testing.T) (*httptest.Server, *records.MemoryStore) {
	t.Helper()
	store := records.NewMemoryStore()
	store.Put("clients", records.Record{ID: "recAcme", Fields: map[string]any{"Name": "Acme Corp"}})

	matcher := clients.NewMatcher(clients.NewCache(store, clientTables, zerolog.Nop()))
	imp := importer.New(store, matcher, importer.Tables{Payments: "payments"}, zerolog.Nop())
	h := NewHandler(handlers.NewPaymentsHandler(imp, matcher, 1<<20), zerolog.Nop())

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestAPI_ImportThenListMappings(t *testing.T) {
	srv, store := newTestServer(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", "march.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(",Sender/receiver,Description,Bank account,Date,Amount,Currency\n" +
		"CRDT,ACME Corp.,Stripe payout,Main,2024-01-01,10,EUR\n" +
		"CRDT,Stranger,Stripe payout,Main,2024-01-02,20,EUR\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/payments/import", mw.FormDataContentType(), body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var out struct {
		Success bool `json:"success"`
		Result  struct {
			Total, Imported, Matched, Unmatched, Failed int
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Result.Total)
	assert.Equal(t, 1, out.Result.Matched)
	assert.Equal(t, 1, out.Result.Unmatched)
	assert.Equal(t, 2, store.Len("payments"))

	list, err := http.Get(srv.URL + "/api/payments/client-mappings?paymentSource=stripe")
	require.NoError(t, err)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)

	var mappings struct {
		Count    int `json:"count"`
		Mappings []struct {
			SenderID string `json:"senderId"`
		} `json:"mappings"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&mappings))
	require.Equal(t, 1, mappings.Count)
	assert.Equal(t, "acmecorp_stripe", mappings.Mappings[0].SenderID)
}

func TestAPI_MapClientUnknown(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/payments/map-client", "application/json",
		strings.NewReader(`{"senderId":"Acme","clientId":"recNope","paymentSource":"stripe"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/payments/import")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAPI_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", http.NotFoundHandler(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
