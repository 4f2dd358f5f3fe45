// Package handlers implements the payment reconciliation endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cleared-dev/payrecon/internal/aitable"
	"github.com/cleared-dev/payrecon/internal/api/middleware"
	"github.com/cleared-dev/payrecon/internal/clients"
	"github.com/cleared-dev/payrecon/internal/importer"
	"github.com/cleared-dev/payrecon/internal/logger"
	"github.com/cleared-dev/payrecon/internal/model"
)

// Importer writes parsed export rows to the payments table.
type Importer interface {
	Import(ctx context.Context, rows []importer.ParsedRow) model.ImportResult
}

// Mappings manages sender-to-client mappings.
type Mappings interface {
	CreateManualMapping(ctx context.Context, rawSender, clientID string, source model.PaymentSource) (model.ClientMapping, error)
	ListMappings(ctx context.Context, f clients.MappingFilter) ([]model.ClientMapping, error)
}

// PaymentsHandler handles the /api/payments endpoints.
type PaymentsHandler struct {
	importer       Importer
	mappings       Mappings
	parsers        *importer.Registry
	maxUploadBytes int64
}

// NewPaymentsHandler creates a payments handler accepting uploads up to maxUploadBytes.
func NewPaymentsHandler(imp Importer, mappings Mappings, maxUploadBytes int64) *PaymentsHandler {
	return &PaymentsHandler{
		importer:       imp,
		mappings:       mappings,
		parsers:        importer.DefaultRegistry(),
		maxUploadBytes: maxUploadBytes,
	}
}

// Import handles POST /api/payments/import
func (h *PaymentsHandler) Import(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	// Uploads without a known extension are read as CSV.
	parser := h.parsers.ForFile(header.Filename)
	if parser == nil {
		parser = &importer.CSVParser{}
	}
	rows, err := parser.Parse(file)
	if err != nil {
		log.Warn().Err(err).Str("file", header.Filename).Msg("Rejected upload")
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.importer.Import(r.Context(), rows)
	log.Info().
		Str("file", header.Filename).
		Int("imported", result.Imported).
		Int("failed", result.Failed).
		Msg("Imported upload")

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}

// MapClient handles POST /api/payments/map-client
func (h *PaymentsHandler) MapClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID      string `json:"senderId"`
		ClientID      string `json:"clientId"`
		PaymentSource string `json:"paymentSource"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SenderID == "" || req.ClientID == "" || req.PaymentSource == "" {
		middleware.WriteError(w, http.StatusBadRequest, "senderId, clientId and paymentSource are required")
		return
	}
	source, ok := model.ParsePaymentSource(req.PaymentSource)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid payment source")
		return
	}

	mapping, err := h.mappings.CreateManualMapping(r.Context(), req.SenderID, req.ClientID, source)
	if err != nil {
		h.writeMappingError(w, r, err, "Failed to create client mapping")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"mapping": mapping,
	})
}

// ListMappings handles GET /api/payments/client-mappings
func (h *PaymentsHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f clients.MappingFilter
	if s := q.Get("paymentSource"); s != "" {
		source, ok := model.ParsePaymentSource(s)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid payment source")
			return
		}
		f.Source = source
	}
	f.ClientID = q.Get("clientId")
	if s := q.Get("minConfidence"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > model.MaxConfidence {
			middleware.WriteError(w, http.StatusBadRequest, "minConfidence must be an integer between 0 and 100")
			return
		}
		f.MinConfidence = n
	}

	mappings, err := h.mappings.ListMappings(r.Context(), f)
	if err != nil {
		h.writeMappingError(w, r, err, "Failed to list client mappings")
		return
	}
	if mappings == nil {
		mappings = []model.ClientMapping{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"mappings": mappings,
		"count":    len(mappings),
	})
}

func (h *PaymentsHandler) writeMappingError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, clients.ErrInvalidMapping):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, clients.ErrUnknownClient):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	logger.FromContext(r.Context()).Error().Err(err).Msg(fallback)
	if status, ok := aitable.StatusFromError(err); ok {
		middleware.WriteError(w, status, err.Error())
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, fallback)
}

// Health handles GET /healthz
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
