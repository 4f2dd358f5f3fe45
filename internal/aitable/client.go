// Package aitable is a small client for the AITable Fusion datasheet API.
package aitable

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
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/cleared-dev/payrecon/internal/records"
)

const (
	// DefaultBaseURL is the public Fusion API endpoint.
	DefaultBaseURL = "https://aitable.ai/fusion/v1"

	maxPageSize = 1000
)

// Client implements records.Store against AITable datasheets.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The caller is then responsible
// for authentication.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient returns a client authenticating with a bearer token.
func NewClient(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	hc := oauth2.NewClient(context.Background(), src)
	hc.Timeout = timeout

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// envelope is the common response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type pageData struct {
	Total    int              `json:"total"`
	PageNum  int              `json:"pageNum"`
	PageSize int              `json:"pageSize"`
	Records  []records.Record `json:"records"`
}

type writeData struct {
	Records []records.Record `json:"records"`
}

type writeRequest struct {
	Records  []writeRecord `json:"records"`
	FieldKey string        `json:"fieldKey"`
}

type writeRecord struct {
	RecordID string         `json:"recordId,omitempty"`
	Fields   map[string]any `json:"fields"`
}

// FetchTableRecords reads every page of tableID matching filter.
func (c *Client) FetchTableRecords(ctx context.Context, tableID, filter string) ([]records.Record, error) {
	var all []records.Record
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(maxPageSize))
		q.Set("pageNum", strconv.Itoa(page))
		q.Set("fieldKey", "name")
		if filter != "" {
			q.Set("filterByFormula", filter)
		}

		var data pageData
		if err := c.do(ctx, http.MethodGet, c.recordsURL(tableID)+"?"+q.Encode(), nil, &data); err != nil {
			return nil, err
		}
		all = append(all, data.Records...)

		if len(data.Records) == 0 || len(all) >= data.Total {
			break
		}
	}

	c.log.Debug().Str("table", tableID).Str("filter", filter).Int("records", len(all)).Msg("Fetched AITable records")
	return all, nil
}

// CreateRecord inserts one record.
func (c *Client) CreateRecord(ctx context.Context, tableID string, fields map[string]any) (records.Record, error) {
	body := writeRequest{Records: []writeRecord{{Fields: fields}}, FieldKey: "name"}
	return c.write(ctx, http.MethodPost, tableID, body)
}

// UpdateRecord patches the given fields of one record.
func (c *Client) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) (records.Record, error) {
	body := writeRequest{Records: []writeRecord{{RecordID: recordID, Fields: fields}}, FieldKey: "name"}
	return c.write(ctx, http.MethodPatch, tableID, body)
}

func (c *Client) write(ctx context.Context, method, tableID string, body writeRequest) (records.Record, error) {
	var data writeData
	if err := c.do(ctx, method, c.recordsURL(tableID), body, &data); err != nil {
		return records.Record{}, err
	}
	if len(data.Records) == 0 {
		return records.Record{}, &APIError{StatusCode: http.StatusBadGateway, Message: "empty records in response"}
	}
	return data.Records[0], nil
}

func (c *Client) recordsURL(tableID string) string {
	return fmt.Sprintf("%s/datasheets/%s/records", c.baseURL, url.PathEscape(tableID))
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("reading response: %v", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && env.Message != "" {
			msg = env.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return &APIError{StatusCode: http.StatusBadGateway, Message: fmt.Sprintf("decoding response: %v", decodeErr)}
	}
	if !env.Success {
		code := env.Code
		if code < 100 || code > 599 {
			code = http.StatusBadRequest
		}
		return &APIError{StatusCode: code, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &APIError{StatusCode: http.StatusBadGateway, Message: fmt.Sprintf("decoding data: %v", err)}
		}
	}
	return nil
}
