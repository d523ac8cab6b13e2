// Package erp integrates the ERPNext system of record. Classified documents
// are inserted as AI_Document records; when ERPNext is unreachable, insertion
// fails loudly with ErrUnavailable rather than falling back to local storage,
// so the system-of-record guarantee is never silently violated.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/arkeyez/arkdoc/observability"
)

// ErrUnavailable reports that ERPNext could not be reached or refused the
// request at the transport level.
var ErrUnavailable = errors.New("erpnext unavailable")

const docType = "AI_Document"

// Document is the AI_Document payload sent to ERPNext.
type Document struct {
	DocumentClass   string  `json:"document_class"`
	Filename        string  `json:"filename"`
	FileHash        string  `json:"file_hash"`
	ConfidenceScore float64 `json:"confidence_score"`
	Keywords        string  `json:"keywords"`
	Summary         string  `json:"summary"`
	OCRText         string  `json:"ocr_text"`
	UploadedBy      string  `json:"uploaded_by"`
}

// Stats summarizes stored documents.
type Stats struct {
	Total         int            `json:"total"`
	ByClass       map[string]int `json:"by_class"`
	AvgConfidence float64        `json:"avg_confidence"`
}

// BulkResult reports the outcome of a bulk insert.
type BulkResult struct {
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Errors  []BulkInsertError `json:"errors,omitempty"`
}

// BulkInsertError identifies a document that failed to insert.
type BulkInsertError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// Connector is a token-authenticated ERPNext REST client.
type Connector struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     observability.Logger
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger routes connector logs to the given logger.
func WithLogger(log observability.Logger) Option {
	return func(c *Connector) { c.log = log }
}

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Connector) { c.httpc = httpc }
}

// New builds a Connector for the given base URL and API credentials.
func New(baseURL, apiKey, apiSecret string, opts ...Option) *Connector {
	c := &Connector{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   fmt.Sprintf("token %s:%s", apiKey, apiSecret),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TestConnection verifies credentials against ERPNext, retrying transient
// failures with capped exponential backoff.
func (c *Connector) TestConnection(ctx context.Context) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var out struct {
			Message string `json:"message"`
		}
		err := c.get(ctx, "/api/method/frappe.auth.get_logged_user", nil, &out)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		c.log.Info("erpnext connection verified", observability.String("user", out.Message))
		return nil
	})
}

// CreateDocument inserts one AI_Document and returns the created record name.
func (c *Connector) CreateDocument(ctx context.Context, doc Document) (string, error) {
	if doc.UploadedBy == "" {
		doc.UploadedBy = "Administrator"
	}
	payload := map[string]interface{}{
		"doctype":          docType,
		"document_class":   doc.DocumentClass,
		"filename":         doc.Filename,
		"file_hash":        doc.FileHash,
		"confidence_score": doc.ConfidenceScore,
		"keywords":         doc.Keywords,
		"summary":          doc.Summary,
		"ocr_text":         doc.OCRText,
		"uploaded_by":      doc.UploadedBy,
		"upload_date":      time.Now().Format(time.RFC3339),
	}

	var out struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api/resource/"+docType, payload, &out); err != nil {
		return "", err
	}
	if out.Data.Name == "" {
		return "", fmt.Errorf("create %s: no record name returned", docType)
	}
	c.log.Info("document inserted into erpnext",
		observability.String("name", out.Data.Name),
		observability.String("filename", doc.Filename))
	return out.Data.Name, nil
}

// GetDocuments lists stored documents, most recent first.
func (c *Connector) GetDocuments(ctx context.Context, filters map[string]string, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{}
	params.Set("fields", `["*"]`)
	params.Set("limit_page_length", strconv.Itoa(limit))
	params.Set("order_by", "creation desc")
	if len(filters) > 0 {
		clauses := make([][3]string, 0, len(filters))
		for k, v := range filters {
			clauses = append(clauses, [3]string{k, "=", v})
		}
		data, err := json.Marshal(clauses)
		if err != nil {
			return nil, fmt.Errorf("encode filters: %w", err)
		}
		params.Set("filters", string(data))
	}

	var out struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := c.get(ctx, "/api/resource/"+docType, params, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Statistics aggregates counts and average confidence over stored documents.
func (c *Connector) Statistics(ctx context.Context) (Stats, error) {
	docs, err := c.GetDocuments(ctx, nil, 1000)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(docs), ByClass: make(map[string]int)}
	var confSum float64
	for _, doc := range docs {
		class, _ := doc["document_class"].(string)
		if class == "" {
			class = "Unknown"
		}
		stats.ByClass[class]++
		if conf, ok := doc["confidence_score"].(float64); ok {
			confSum += conf
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = confSum / float64(stats.Total)
	}
	return stats, nil
}

// DeleteDocument removes a record by name.
func (c *Connector) DeleteDocument(ctx context.Context, name string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/resource/"+docType+"/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// CheckDuplicate looks up an existing record by file hash.
func (c *Connector) CheckDuplicate(ctx context.Context, fileHash string) (map[string]interface{}, bool, error) {
	docs, err := c.GetDocuments(ctx, map[string]string{"file_hash": fileHash}, 1)
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// BulkInsert inserts documents one by one, collecting per-document failures
// instead of aborting on the first.
func (c *Connector) BulkInsert(ctx context.Context, docs []Document) BulkResult {
	var result BulkResult
	for _, doc := range docs {
		if _, err := c.CreateDocument(ctx, doc); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkInsertError{Filename: doc.Filename, Error: err.Error()})
			continue
		}
		result.Success++
	}
	c.log.Info("bulk insert finished",
		observability.Int("success", result.Success),
		observability.Int("failed", result.Failed))
	return result
}

func (c *Connector) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	full := path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, full, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Connector) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Connector) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Connector) do(req *http.Request, out interface{}) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("erpnext %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
