// Package pinecone is a minimal client for the Pinecone data-plane REST API.
package pinecone

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/logger"
	"github.com/spigell/candidate-ranker/internal/retrieval"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	apiVersion      = "2024-07"
	userAgent       = "spigell/candidate-ranker"

	queryPath  = "/query"
	upsertPath = "/vectors/upsert"

	// Pinecone caps upsert requests; stay well below the 2MB body limit.
	upsertBatch = 100
)

type Client struct {
	host       string
	apiKey     string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
}

// New creates a client for the index served at host, e.g. https://idx-abc.svc.pinecone.io.
func New(host, apiKey string, log *zap.Logger) (*Client, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, errors.New("pinecone host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("pinecone api key is required")
	}

	return &Client{
		host:   host,
		apiKey: apiKey,
		logger: logger.WithFields(log, zap.String("backend", "pinecone")),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent: userAgent,
	}, nil
}

type queryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	IncludeMetadata bool           `json:"includeMetadata"`
	IncludeValues   bool           `json:"includeValues"`
	Namespace       *string        `json:"namespace,omitempty"`
	Filter          map[string]any `json:"filter,omitempty"`
}

type upsertRequest struct {
	Vectors   []retrieval.Vector `json:"vectors"`
	Namespace string             `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// Query runs a nearest-neighbor search.
func (c *Client) Query(ctx context.Context, q retrieval.Query) (*retrieval.Response, error) {
	body := queryRequest{
		Vector:          q.Vector,
		TopK:            q.TopK,
		IncludeMetadata: true,
		Namespace:       q.Namespace,
		Filter:          q.Filter,
	}

	var resp retrieval.Response
	if err := c.postJSON(ctx, queryPath, body, &resp); err != nil {
		return nil, fmt.Errorf("query namespace %s: %w", retrieval.NamespaceLabel(q.Namespace), err)
	}

	c.logger.Debug("got response from pinecone",
		zap.String("namespace", retrieval.NamespaceLabel(q.Namespace)),
		zap.Int("matches", len(resp.Matches)),
	)

	return &resp, nil
}

// Upsert writes vectors in batches.
func (c *Client) Upsert(ctx context.Context, namespace string, vectors []retrieval.Vector) error {
	for start := 0; start < len(vectors); start += upsertBatch {
		end := min(start+upsertBatch, len(vectors))

		var resp upsertResponse
		req := upsertRequest{Vectors: vectors[start:end], Namespace: namespace}
		if err := c.postJSON(ctx, upsertPath, req, &resp); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}

		c.logger.Debug("upserted vectors", zap.Int("count", resp.UpsertedCount))
	}
	return nil
}

func (c *Client) Close() error { return nil }

func (c *Client) postJSON(ctx context.Context, path string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.request(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s: %s", resp.Status, logger.TruncateForLog(string(data), 256))
	}

	if target == nil {
		return nil
	}

	return json.Unmarshal(data, target)
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("X-Pinecone-API-Version", apiVersion)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("User-Agent", c.UserAgent)

	return req
}
