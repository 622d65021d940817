// Package airtable reads and writes records through the Airtable REST API.
package airtable

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

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/fetch"
	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// maxPages stops a listing whose offsets never terminate
const maxPages = 1000

// apiRecord is one record as the API returns it
type apiRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

type listResponse struct {
	Records []apiRecord `json:"records"`
	Offset  string      `json:"offset"`
}

type apiError struct {
	Error json.RawMessage `json:"error"`
}

// Client talks to one Airtable base
type Client struct {
	fetcher  *fetch.Fetcher
	limiter  *fetch.RateLimiter
	apiURL   string
	baseID   string
	token    string
	view     string
	pageSize int
	log      *logrus.Entry
}

// NewClient creates a Client for cfg.BaseID. Requests are spaced to
// cfg.RequestsPerSecond and retried according to policy.
func NewClient(cfg config.AirtableConfig, httpClient *http.Client, policy fetch.RetryPolicy, log *logrus.Entry) *Client {
	log = log.WithField("component", "airtable")
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &Client{
		fetcher:  fetch.NewFetcher(httpClient, policy, log),
		limiter:  fetch.NewRateLimiterPerSecond(cfg.RequestsPerSecond, log),
		apiURL:   strings.TrimSuffix(cfg.APIURL, "/"),
		baseID:   cfg.BaseID,
		token:    cfg.Token,
		view:     cfg.View,
		pageSize: pageSize,
		log:      log,
	}
}

// Configured reports whether the client has credentials and a base
func (c *Client) Configured() bool {
	return c.token != "" && c.baseID != ""
}

func (c *Client) tableURL(table string) string {
	return c.apiURL + "/" + url.PathEscape(c.baseID) + "/" + url.PathEscape(table)
}

// ListRecords returns every record of table, following pagination offsets.
// Each record is flattened to {id, ...fields}.
func (c *Client) ListRecords(ctx context.Context, table string) ([]models.Record, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: token or base id not configured", utils.ErrAirtableAPI)
	}
	tableLog := c.log.WithField("table", table)

	var records []models.Record
	offset := ""
	for page := 0; ; page++ {
		if page >= maxPages {
			return records, fmt.Errorf("%w: table %s: more than %d pages", utils.ErrAirtableAPI, table, maxPages)
		}

		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(c.pageSize))
		if c.view != "" {
			q.Set("view", c.view)
		}
		if offset != "" {
			q.Set("offset", offset)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(table)+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
		}

		var body listResponse
		if err := c.do(ctx, req, table, &body); err != nil {
			return nil, err
		}
		for _, r := range body.Records {
			records = append(records, flatten(r))
		}
		tableLog.Debugf("Fetched page %d (%d records)", page+1, len(body.Records))

		if body.Offset == "" {
			break
		}
		offset = body.Offset
	}

	tableLog.Infof("Fetched %d records", len(records))
	return records, nil
}

// CreateRecord creates one record in table and returns its id
func (c *Client) CreateRecord(ctx context.Context, table string, fields map[string]any) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%w: token or base id not configured", utils.ErrAirtableAPI)
	}
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", fmt.Errorf("%w: %w: JSON: %w", utils.ErrAirtableAPI, utils.ErrParsing, err)
	}
	// NewRequest sets GetBody for *bytes.Reader so retries can replay it
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(table), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var created apiRecord
	if err := c.do(ctx, req, table, &created); err != nil {
		return "", err
	}
	c.log.WithField("table", table).Infof("Created record %s", created.ID)
	return created.ID, nil
}

// do sends req with auth and rate limiting and decodes a 2xx JSON body into out
func (c *Client) do(ctx context.Context, req *http.Request, table string, out any) error {
	if err := c.limiter.Wait(ctx, req.URL.Host, 0); err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		var statusErr *fetch.StatusError
		if resp != nil {
			defer resp.Body.Close()
		}
		if errors.As(err, &statusErr) {
			detail := ""
			if resp != nil {
				detail = readErrorDetail(resp.Body)
			}
			if statusErr.StatusCode == http.StatusForbidden {
				return fmt.Errorf("%w: access denied to table %s (check the token's scopes and base access): %w%s", utils.ErrAirtableAPI, table, err, detail)
			}
			return fmt.Errorf("%w: table %s: %w%s", utils.ErrAirtableAPI, table, err, detail)
		}
		return fmt.Errorf("%w: table %s: %w", utils.ErrAirtableAPI, table, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w: JSON response for table %s: %w", utils.ErrAirtableAPI, utils.ErrParsing, table, err)
	}
	return nil
}

// readErrorDetail extracts the API's error object from a failed response
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 8<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var e apiError
	if json.Unmarshal(data, &e) == nil && len(e.Error) > 0 {
		return " (" + string(e.Error) + ")"
	}
	return ""
}

// flatten turns an API record into {id, ...fields}
func flatten(r apiRecord) models.Record {
	rec := make(models.Record, len(r.Fields)+1)
	for k, v := range r.Fields {
		rec[k] = v
	}
	rec["id"] = r.ID
	return rec
}
