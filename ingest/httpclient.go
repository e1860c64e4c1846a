/*
httpclient.go - HTTP implementations of the collaborator interfaces

PURPOSE:
  Talks to the external issue tracker and time-logging service over
  their REST APIs. These are thin adapters: pagination and auth live
  here, everything else stays behind the TrackerClient / TimeLogClient
  interfaces so the pipeline and tests never see HTTP.

AUTH:
  Bearer token in the Authorization header, one token per service.

PAGINATION:
  Both services page with offset/limit query params and report the total
  row count; the adapters loop until all pages are fetched.

SEE ALSO:
  - collaborators.go: The interfaces these implement
  - cmd/server/main.go: Wires these from flags
*/
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultPageSize = 100

// restClient is the shared HTTP plumbing for both adapters.
type restClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newRESTClient(baseURL, token string) restClient {
	return restClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c restClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// =============================================================================
// TRACKER
// =============================================================================

// HTTPTracker implements TrackerClient against the issue tracker's REST API.
type HTTPTracker struct {
	rest restClient
}

// NewHTTPTracker creates a tracker client for the given base URL and token.
func NewHTTPTracker(baseURL, token string) *HTTPTracker {
	return &HTTPTracker{rest: newRESTClient(baseURL, token)}
}

type issuePage struct {
	Issues []issueDoc `json:"issues"`
	Total  int        `json:"total"`
}

type issueDoc struct {
	Key           string  `json:"key"`
	IssueType     string  `json:"issue_type"`
	BillingMode   string  `json:"billing_mode"`
	Created       string  `json:"created"`
	Status        string  `json:"status"`
	EstimateHours float64 `json:"estimate_hours"`
}

func (d issueDoc) toMeta() IssueMeta {
	created, _ := time.Parse(time.RFC3339, d.Created)
	return IssueMeta{
		Key:           d.Key,
		IssueType:     d.IssueType,
		BillingMode:   d.BillingMode,
		Created:       created,
		Status:        d.Status,
		EstimateHours: decimal.NewFromFloat(d.EstimateHours),
	}
}

// IssuesByKeys fetches metadata for the given keys, chunked to keep URLs
// bounded. Unknown keys are simply absent from the result.
func (t *HTTPTracker) IssuesByKeys(ctx context.Context, keys []string) (map[string]IssueMeta, error) {
	result := make(map[string]IssueMeta, len(keys))

	const chunkSize = 50
	for start := 0; start < len(keys); start += chunkSize {
		end := start + chunkSize
		if end > len(keys) {
			end = len(keys)
		}

		query := url.Values{}
		query.Set("keys", strings.Join(keys[start:end], ","))

		var page issuePage
		if err := t.rest.getJSON(ctx, "/api/issues", query, &page); err != nil {
			return nil, fmt.Errorf("tracker issues fetch: %w", err)
		}
		for _, doc := range page.Issues {
			result[doc.Key] = doc.toMeta()
		}
	}

	return result, nil
}

// SearchIssues pages through issues matching the filter.
func (t *HTTPTracker) SearchIssues(ctx context.Context, filter IssueFilter) ([]IssueMeta, error) {
	var all []IssueMeta

	for offset := 0; ; offset += defaultPageSize {
		query := url.Values{}
		query.Set("work_package", string(filter.WorkPackageID))
		if len(filter.IssueTypes) > 0 {
			query.Set("issue_types", strings.Join(filter.IssueTypes, ","))
		}
		if !filter.CreatedFrom.IsZero() {
			query.Set("created_from", filter.CreatedFrom.UTC().Format(time.RFC3339))
		}
		if !filter.CreatedTo.IsZero() {
			query.Set("created_to", filter.CreatedTo.UTC().Format(time.RFC3339))
		}
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(defaultPageSize))

		var page issuePage
		if err := t.rest.getJSON(ctx, "/api/issues/search", query, &page); err != nil {
			return nil, fmt.Errorf("tracker search: %w", err)
		}
		for _, doc := range page.Issues {
			all = append(all, doc.toMeta())
		}

		if offset+len(page.Issues) >= page.Total || len(page.Issues) == 0 {
			break
		}
	}

	return all, nil
}

// =============================================================================
// TIME LOGGING
// =============================================================================

// HTTPTimeLog implements TimeLogClient against the time-logging REST API.
type HTTPTimeLog struct {
	rest restClient
}

// NewHTTPTimeLog creates a time-log client for the given base URL and token.
func NewHTTPTimeLog(baseURL, token string) *HTTPTimeLog {
	return &HTTPTimeLog{rest: newRESTClient(baseURL, token)}
}

type worklogPage struct {
	Worklogs []worklogDoc `json:"worklogs"`
	Total    int          `json:"total"`
}

type worklogDoc struct {
	ID        string `json:"id"`
	IssueKey  string `json:"issue_key"`
	Author    string `json:"author"`
	Started   string `json:"started"`
	Seconds   int    `json:"seconds"`
	ManualTag string `json:"manual_tag"`
}

// Worklogs pages through reported entries for an account key in [from, to].
func (t *HTTPTimeLog) Worklogs(ctx context.Context, accountKey string, from, to time.Time) ([]RawWorklog, error) {
	var all []RawWorklog

	for offset := 0; ; offset += defaultPageSize {
		query := url.Values{}
		query.Set("account", accountKey)
		query.Set("from", from.UTC().Format(time.RFC3339))
		query.Set("to", to.UTC().Format(time.RFC3339))
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(defaultPageSize))

		var page worklogPage
		if err := t.rest.getJSON(ctx, "/api/worklogs", query, &page); err != nil {
			return nil, fmt.Errorf("time-log fetch: %w", err)
		}
		for _, doc := range page.Worklogs {
			started, err := time.Parse(time.RFC3339, doc.Started)
			if err != nil {
				return nil, fmt.Errorf("worklog %s: bad started timestamp %q", doc.ID, doc.Started)
			}
			all = append(all, RawWorklog{
				ID:        doc.ID,
				IssueKey:  doc.IssueKey,
				Author:    doc.Author,
				Started:   started,
				Seconds:   doc.Seconds,
				ManualTag: doc.ManualTag,
			})
		}

		if offset+len(page.Worklogs) >= page.Total || len(page.Worklogs) == 0 {
			break
		}
	}

	return all, nil
}
