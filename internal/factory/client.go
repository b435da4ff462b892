// Package factory provides a client for the factory monitoring REST API.
// It lists lines and machines, fetches downtime category buckets, the machine
// day view, performance ratio series and per-error-code statistics, and reads
// and writes shift plans.
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rewired-gh/oeewatch/internal/logger"
	"github.com/rewired-gh/oeewatch/internal/models"
)

// Client provides access to the factory API
type Client struct {
	apiBaseURL     string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// ClientConfig holds retry and connection pool settings
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// StatusError is returned for non-2xx responses that are not retried.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// NewClient creates a new factory API client
func NewClient(apiBaseURL string, timeout time.Duration, cfg ...ClientConfig) *Client {
	c := ClientConfig{
		MaxRetries:          3,
		RetryDelayBase:      time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	if len(cfg) > 0 {
		if cfg[0].MaxRetries > 0 {
			c.MaxRetries = cfg[0].MaxRetries
		}
		if cfg[0].RetryDelayBase > 0 {
			c.RetryDelayBase = cfg[0].RetryDelayBase
		}
		if cfg[0].MaxIdleConns > 0 {
			c.MaxIdleConns = cfg[0].MaxIdleConns
		}
		if cfg[0].MaxIdleConnsPerHost > 0 {
			c.MaxIdleConnsPerHost = cfg[0].MaxIdleConnsPerHost
		}
		if cfg[0].IdleConnTimeout > 0 {
			c.IdleConnTimeout = cfg[0].IdleConnTimeout
		}
	}

	return &Client{
		apiBaseURL: apiBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        c.MaxIdleConns,
				MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
				IdleConnTimeout:     c.IdleConnTimeout,
			},
		},
		maxRetries:     c.MaxRetries,
		retryDelayBase: c.RetryDelayBase,
	}
}

// FetchLines retrieves all production lines
func (c *Client) FetchLines(ctx context.Context) ([]models.Line, error) {
	var lines []models.Line
	if err := c.getJSON(ctx, "/api/lines", nil, &lines); err != nil {
		return nil, fmt.Errorf("failed to fetch lines: %w", err)
	}
	return lines, nil
}

// FetchMachines retrieves the machines of a line
func (c *Client) FetchMachines(ctx context.Context, lineID string) ([]models.Machine, error) {
	var machines []models.Machine
	path := fmt.Sprintf("/api/lines/%s/machines", url.PathEscape(lineID))
	if err := c.getJSON(ctx, path, nil, &machines); err != nil {
		return nil, fmt.Errorf("failed to fetch machines for line %s: %w", lineID, err)
	}
	for i := range machines {
		if machines[i].LineID == "" {
			machines[i].LineID = lineID
		}
	}
	return machines, nil
}

// bucketResponse is the {days: [{day, categories}]} shape of the month and year endpoints.
type bucketResponse struct {
	Days []struct {
		Day        json.RawMessage    `json:"day"`
		Categories map[string]float64 `json:"categories"`
	} `json:"days"`
}

func (r bucketResponse) buckets() ([]models.CategoryBucket, error) {
	out := make([]models.CategoryBucket, 0, len(r.Days))
	for _, d := range r.Days {
		label, err := rawLabel(d.Day)
		if err != nil {
			return nil, fmt.Errorf("invalid day label: %w", err)
		}
		out = append(out, models.NewCategoryBucket(label, d.Categories))
	}
	return out, nil
}

// FetchMachineMonth retrieves the per-day category buckets of a machine for a month (1-12)
func (c *Client) FetchMachineMonth(ctx context.Context, machineID string, month int) ([]models.CategoryBucket, error) {
	params := url.Values{}
	params.Set("month", fmt.Sprintf("%d", month))

	var resp bucketResponse
	path := fmt.Sprintf("/api/machines/%s/month", url.PathEscape(machineID))
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch month %d for machine %s: %w", month, machineID, err)
	}
	return resp.buckets()
}

// yearResponse is the {months: [{month, categories}]} shape of the year endpoint.
type yearResponse struct {
	Months []struct {
		Month      json.RawMessage    `json:"month"`
		Categories map[string]float64 `json:"categories"`
	} `json:"months"`
}

func (r yearResponse) buckets() ([]models.CategoryBucket, error) {
	out := make([]models.CategoryBucket, 0, len(r.Months))
	for _, m := range r.Months {
		label, err := rawLabel(m.Month)
		if err != nil {
			return nil, fmt.Errorf("invalid month label: %w", err)
		}
		out = append(out, models.NewCategoryBucket(label, m.Categories))
	}
	return out, nil
}

// FetchMachineYear retrieves the per-month category buckets of a machine for a year
func (c *Client) FetchMachineYear(ctx context.Context, machineID string, year int) ([]models.CategoryBucket, error) {
	params := url.Values{}
	params.Set("year", fmt.Sprintf("%d", year))

	var resp yearResponse
	path := fmt.Sprintf("/api/machines/%s/year", url.PathEscape(machineID))
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch year %d for machine %s: %w", year, machineID, err)
	}
	return resp.buckets()
}

// FetchMachineDay retrieves the single-day view of a machine
func (c *Client) FetchMachineDay(ctx context.Context, machineID, day string) (*models.MachineDay, error) {
	params := url.Values{}
	params.Set("day", day)

	var resp models.MachineDay
	path := fmt.Sprintf("/api/machines/%s/day", url.PathEscape(machineID))
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch day %s for machine %s: %w", day, machineID, err)
	}
	if resp.MachineID == "" {
		resp.MachineID = machineID
	}
	if resp.Day == "" {
		resp.Day = day
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid day %s for machine %s: %w", day, machineID, err)
	}
	return &resp, nil
}

// ratioPoint is one day or month of the ratio endpoints; the label key
// differs between them.
type ratioPoint struct {
	Day           json.RawMessage `json:"day"`
	Month         json.RawMessage `json:"month"`
	OEE           float64         `json:"oee"`
	OKRatio       float64         `json:"ok_ratio"`
	OutputRatio   float64         `json:"output_ratio"`
	ActivityRatio float64         `json:"activity_ratio"`
}

type ratioResponse struct {
	Days   []ratioPoint `json:"days"`
	Months []ratioPoint `json:"months"`
}

func (r ratioResponse) points() ([]models.RatioPoint, error) {
	raw, labelOf := r.Days, func(p ratioPoint) json.RawMessage { return p.Day }
	if len(r.Months) > 0 {
		raw, labelOf = r.Months, func(p ratioPoint) json.RawMessage { return p.Month }
	}

	out := make([]models.RatioPoint, 0, len(raw))
	for _, p := range raw {
		label, err := rawLabel(labelOf(p))
		if err != nil {
			return nil, fmt.Errorf("invalid ratio label: %w", err)
		}
		out = append(out, models.RatioPoint{
			Label:         label,
			OEE:           p.OEE,
			OKRatio:       p.OKRatio,
			OutputRatio:   p.OutputRatio,
			ActivityRatio: p.ActivityRatio,
		})
	}
	return out, nil
}

// FetchMachineMonthRatio retrieves the per-day performance ratios of a machine for a month (1-12)
func (c *Client) FetchMachineMonthRatio(ctx context.Context, machineID string, month int, ratio models.RatioType) ([]models.RatioPoint, error) {
	params := ratioParams(ratio)
	params.Set("month", fmt.Sprintf("%d", month))

	var resp ratioResponse
	path := fmt.Sprintf("/api/machines/%s/month-ratio", url.PathEscape(machineID))
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch month %d ratios for machine %s: %w", month, machineID, err)
	}
	return resp.points()
}

// FetchMachineYearRatio retrieves the per-month performance ratios of a machine for a year
func (c *Client) FetchMachineYearRatio(ctx context.Context, machineID string, year int, ratio models.RatioType) ([]models.RatioPoint, error) {
	params := ratioParams(ratio)
	params.Set("year", fmt.Sprintf("%d", year))

	var resp ratioResponse
	path := fmt.Sprintf("/api/machines/%s/year-ratio", url.PathEscape(machineID))
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch year %d ratios for machine %s: %w", year, machineID, err)
	}
	return resp.points()
}

func ratioParams(ratio models.RatioType) url.Values {
	params := url.Values{}
	if ratio != "" && ratio != models.RatioAll {
		params.Set("data", string(ratio))
	}
	return params
}

// Period selects the window of an error analysis query.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ErrorQuery selects error statistics for a line (or one machine of it).
type ErrorQuery struct {
	LineID    string
	MachineID string // empty or models.AllMachines for the whole line
	Period    Period
	Date      string // "2006-01-02" for day, "2006-01" for month
	Metric    models.Metric
}

// FetchErrorAnalysis retrieves per-error-code statistics
func (c *Client) FetchErrorAnalysis(ctx context.Context, q ErrorQuery) ([]models.ErrorRecord, error) {
	if q.Period != PeriodDay && q.Period != PeriodMonth {
		return nil, fmt.Errorf("invalid error analysis period %q", q.Period)
	}

	params := url.Values{}
	params.Set("idline", q.LineID)
	params.Set("idmay", machineParam(q.MachineID))
	if q.Period == PeriodDay {
		params.Set("date", q.Date)
	} else {
		params.Set("month", q.Date)
	}
	params.Set("sort_by", q.Metric.SortBy())

	var records []models.ErrorRecord
	if err := c.getJSON(ctx, "/api/error-analysis/"+string(q.Period), params, &records); err != nil {
		return nil, fmt.Errorf("failed to fetch error analysis for line %s: %w", q.LineID, err)
	}

	valid := records[:0]
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			logger.Warn("Skipping error record %q on line %s: %v", rec.Code, q.LineID, err)
			continue
		}
		valid = append(valid, rec)
	}
	return valid, nil
}

// FetchDayPlans retrieves the shift plans of a line (or one machine) for a day
func (c *Client) FetchDayPlans(ctx context.Context, lineID, machineID, day string) ([]models.ShiftPlan, error) {
	params := url.Values{}
	params.Set("idline", lineID)
	params.Set("idmay", machineParam(machineID))
	params.Set("date", day)

	var plans []models.ShiftPlan
	if err := c.getJSON(ctx, "/api/plans/day", params, &plans); err != nil {
		return nil, fmt.Errorf("failed to fetch day plans for line %s: %w", lineID, err)
	}
	return plans, nil
}

// UpdateDayPlans writes shift plans back to the API
func (c *Client) UpdateDayPlans(ctx context.Context, plans []models.ShiftPlan) error {
	for i := range plans {
		if err := plans[i].Validate(); err != nil {
			return fmt.Errorf("invalid plan %s: %w", plans[i].ID, err)
		}
	}

	body, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("failed to encode plans: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPut, c.apiBaseURL+"/api/plans/day", body)
	if err != nil {
		return fmt.Errorf("failed to update day plans: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	fullURL := c.apiBaseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	resp, err := c.doRequest(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs HTTP request with retry logic.
// Transport errors and 5xx responses are retried with linear backoff; 4xx is returned immediately.
func (c *Client) doRequest(ctx context.Context, method, fullURL string, body []byte) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Debug("Request %s %s failed (attempt %d/%d): %v", method, fullURL, i+1, c.maxRetries, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Debug("Request %s %s returned %d (attempt %d/%d)", method, fullURL, resp.StatusCode, i+1, c.maxRetries)
			continue
		}

		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: fullURL}
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func machineParam(machineID string) string {
	if machineID == "" {
		return models.AllMachines
	}
	return machineID
}

// rawLabel turns a JSON day value (string or number) into a bucket label.
func rawLabel(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
