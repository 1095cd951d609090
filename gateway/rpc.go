package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

// StatusError carries a non-2xx response from the data service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("data service returned %d: %s", e.Code, e.Body)
}

// RPC reaches the task tables through a PostgREST endpoint, using the
// stored procedures for board queries and plain table routes for the rest.
type RPC struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRPC creates a client for baseURL (without the /rest/v1 suffix).
func NewRPC(baseURL, apiKey string, client *http.Client) *RPC {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RPC{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

type filterParams struct {
	TaskStatus        string     `json:"task_status"`
	CategoryFilter    *string    `json:"category_filter"`
	SubcategoryFilter *string    `json:"subcategory_filter"`
	DateFrom          *time.Time `json:"date_from"`
	DateTo            *time.Time `json:"date_to"`
	SearchQuery       *string    `json:"search_query"`
	CountryFilter     []string   `json:"country_filter"`
	BudgetType        *string    `json:"budget_type"`
	PriceFrom         *float64   `json:"price_from"`
	PriceTo           *float64   `json:"price_to"`
}

type pageParams struct {
	filterParams
	LimitCount     int        `json:"limit_count"`
	OffsetCount    int        `json:"offset_count"`
	AfterCreatedAt *time.Time `json:"after_created_at"`
	AfterID        *string    `json:"after_id"`
}

func newFilterParams(status domain.Status, f domain.FilterSet) filterParams {
	p := filterParams{
		TaskStatus:        string(status),
		CategoryFilter:    optional(f.Category),
		SubcategoryFilter: optional(f.Subcategory),
		DateFrom:          f.CreatedFrom,
		DateTo:            f.CreatedTo,
		SearchQuery:       optional(strings.TrimSpace(f.Search)),
		BudgetType:        optional(string(f.BudgetType)),
		PriceFrom:         f.PriceMin,
		PriceTo:           f.PriceMax,
	}
	if len(f.Countries) > 0 {
		p.CountryFilter = f.Countries
	}
	return p
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *RPC) FetchPage(ctx context.Context, status domain.Status, filters domain.FilterSet, page PageSpec) ([]domain.Task, error) {
	params := pageParams{filterParams: newFilterParams(status, filters), LimitCount: page.Limit, OffsetCount: page.Offset}
	if page.After != nil {
		at, id := page.After.CreatedAt, page.After.ID
		params.AfterCreatedAt, params.AfterID, params.OffsetCount = &at, &id, 0
	}
	tasks := []domain.Task{}
	if err := r.do(ctx, http.MethodPost, "/rest/v1/rpc/get_tasks_by_status", nil, params, &tasks, nil); err != nil {
		return nil, fmt.Errorf("fetch %s page: %w", status, err)
	}
	return tasks, nil
}

func (r *RPC) CountByStatus(ctx context.Context, status domain.Status, filters domain.FilterSet) (int, error) {
	var n int
	if err := r.do(ctx, http.MethodPost, "/rest/v1/rpc/count_tasks_by_status", nil, newFilterParams(status, filters), &n, nil); err != nil {
		return 0, fmt.Errorf("count %s: %w", status, err)
	}
	return n, nil
}

func (r *RPC) UpdateStatus(ctx context.Context, taskID string, status domain.Status) error {
	body := map[string]string{"task_id": taskID, "new_status": string(status)}
	if err := r.do(ctx, http.MethodPost, "/rest/v1/rpc/update_task_status", nil, body, nil, nil); err != nil {
		return fmt.Errorf("update status of %s: %w", taskID, err)
	}
	return nil
}

func (r *RPC) ListDistinctValues(ctx context.Context, column LookupColumn) ([]string, error) {
	if !column.Valid() {
		return nil, fmt.Errorf("unknown lookup column %q", column)
	}
	values := []string{}
	body := map[string]string{"column_name": string(column)}
	if err := r.do(ctx, http.MethodPost, "/rest/v1/rpc/get_distinct_values", nil, body, &values, nil); err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	return values, nil
}

func (r *RPC) SubcategoryMap(ctx context.Context) (map[string][]string, error) {
	var pairs []struct {
		Category    string `json:"category"`
		Subcategory string `json:"subcategory"`
	}
	if err := r.do(ctx, http.MethodPost, "/rest/v1/rpc/get_subcategory_map", nil, struct{}{}, &pairs, nil); err != nil {
		return nil, fmt.Errorf("subcategory map: %w", err)
	}
	out := map[string][]string{}
	for _, p := range pairs {
		out[p.Category] = append(out[p.Category], p.Subcategory)
	}
	return out, nil
}

func (r *RPC) Discarded(ctx context.Context, limit int) ([]domain.Task, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("status", "eq."+string(domain.StatusDiscarded))
	q.Set("order", "created_at.desc,id.desc")
	q.Set("limit", strconv.Itoa(limit))
	tasks := []domain.Task{}
	if err := r.do(ctx, http.MethodGet, "/rest/v1/projects", q, nil, &tasks, nil); err != nil {
		return nil, fmt.Errorf("discarded: %w", err)
	}
	return tasks, nil
}

func (r *RPC) TaskDetails(ctx context.Context, taskID string) (domain.Task, error) {
	var tasks []domain.Task
	if err := r.do(ctx, http.MethodPost, "/rest/v1/rpc/get_task_details", nil, map[string]string{"task_id": taskID}, &tasks, nil); err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, err)
	}
	if len(tasks) == 0 {
		return domain.Task{}, ErrNotFound
	}
	return tasks[0], nil
}

func (r *RPC) Comments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	q := url.Values{}
	q.Set("select", "id,task_id,content,created_at,user_email,updated_at")
	q.Set("task_id", "eq."+taskID)
	q.Set("order", "created_at.desc")
	comments := []domain.Comment{}
	if err := r.do(ctx, http.MethodGet, "/rest/v1/comments", q, nil, &comments, nil); err != nil {
		return nil, fmt.Errorf("comments of %s: %w", taskID, err)
	}
	for i := range comments {
		if comments[i].UserEmail == "" {
			comments[i].UserEmail = domain.AnonymousAuthor
		}
	}
	return comments, nil
}

func (r *RPC) AddComment(ctx context.Context, taskID, content, userEmail string) (domain.Comment, error) {
	c, err := newComment(taskID, content, userEmail)
	if err != nil {
		return domain.Comment{}, err
	}
	var created []domain.Comment
	headers := http.Header{"Prefer": []string{"return=representation"}}
	if err := r.do(ctx, http.MethodPost, "/rest/v1/comments", nil, []domain.Comment{c}, &created, headers); err != nil {
		return domain.Comment{}, fmt.Errorf("add comment to %s: %w", taskID, err)
	}
	if len(created) > 0 {
		return created[0], nil
	}
	return c, nil
}

func (r *RPC) do(ctx context.Context, method, path string, query url.Values, body, out any, headers http.Header) error {
	target := r.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
