package domainflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal domainflow HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type ChecklistItem struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Domain represents the API domain model.
type Domain struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	Description    string `json:"description,omitempty"`
	Status         string `json:"status"`
	Pinned         bool   `json:"pinned"`
	PinnedOrder    *int   `json:"pinned_order,omitempty"`
	CreatedAt      string `json:"created_at"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
	Progress       int    `json:"progress"`
}

type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	NotStarted int `json:"not_started"`
}

type DomainList struct {
	Items []Domain `json:"items"`
	Stats Stats    `json:"stats"`
}

// TemplateInput is the body of template and manual task creation.
type TemplateInput struct {
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category"`
	Priority       string          `json:"priority,omitempty"`
	EstimatedHours *float64        `json:"estimated_hours,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Dependencies   []string        `json:"dependencies,omitempty"`
	ReferenceLinks []string        `json:"reference_links,omitempty"`
	ChecklistItems []ChecklistItem `json:"checklist_items,omitempty"`
}

type Template struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Category       string          `json:"category"`
	Priority       string          `json:"priority"`
	Tags           []string        `json:"tags"`
	Dependencies   []string        `json:"dependencies"`
	ChecklistItems []ChecklistItem `json:"checklist_items"`
}

type TemplateSubtask struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	Title      string `json:"title"`
	OrderIndex int    `json:"order_index"`
}

// Task represents the API task model with its subtask summary.
type Task struct {
	ID                   string          `json:"id"`
	DomainID             string          `json:"domain_id"`
	TemplateID           *string         `json:"template_id,omitempty"`
	Title                string          `json:"title"`
	Category             string          `json:"category"`
	Priority             string          `json:"priority"`
	Tags                 []string        `json:"tags"`
	Dependencies         []string        `json:"dependencies"`
	ChecklistItems       []ChecklistItem `json:"checklist_items"`
	Completed            bool            `json:"completed"`
	CompletedAt          *string         `json:"completed_at,omitempty"`
	SubtasksTotal        int             `json:"subtasks_total"`
	SubtasksCompleted    int             `json:"subtasks_completed"`
	EffectivelyCompleted bool            `json:"effectively_completed"`
}

type TaskList struct {
	Items        []Task   `json:"items"`
	Tags         []string `json:"tags"`
	Dependencies []string `json:"dependencies"`
}

type Subtask struct {
	ID           string  `json:"id"`
	ParentTaskID string  `json:"parent_task_id"`
	Title        string  `json:"title"`
	Completed    bool    `json:"completed"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

type Comment struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	TaskID    *string `json:"task_id,omitempty"`
	SubtaskID *string `json:"subtask_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// Change is one row of the change feed.
type Change struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	DomainID   string `json:"domain_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
}

type ChangeList struct {
	Items    []Change `json:"items"`
	LatestID int64    `json:"latest_id"`
}

type DomainFilters struct {
	SortBy           string `json:"sortBy"`
	FilterTag        string `json:"filterTag"`
	FilterDependency string `json:"filterDependency"`
}

type Preferences struct {
	Version           int           `json:"version"`
	SortBy            string        `json:"sortBy"`
	SearchQuery       string        `json:"searchQuery"`
	ShowClosedDomains bool          `json:"showClosedDomains"`
	DomainFilters     DomainFilters `json:"domainFilters"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListDomains lists domains. Empty arguments fall back to the stored
// preferences on the server.
func (c *Client) ListDomains(ctx context.Context, query, sortBy string, showClosed *bool) (DomainList, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if sortBy != "" {
		q.Set("sort_by", sortBy)
	}
	if showClosed != nil {
		q.Set("show_closed", fmt.Sprintf("%t", *showClosed))
	}
	var resp DomainList
	err := c.do(ctx, http.MethodGet, withQuery("domains", q), nil, &resp)
	return resp, err
}

// CreateDomain creates a domain; every template becomes one of its tasks.
func (c *Client) CreateDomain(ctx context.Context, name, siteURL, description string) (Domain, error) {
	body := map[string]any{"name": name, "url": siteURL}
	if description != "" {
		body["description"] = description
	}
	var resp Domain
	err := c.do(ctx, http.MethodPost, "domains", body, &resp)
	return resp, err
}

func (c *Client) GetDomain(ctx context.Context, id string) (Domain, error) {
	var resp Domain
	err := c.do(ctx, http.MethodGet, "domains/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// DomainAction runs close, reopen, pin or unpin.
func (c *Client) DomainAction(ctx context.Context, id, action string) (Domain, error) {
	var resp Domain
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("domains/%s/%s", url.PathEscape(id), action), nil, &resp)
	return resp, err
}

// DeleteDomain deletes a domain with everything under it.
func (c *Client) DeleteDomain(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("domains/%s?confirm=true", url.PathEscape(id)), nil, nil)
}

func (c *Client) DomainStats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "domains/stats", nil, &resp)
	return resp, err
}

func (c *Client) CreateTemplate(ctx context.Context, in TemplateInput) (Template, error) {
	var resp Template
	err := c.do(ctx, http.MethodPost, "templates", in, &resp)
	return resp, err
}

func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var resp []Template
	err := c.do(ctx, http.MethodGet, "templates", nil, &resp)
	return resp, err
}

func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("templates/%s?confirm=true", url.PathEscape(id)), nil, nil)
}

func (c *Client) AddTemplateSubtask(ctx context.Context, templateID, title string) (TemplateSubtask, error) {
	var resp TemplateSubtask
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("templates/%s/subtasks", url.PathEscape(templateID)), map[string]any{"title": title}, &resp)
	return resp, err
}

func (c *Client) MoveTemplateSubtask(ctx context.Context, id string, index int) ([]TemplateSubtask, error) {
	var resp []TemplateSubtask
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("template-subtasks/%s/move", url.PathEscape(id)), map[string]any{"index": index}, &resp)
	return resp, err
}

// ListTasks lists a domain's tasks. Empty arguments fall back to the stored
// domain filters.
func (c *Client) ListTasks(ctx context.Context, domainID, sortBy, tag, dependency string) (TaskList, error) {
	q := url.Values{}
	if sortBy != "" {
		q.Set("sort_by", sortBy)
	}
	if tag != "" {
		q.Set("tag", tag)
	}
	if dependency != "" {
		q.Set("dependency", dependency)
	}
	var resp TaskList
	err := c.do(ctx, http.MethodGet, withQuery(fmt.Sprintf("domains/%s/tasks", url.PathEscape(domainID)), q), nil, &resp)
	return resp, err
}

func (c *Client) SetTaskCompleted(ctx context.Context, taskID string, completed bool) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("tasks/%s/completion", url.PathEscape(taskID)), map[string]any{"completed": completed}, &resp)
	return resp, err
}

func (c *Client) ListSubtasks(ctx context.Context, taskID string) ([]Subtask, error) {
	var resp []Subtask
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%s/subtasks", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

func (c *Client) SetSubtaskCompleted(ctx context.Context, id string, completed bool) (Subtask, error) {
	var resp Subtask
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("subtasks/%s/completion", url.PathEscape(id)), map[string]any{"completed": completed}, &resp)
	return resp, err
}

// AddTaskComment comments on a task.
func (c *Client) AddTaskComment(ctx context.Context, taskID, content string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/comments", url.PathEscape(taskID)), map[string]any{"content": content}, &resp)
	return resp, err
}

func (c *Client) ListTaskComments(ctx context.Context, taskID string) ([]Comment, error) {
	var resp []Comment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%s/comments", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

func (c *Client) Preferences(ctx context.Context) (Preferences, error) {
	var resp Preferences
	err := c.do(ctx, http.MethodGet, "preferences", nil, &resp)
	return resp, err
}

// SavePreferences merges patch into the stored preferences. Keys follow
// the blob's camelCase names.
func (c *Client) SavePreferences(ctx context.Context, patch map[string]any) (Preferences, error) {
	var resp Preferences
	err := c.do(ctx, http.MethodPatch, "preferences", patch, &resp)
	return resp, err
}

// Changes returns change rows of a domain after the given id.
func (c *Client) Changes(ctx context.Context, domainID string, after int64) (ChangeList, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", fmt.Sprintf("%d", after))
	}
	var resp ChangeList
	err := c.do(ctx, http.MethodGet, withQuery(fmt.Sprintf("domains/%s/changes", url.PathEscape(domainID)), q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
