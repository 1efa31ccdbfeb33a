// Package httpapi is the HTTP JSON implementation of the remote survey
// API. Transport failures and status codes are mapped onto the remote
// error taxonomy so callers branch on kind, never on message strings.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/openfield/fieldsync/internal/capture/domain"
	"github.com/openfield/fieldsync/internal/capture/remote"
	"github.com/openfield/fieldsync/internal/platform/timeouts"
)

// Client talks to the survey backend over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the API at baseURL. The token, when set, is
// sent as a bearer credential on every request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeouts.RemoteCall},
	}
}

var _ remote.Store = (*Client)(nil)

// CreateRespondent registers a respondent record.
func (c *Client) CreateRespondent(ctx context.Context, data remote.RespondentData) (remote.Respondent, error) {
	var out remote.Respondent
	if err := c.do(ctx, http.MethodPost, "/respondents", data, &out); err != nil {
		return remote.Respondent{}, err
	}
	return out, nil
}

// FindRespondent resolves a respondent record by its external id.
func (c *Client) FindRespondent(ctx context.Context, projectID, respondentID string) (remote.Respondent, error) {
	path := fmt.Sprintf("/projects/%s/respondents/%s",
		url.PathEscape(projectID), url.PathEscape(respondentID))
	var out remote.Respondent
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return remote.Respondent{}, err
	}
	return out, nil
}

// UpdateRespondentStatus flips a respondent's lifecycle status.
func (c *Client) UpdateRespondentStatus(ctx context.Context, databaseID string, status remote.Status) error {
	path := "/respondents/" + url.PathEscape(databaseID) + "/status"
	body := map[string]remote.Status{"status": status}
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// SubmitResponse persists one answered question.
func (c *Client) SubmitResponse(ctx context.Context, data remote.ResponseData) (remote.Response, error) {
	var out remote.Response
	if err := c.do(ctx, http.MethodPost, "/responses", data, &out); err != nil {
		return remote.Response{}, err
	}
	return out, nil
}

// GetProjects lists the projects available to this device.
func (c *Client) GetProjects(ctx context.Context) ([]remote.Project, error) {
	var out []remote.Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetQuestions lists every question of a project.
func (c *Client) GetQuestions(ctx context.Context, projectID string) ([]domain.Question, error) {
	path := "/projects/" + url.PathEscape(projectID) + "/questions"
	var out []domain.Question
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetQuestionsForRespondent lists the questions scoped to a bundle.
func (c *Client) GetQuestionsForRespondent(ctx context.Context, projectID string, filters remote.QuestionFilters, page remote.Page) ([]domain.Question, error) {
	query := url.Values{}
	if filters.RespondentType != "" {
		query.Set("respondent_type", filters.RespondentType)
	}
	if filters.Commodity != "" {
		query.Set("commodity", filters.Commodity)
	}
	if filters.Country != "" {
		query.Set("country", filters.Country)
	}
	if page.Limit > 0 {
		query.Set("offset", strconv.Itoa(page.Offset))
		query.Set("limit", strconv.Itoa(page.Limit))
	}
	path := "/projects/" + url.PathEscape(projectID) + "/questions"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []domain.Question
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDraftResponse upserts a named draft server-side.
func (c *Client) SaveDraftResponse(ctx context.Context, data remote.DraftData) error {
	return c.do(ctx, http.MethodPut, "/drafts", data, nil)
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remote.NetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, resp.Body)
	}
	if target == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return remote.ServerError(fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

func classifyStatus(status int, body io.Reader) error {
	var payload apiError
	message := http.StatusText(status)
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Message != "" {
		message = payload.Message
	}
	switch {
	case status == http.StatusConflict:
		return remote.ConflictError(message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return remote.ValidationError(message)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests ||
		status == http.StatusBadGateway || status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout:
		return remote.NetworkError(fmt.Errorf("status %d: %s", status, message))
	default:
		return remote.ServerError(message)
	}
}
