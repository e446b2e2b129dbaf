// Package backend is the HTTP client for the course backend's problem endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stemsi/problem-bridge/internal/form"
	"github.com/stemsi/problem-bridge/internal/model"
)

const (
	questionPath      = "/courses/question/"
	questionGradePath = "/courses/question/grade/"
)

// RenderParams are the optional render flags. Nil fields are left out of the query.
type RenderParams struct {
	WorkbookID                   *int
	Readonly                     *bool
	StudentTopicAssessmentInfoID *int
	PreviewPath                  *string
	PreviewSeed                  *int
}

// ParamsFor derives render parameters from a submission context.
func ParamsFor(sc model.SubmissionContext) RenderParams {
	readonly := sc.Readonly
	return RenderParams{
		WorkbookID:                   sc.WorkbookID,
		Readonly:                     &readonly,
		StudentTopicAssessmentInfoID: sc.StudentTopicAssessmentInfoID,
		PreviewPath:                  sc.PreviewPath,
		PreviewSeed:                  sc.PreviewSeed,
	}
}

func (p RenderParams) query() url.Values {
	q := url.Values{}
	if p.WorkbookID != nil {
		q.Set("workbookId", strconv.Itoa(*p.WorkbookID))
	}
	if p.Readonly != nil {
		q.Set("readonly", strconv.FormatBool(*p.Readonly))
	}
	if p.StudentTopicAssessmentInfoID != nil {
		q.Set("studentTopicAssessmentInfoId", strconv.Itoa(*p.StudentTopicAssessmentInfoID))
	}
	if p.PreviewPath != nil {
		q.Set("previewPath", *p.PreviewPath)
	}
	if p.PreviewSeed != nil {
		q.Set("previewSeed", strconv.Itoa(*p.PreviewSeed))
	}
	return q
}

// APIError is a non-2xx backend answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout of zero means none.
	Timeout time.Duration
	// Token is sent as a bearer token when set.
	Token string
	HTTP  *http.Client
}

// Client calls the render, save and submit endpoints.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	h := cfg.HTTP
	if h == nil {
		h = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{base: cfg.BaseURL, token: cfg.Token, http: h}
}

// WithToken returns a copy of c that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type rendererData struct {
	RenderedHTML string `json:"renderedHTML"`
}

// Render fetches the renderer HTML for a problem.
func (c *Client) Render(ctx context.Context, problemID int, p RenderParams) (string, error) {
	u := c.base + questionPath + strconv.Itoa(problemID)
	if q := p.query(); len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	var out struct {
		RendererData rendererData `json:"rendererData"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("render problem %d: %w", problemID, err)
	}
	return out.RendererData.RenderedHTML, nil
}

// SaveState checkpoints the current problem state against a grade.
func (c *Client) SaveState(ctx context.Context, gradeID int, state form.Snapshot) (model.SaveResult, error) {
	body, err := json.Marshal(struct {
		CurrentProblemState form.Snapshot `json:"currentProblemState"`
	}{state})
	if err != nil {
		return model.SaveResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.base+questionGradePath+strconv.Itoa(gradeID), bytes.NewReader(body))
	if err != nil {
		return model.SaveResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out model.SaveResult
	if err := c.do(req, &out); err != nil {
		return model.SaveResult{}, fmt.Errorf("save grade %d: %w", gradeID, err)
	}
	return out, nil
}

// Submit posts the form encoding for grading. The body is multipart, like a
// browser FormData upload.
func (c *Client) Submit(ctx context.Context, problemID int, entries form.Entries) (model.SubmitResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, e := range entries {
		if err := mw.WriteField(e.Name, e.Value); err != nil {
			return model.SubmitResult{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return model.SubmitResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+questionPath+strconv.Itoa(problemID), &buf)
	if err != nil {
		return model.SubmitResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		RendererData rendererData       `json:"rendererData"`
		StudentGrade model.StudentGrade `json:"studentGrade"`
	}
	if err := c.do(req, &out); err != nil {
		return model.SubmitResult{}, fmt.Errorf("submit problem %d: %w", problemID, err)
	}
	return model.SubmitResult{
		RenderedHTML: out.RendererData.RenderedHTML,
		StudentGrade: out.StudentGrade,
	}, nil
}

func (c *Client) do(req *http.Request, dst interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if res.StatusCode/100 != 2 {
		return &APIError{Status: res.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("decode response: missing data")
	}
	return json.Unmarshal(env.Data, dst)
}
