package backend

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

	"github.com/google/uuid"

	"quiz-widget-service/internal/domain"
)

const (
	userInfoPath           = "/oauth/internal/oidc/oauth/userinfo"
	authServerMetadataPath = "/oauth/oidc/.well-known/oauth-authorization-server/"
	quizPath               = "/api/quiz"
)

// Client talks to the remote quiz backend. It serves both as a persistence
// collaborator (app.QuizStore) and as a token authenticator.
type Client struct {
	baseURL    string
	appName    string
	appVersion string
	timeZone   string
	http       *http.Client
}

// Options configures a Client; empty fields get defaults.
type Options struct {
	BaseURL    string
	AppName    string
	AppVersion string
	TimeZone   string
	Timeout    time.Duration
}

func NewClient(opts Options) *Client {
	if opts.AppName == "" {
		opts.AppName = "quiz-generator"
	}
	if opts.AppVersion == "" {
		opts.AppVersion = "1.0.0"
	}
	if opts.TimeZone == "" {
		opts.TimeZone = time.Local.String()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		appName:    opts.AppName,
		appVersion: opts.AppVersion,
		timeZone:   opts.TimeZone,
		http:       &http.Client{Timeout: opts.Timeout},
	}
}

type userInfo struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	UserToken string `json:"user_token"`
}

// Authenticate resolves a bearer token through the userinfo endpoint.
func (c *Client) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	var info userInfo
	if err := c.do(ctx, http.MethodGet, userInfoPath, token, nil, &info); err != nil {
		return domain.Principal{}, err
	}
	if info.Sub == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	p := domain.Principal{Subject: info.Sub, Token: info.UserToken}
	if p.Token == "" {
		p.Token = token
	}
	return p, nil
}

// AuthorizationServerMetadata fetches the OAuth authorization server document
// the backend publishes for this app.
func (c *Client) AuthorizationServerMetadata(ctx context.Context) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := c.do(ctx, http.MethodGet, authServerMetadataPath+url.PathEscape(c.appName), "", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) SaveQuiz(ctx context.Context, p domain.Principal, bundle domain.SaveBundle) (domain.SavedQuiz, error) {
	var resp quizEnvelope
	if err := c.do(ctx, http.MethodPost, quizPath, p.Token, bundle, &resp); err != nil {
		return domain.SavedQuiz{}, err
	}
	saved := resp.savedQuiz()
	// the backend may answer with just an id or a status
	if len(saved.Data.Questions) == 0 {
		saved.Data = domain.QuizData{Title: bundle.Title, Description: bundle.Description, Questions: bundle.Questions}
		saved.Answers = bundle.Answers
	}
	if saved.Language == "" {
		saved.Language = bundle.Language
	}
	saved.OwnerID = p.Subject
	return saved, nil
}

func (c *Client) LatestQuiz(ctx context.Context, p domain.Principal) (domain.SavedQuiz, error) {
	var resp quizEnvelope
	if err := c.do(ctx, http.MethodGet, quizPath, p.Token, nil, &resp); err != nil {
		return domain.SavedQuiz{}, err
	}
	saved := resp.savedQuiz()
	if len(saved.Data.Questions) == 0 {
		return domain.SavedQuiz{}, domain.ErrQuizNotFound
	}
	saved.OwnerID = p.Subject
	return saved, nil
}

func (c *Client) GetQuiz(ctx context.Context, p domain.Principal, id string) (domain.SavedQuiz, error) {
	var resp quizEnvelope
	if err := c.do(ctx, http.MethodGet, quizPath+"/"+url.PathEscape(id), p.Token, nil, &resp); err != nil {
		return domain.SavedQuiz{}, err
	}
	saved := resp.savedQuiz()
	if len(saved.Data.Questions) == 0 {
		return domain.SavedQuiz{}, domain.ErrQuizNotFound
	}
	if saved.ID == "" {
		saved.ID = id
	}
	saved.OwnerID = p.Subject
	return saved, nil
}

// quizEnvelope accepts both {language, data:{...}} and a bare quiz object.
type quizEnvelope struct {
	ID          string            `json:"id"`
	Language    string            `json:"language"`
	Data        *domain.QuizData  `json:"data"`
	Answers     []*int            `json:"answers"`
	CreatedAt   time.Time         `json:"createdAt"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Questions   []domain.Question `json:"questions"`
}

func (e quizEnvelope) savedQuiz() domain.SavedQuiz {
	q := domain.SavedQuiz{
		ID:        e.ID,
		Language:  e.Language,
		Answers:   e.Answers,
		CreatedAt: e.CreatedAt,
	}
	if e.Data != nil {
		q.Data = *e.Data
	} else {
		q.Data = domain.QuizData{Title: e.Title, Description: e.Description, Questions: e.Questions}
	}
	if q.Language == "" {
		q.Language = domain.DefaultLanguage
	}
	return q
}

type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Name", c.appName)
	req.Header.Set("X-App-Version", c.appVersion)
	req.Header.Set("X-Time-Zone", c.timeZone)
	req.Header.Set("X-Trace-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrQuizNotFound
	case resp.StatusCode >= 300:
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
			return fmt.Errorf("%s %s: %s", method, path, eb.Message)
		}
		return fmt.Errorf("%s %s: HTTP error! status: %d", method, path, resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
