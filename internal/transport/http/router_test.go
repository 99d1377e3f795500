package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz-widget-service/internal/app"
	"quiz-widget-service/internal/domain"
	"quiz-widget-service/internal/infra/memory"
)

func newTestServer(t *testing.T, quizzes app.QuizStore) *httptest.Server {
	t.Helper()
	if quizzes == nil {
		quizzes = memory.NewQuizCache(memory.NewQuizStore(), time.Minute)
	}
	service := app.NewQuizService(memory.NewSessionStore(0), quizzes)
	router := NewRouter(service, StaticAuthenticator{}, RouterConfig{
		Metadata: ResourceMetadata{
			Resource:             "https://quiz.example.com",
			AuthorizationServers: []string{"https://auth.example.com"},
			ScopesSupported:      []string{"quiz:read", "quiz:write"},
		},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp
}

func TestRESTSessionFlow(t *testing.T) {
	server := newTestServer(t, nil)

	var view domain.SessionView
	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions", "", samplePayload(), &view)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if view.SessionID == "" || view.Total != 2 || view.Title != "Arithmetic" {
		t.Fatalf("unexpected view %+v", view)
	}
	base := server.URL + "/api/sessions/" + view.SessionID

	resp = doJSON(t, http.MethodPost, base+"/answer", "", map[string]int{"optionIndex": 1}, &view)
	if resp.StatusCode != http.StatusOK || view.SelectedOption == nil || *view.SelectedOption != 1 {
		t.Fatalf("answer: status %d, view %+v", resp.StatusCode, view)
	}
	if view.CorrectOption == nil || *view.CorrectOption != 1 {
		t.Fatalf("expected correct option revealed after answering")
	}

	var nav app.NavResult
	doJSON(t, http.MethodPost, base+"/next", "", nil, &nav)
	if !nav.Moved || nav.View.CurrentIndex != 1 {
		t.Fatalf("expected move, got %+v", nav)
	}
	doJSON(t, http.MethodPost, base+"/answer", "", map[string]int{"optionIndex": 1}, nil)
	doJSON(t, http.MethodPost, base+"/next", "", nil, &nav)
	if !nav.Completed || nav.View.Results == nil || nav.View.Results.Score != 2 || nav.View.Results.Accuracy != 100 {
		t.Fatalf("expected completed perfect run, got %+v", nav)
	}

	doJSON(t, http.MethodPost, base+"/goto", "", map[string]int{"index": 0}, &nav)
	if !nav.Moved || nav.View.CurrentIndex != 0 {
		t.Fatalf("expected goto 0, got %+v", nav)
	}

	doJSON(t, http.MethodPost, base+"/retake", "", nil, &view)
	if view.Completed || view.AnsweredCount != 0 {
		t.Fatalf("expected reset view, got %+v", view)
	}

	resp = doJSON(t, http.MethodDelete, base, "", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, base, "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after end, got %d", resp.StatusCode)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	server := newTestServer(t, nil)

	var body errorPayload
	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions", "", domain.WidgetPayload{}, &body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty quiz, got %d", resp.StatusCode)
	}

	bad := samplePayload()
	bad.Data.Questions[1].Options[0].IsCorrect = true
	resp = doJSON(t, http.MethodPost, server.URL+"/api/sessions", "", bad, &body)
	if resp.StatusCode != http.StatusBadRequest || body.Kind != string(domain.KindCorrectOption) {
		t.Fatalf("expected correct-option validation error, got %d %+v", resp.StatusCode, body)
	}

	var view domain.SessionView
	doJSON(t, http.MethodPost, server.URL+"/api/sessions", "", samplePayload(), &view)
	resp = doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+view.SessionID+"/answer", "", map[string]int{"optionIndex": 4}, &body)
	if resp.StatusCode != http.StatusBadRequest || body.Kind != string(domain.KindOutOfRange) {
		t.Fatalf("expected out-of-range error, got %d %+v", resp.StatusCode, body)
	}
	resp = doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+view.SessionID+"/answer", "", map[string]string{}, &body)
	if resp.StatusCode != http.StatusBadRequest || body.Field != "optionIndex" {
		t.Fatalf("expected missing optionIndex, got %d %+v", resp.StatusCode, body)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/sessions/missing/next", "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSaveRequiresBearer(t *testing.T) {
	server := newTestServer(t, nil)

	var view domain.SessionView
	doJSON(t, http.MethodPost, server.URL+"/api/sessions", "", samplePayload(), &view)

	var body statusBody
	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+view.SessionID+"/save", "", nil, &body)
	if resp.StatusCode != http.StatusUnauthorized || body.Success {
		t.Fatalf("expected 401, got %d %+v", resp.StatusCode, body)
	}
	challenge := resp.Header.Get("WWW-Authenticate")
	want := `resource_metadata="https://quiz.example.com/.well-known/oauth-protected-resource"`
	if !strings.HasPrefix(challenge, "Bearer ") || !strings.Contains(challenge, want) {
		t.Fatalf("unexpected challenge %q", challenge)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/quiz", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on latest quiz, got %d", resp.StatusCode)
	}
}

func TestSaveLatestAndReplay(t *testing.T) {
	server := newTestServer(t, nil)

	var view domain.SessionView
	doJSON(t, http.MethodPost, server.URL+"/api/sessions", "", samplePayload(), &view)
	doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+view.SessionID+"/answer", "", map[string]int{"optionIndex": 2}, nil)

	var saved quizBody
	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+view.SessionID+"/save", "alice", map[string]bool{"includeAnswers": true}, &saved)
	if resp.StatusCode != http.StatusOK || !saved.Success || saved.QuizID == "" {
		t.Fatalf("save: %d %+v", resp.StatusCode, saved)
	}

	var latest quizBody
	resp = doJSON(t, http.MethodGet, server.URL+"/api/quiz", "alice", nil, &latest)
	if resp.StatusCode != http.StatusOK || !latest.Success || latest.Quiz == nil {
		t.Fatalf("latest: %d %+v", resp.StatusCode, latest)
	}
	if latest.QuizID != saved.QuizID || latest.Quiz.Data.Title != "Arithmetic" || latest.Quiz.Language != "en" {
		t.Fatalf("unexpected latest quiz %+v", latest)
	}

	var other statusBody
	resp = doJSON(t, http.MethodGet, server.URL+"/api/quiz", "bob", nil, &other)
	if resp.StatusCode != http.StatusNotFound || other.Success {
		t.Fatalf("expected bob to have no quiz, got %d %+v", resp.StatusCode, other)
	}

	var replay domain.SessionView
	resp = doJSON(t, http.MethodPost, server.URL+"/api/quiz/"+saved.QuizID+"/sessions", "alice", nil, &replay)
	if resp.StatusCode != http.StatusCreated || replay.SessionID == view.SessionID || replay.AnsweredCount != 0 {
		t.Fatalf("replay: %d %+v", resp.StatusCode, replay)
	}
}

func TestSaveFailureIsBadGateway(t *testing.T) {
	server := newTestServer(t, brokenQuizStore{})

	var view domain.SessionView
	doJSON(t, http.MethodPost, server.URL+"/api/sessions", "", samplePayload(), &view)
	resp := doJSON(t, http.MethodPost, server.URL+"/api/sessions/"+view.SessionID+"/save", "alice", nil, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	doJSON(t, http.MethodGet, server.URL+"/api/sessions/"+view.SessionID, "", nil, &view)
	if view.CurrentIndex != 0 || view.Completed {
		t.Fatalf("failed save changed the session: %+v", view)
	}
}

func TestResourceMetadataAndHealth(t *testing.T) {
	server := newTestServer(t, nil)

	var meta ResourceMetadata
	resp := doJSON(t, http.MethodGet, server.URL+"/.well-known/oauth-protected-resource", "", nil, &meta)
	if resp.StatusCode != http.StatusOK || meta.Resource != "https://quiz.example.com" || len(meta.ScopesSupported) != 2 {
		t.Fatalf("unexpected metadata %d %+v", resp.StatusCode, meta)
	}

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
}

func TestAuthorizationServerMetadata(t *testing.T) {
	server := newTestServer(t, nil)
	resp := doJSON(t, http.MethodGet, server.URL+"/.well-known/oauth-authorization-server", "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without a source, got %d", resp.StatusCode)
	}

	service := app.NewQuizService(memory.NewSessionStore(0), memory.NewQuizStore())
	docs := staticAuthServer(`{"issuer":"https://auth.example.com"}`)
	proxied := httptest.NewServer(NewRouter(service, StaticAuthenticator{}, RouterConfig{AuthServer: docs}))
	defer proxied.Close()

	var meta map[string]string
	resp = doJSON(t, http.MethodGet, proxied.URL+"/.well-known/oauth-authorization-server", "", nil, &meta)
	if resp.StatusCode != http.StatusOK || meta["issuer"] != "https://auth.example.com" {
		t.Fatalf("unexpected discovery response %d %v", resp.StatusCode, meta)
	}

	failing := httptest.NewServer(NewRouter(service, StaticAuthenticator{}, RouterConfig{AuthServer: staticAuthServer("")}))
	defer failing.Close()
	resp = doJSON(t, http.MethodGet, failing.URL+"/.well-known/oauth-authorization-server", "", nil, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 when the backend fails, got %d", resp.StatusCode)
	}
}

// staticAuthServer serves a fixed discovery document; empty means the backend is down.
type staticAuthServer string

func (s staticAuthServer) AuthorizationServerMetadata(context.Context) (json.RawMessage, error) {
	if s == "" {
		return nil, errors.New("backend down")
	}
	return json.RawMessage(s), nil
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyQuiz, http.StatusBadRequest},
		{domain.NewValidationError(domain.KindOptionCount, "options", "bad"), http.StatusBadRequest},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrQuizNotFound, http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("%w: %w", domain.ErrSaveFailed, errors.New("boom")), http.StatusBadGateway},
		{fmt.Errorf("%w: %w", domain.ErrSaveFailed, domain.ErrUnauthorized), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v)=%d, want %d", tc.err, got, tc.want)
		}
	}
}

type brokenQuizStore struct{}

func (brokenQuizStore) SaveQuiz(context.Context, domain.Principal, domain.SaveBundle) (domain.SavedQuiz, error) {
	return domain.SavedQuiz{}, errors.New("backend down")
}

func (brokenQuizStore) LatestQuiz(context.Context, domain.Principal) (domain.SavedQuiz, error) {
	return domain.SavedQuiz{}, domain.ErrQuizNotFound
}

func (brokenQuizStore) GetQuiz(context.Context, domain.Principal, string) (domain.SavedQuiz, error) {
	return domain.SavedQuiz{}, domain.ErrQuizNotFound
}

func samplePayload() domain.WidgetPayload {
	return domain.WidgetPayload{
		Data: domain.QuizData{
			Title: "Arithmetic",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", IsCorrect: true},
						{Text: "5"},
						{Text: "22"},
					},
				},
				{
					ID:     "q2",
					Prompt: "What is $3^2$?",
					Options: []domain.Option{
						{Text: "6"},
						{Text: "9", IsCorrect: true},
						{Text: "12"},
						{Text: "1"},
					},
				},
			},
		},
	}
}
