package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"quiz-widget-service/internal/domain"
)

func TestClientAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != userInfoPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "user-1", "user_token": "inner"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	p, err := c.Authenticate(context.Background(), "good")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Subject != "user-1" || p.Token != "inner" {
		t.Fatalf("unexpected principal %+v", p)
	}

	if _, err := c.Authenticate(context.Background(), "bad"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := c.Authenticate(context.Background(), ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for empty token, got %v", err)
	}
}

func TestClientAuthorizationServerMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != authServerMetadataPath+"quiz-widget" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("discovery must not carry a bearer token")
		}
		_, _ = w.Write([]byte(`{"issuer":"https://auth.example.com","token_endpoint":"https://auth.example.com/token"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, AppName: "quiz-widget"})
	doc, err := c.AuthorizationServerMetadata(context.Background())
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	var meta map[string]string
	if err := json.Unmarshal(doc, &meta); err != nil || meta["issuer"] != "https://auth.example.com" {
		t.Fatalf("unexpected metadata %s, %v", doc, err)
	}
}

func TestClientSaveSendsHeadersAndBundle(t *testing.T) {
	var got domain.SaveBundle
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != quizPath {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "saved-1"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/", AppName: "quiz-widget", TimeZone: "UTC"})
	bundle := domain.SaveBundle{
		Language:  "en",
		Title:     "T",
		Questions: []domain.Question{{ID: "q1", Options: []domain.Option{{Text: "a", IsCorrect: true}}}},
	}
	saved, err := c.SaveQuiz(context.Background(), domain.Principal{Subject: "u", Token: "tok"}, bundle)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != "saved-1" || saved.Data.Title != "T" || saved.Language != "en" {
		t.Fatalf("unexpected saved quiz %+v", saved)
	}
	if got.Title != "T" || len(got.Questions) != 1 {
		t.Fatalf("bundle not sent: %+v", got)
	}
	if headers.Get("Authorization") != "Bearer tok" || headers.Get("X-App-Name") != "quiz-widget" ||
		headers.Get("X-Time-Zone") != "UTC" || headers.Get("X-Trace-ID") == "" || headers.Get("X-App-Version") != "1.0.0" {
		t.Fatalf("missing headers: %v", headers)
	}
}

func TestClientLatestAcceptsBothShapes(t *testing.T) {
	bodies := map[string]string{
		"envelope": `{"language":"zh-CN","data":{"title":"Taylor","questions":[{"id":"q1","question":"?","options":[{"text":"a","isCorrect":true}]}]}}`,
		"bare":     `{"title":"Taylor","questions":[{"id":"q1","question":"?","options":[{"text":"a","isCorrect":true}]}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			quiz, err := NewClient(Options{BaseURL: srv.URL}).LatestQuiz(context.Background(), domain.Principal{Token: "t"})
			if err != nil {
				t.Fatalf("latest: %v", err)
			}
			if quiz.Data.Title != "Taylor" || len(quiz.Data.Questions) != 1 {
				t.Fatalf("unexpected quiz %+v", quiz)
			}
			if name == "envelope" && quiz.Language != "zh-CN" {
				t.Fatalf("expected language from envelope, got %s", quiz.Language)
			}
			if name == "bare" && quiz.Language != domain.DefaultLanguage {
				t.Fatalf("expected default language, got %s", quiz.Language)
			}
		})
	}
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case quizPath + "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"database unavailable"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	p := domain.Principal{Token: "t"}
	if _, err := c.GetQuiz(context.Background(), p, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err := c.SaveQuiz(context.Background(), p, domain.SaveBundle{})
	if err == nil || err.Error() != "POST /api/quiz: database unavailable" {
		t.Fatalf("expected backend message, got %v", err)
	}
}
