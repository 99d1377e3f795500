package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quiz-widget-service/internal/app"
	"quiz-widget-service/internal/domain"
)

// Handler serves the REST API the widget iframe drives.
type Handler struct {
	service    *app.QuizService
	auth       Authenticator
	meta       ResourceMetadata
	authServer AuthServerMetadataSource
}

func NewHandler(service *app.QuizService, auth Authenticator, meta ResourceMetadata) *Handler {
	if auth == nil {
		auth = StaticAuthenticator{}
	}
	return &Handler{service: service, auth: auth, meta: meta}
}

type answerRequest struct {
	OptionIndex *int `json:"optionIndex"`
}

type gotoRequest struct {
	Index *int `json:"index"`
}

type saveRequest struct {
	IncludeAnswers bool `json:"includeAnswers"`
}

type statusBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type quizBody struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Quiz    *domain.WidgetPayload `json:"quiz,omitempty"`
	QuizID  string                `json:"quizId,omitempty"`
}

func (h *Handler) ResourceMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.meta)
}

// AuthorizationServerMetadata proxies the authorization server discovery document.
func (h *Handler) AuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if h.authServer == nil {
		writeJSON(w, http.StatusNotFound, statusBody{Success: false, Message: "authorization server metadata not configured"})
		return
	}
	doc, err := h.authServer.AuthorizationServerMetadata(r.Context())
	if err != nil {
		log.Printf("authorization server metadata: %v", err)
		writeJSON(w, http.StatusBadGateway, statusBody{Success: false, Message: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var payload domain.WidgetPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, domain.NewValidationError(domain.KindMissing, "body", "invalid widget payload"))
		return
	}
	view, err := h.service.Start(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.State(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OptionIndex == nil {
		writeError(w, domain.NewValidationError(domain.KindMissing, "optionIndex", "optionIndex is required"))
		return
	}
	view, err := h.service.Answer(r.Context(), chi.URLParam(r, "sessionID"), *req.OptionIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Previous(r.Context(), chi.URLParam(r, "sessionID"))
	writeNav(w, res, err)
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Next(r.Context(), chi.URLParam(r, "sessionID"))
	writeNav(w, res, err)
}

func (h *Handler) GoTo(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		writeError(w, domain.NewValidationError(domain.KindMissing, "index", "index is required"))
		return
	}
	res, err := h.service.GoTo(r.Context(), chi.URLParam(r, "sessionID"), *req.Index)
	writeNav(w, res, err)
}

func (h *Handler) Retake(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Retake(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.NewValidationError(domain.KindMissing, "body", "invalid save request"))
			return
		}
	}
	p, _ := principalFrom(r.Context())
	saved, err := h.service.Save(r.Context(), chi.URLParam(r, "sessionID"), p, req.IncludeAnswers)
	if errors.Is(err, domain.ErrUnauthorized) {
		h.writeAuthRequired(w, err)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	payload := saved.Payload()
	writeJSON(w, http.StatusOK, quizBody{Success: true, Message: "save success", Quiz: &payload, QuizID: saved.ID})
}

// LatestQuiz returns the caller's saved quiz in widget payload form.
func (h *Handler) LatestQuiz(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	saved, err := h.service.Latest(r.Context(), p)
	if errors.Is(err, domain.ErrUnauthorized) {
		h.writeAuthRequired(w, err)
		return
	}
	if err != nil {
		writeJSON(w, statusFor(err), statusBody{Success: false, Message: err.Error()})
		return
	}
	payload := saved.Payload()
	writeJSON(w, http.StatusOK, quizBody{
		Success: true,
		Message: "Quiz fetched successfully. Start a session with the quiz data to display it.",
		Quiz:    &payload,
		QuizID:  saved.ID,
	})
}

func (h *Handler) StartSavedSession(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	view, err := h.service.StartSaved(r.Context(), p, chi.URLParam(r, "quizID"))
	if errors.Is(err, domain.ErrUnauthorized) {
		h.writeAuthRequired(w, err)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func writeNav(w http.ResponseWriter, res app.NavResult, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Field   string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorPayload{Message: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Kind = string(verr.Kind)
		body.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrEmptyQuiz), errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSaveFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
