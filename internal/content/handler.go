package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/brightkids/backend/internal/middleware"
)

// PointsAwarder credits leaderboard points for graded work.
type PointsAwarder interface {
	AwardPoints(ctx context.Context, userID uuid.UUID, points int) error
}

// Handler serves the text-simplification, quiz, grading and OCR endpoints.
// These are thin: validate, call the collaborator, reshape to JSON.
type Handler struct {
	LLM    LLMClient
	OCR    Recognizer
	Points PointsAwarder
	Logger *slog.Logger
}

type simplifyRequest struct {
	Text       string `json:"text"`
	GradeLevel int    `json:"grade_level"`
}

// Simplify handles POST /api/v1/content/simplify.
func (h *Handler) Simplify(w http.ResponseWriter, r *http.Request) {
	if middleware.IdentityFromCtx(r.Context()) == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req simplifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}
	if req.GradeLevel <= 0 {
		req.GradeLevel = 4
	}

	prompt := fmt.Sprintf("Rewrite the following text so a grade %d student can understand it. Keep the meaning.\n\n%s", req.GradeLevel, req.Text)
	out, err := h.LLM.Complete(r.Context(), prompt)
	if err != nil {
		h.Logger.Error("simplify completion", "error", err)
		http.Error(w, `{"error":"external service failure"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"simplified": out, "grade_level": req.GradeLevel})
}

type quizRequest struct {
	Text         string `json:"text"`
	NumQuestions int    `json:"num_questions"`
}

// Quiz handles POST /api/v1/content/quiz.
func (h *Handler) Quiz(w http.ResponseWriter, r *http.Request) {
	if middleware.IdentityFromCtx(r.Context()) == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}
	if req.NumQuestions <= 0 || req.NumQuestions > 10 {
		req.NumQuestions = 5
	}

	prompt := fmt.Sprintf("Write %d multiple-choice questions as a JSON array about this text:\n\n%s", req.NumQuestions, req.Text)
	out, err := h.LLM.Complete(r.Context(), prompt)
	if err != nil {
		h.Logger.Error("quiz completion", "error", err)
		http.Error(w, `{"error":"external service failure"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz": json.RawMessage(normalizeJSON(out))})
}

type gradeRequest struct {
	Questions json.RawMessage `json:"questions"`
	Answers   json.RawMessage `json:"answers"`
}

type gradeResult struct {
	Score    int    `json:"score"`
	OutOf    int    `json:"out_of"`
	Feedback string `json:"feedback"`
}

// Grade handles POST /api/v1/content/grade. The score the model awards is
// credited to the caller's leaderboard points, both windows.
func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if len(req.Questions) == 0 || len(req.Answers) == 0 {
		http.Error(w, `{"error":"questions and answers are required"}`, http.StatusBadRequest)
		return
	}

	prompt := fmt.Sprintf("Grade the student's answers against these questions. Reply with only JSON of the form {\"score\":<int>,\"out_of\":<int>,\"feedback\":\"...\"}.\n\nQuestions: %s\n\nAnswers: %s", req.Questions, req.Answers)
	out, err := h.LLM.Complete(r.Context(), prompt)
	if err != nil {
		h.Logger.Error("grade completion", "error", err)
		http.Error(w, `{"error":"external service failure"}`, http.StatusBadGateway)
		return
	}
	var res gradeResult
	if err := json.Unmarshal([]byte(out), &res); err != nil || res.OutOf <= 0 {
		h.Logger.Error("grade output unusable", "output", out, "error", err)
		http.Error(w, `{"error":"external service failure"}`, http.StatusBadGateway)
		return
	}
	if res.Score < 0 {
		res.Score = 0
	}
	if res.Score > 0 {
		if err := h.Points.AwardPoints(r.Context(), ident.UserID, res.Score); err != nil {
			h.Logger.Error("award points", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"score":          res.Score,
		"out_of":         res.OutOf,
		"feedback":       res.Feedback,
		"points_awarded": res.Score,
	})
}

type ocrRequest struct {
	ImageURL string `json:"image_url"`
}

// Recognize handles POST /api/v1/content/ocr.
func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	if middleware.IdentityFromCtx(r.Context()) == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req ocrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ImageURL == "" {
		http.Error(w, `{"error":"image_url is required"}`, http.StatusBadRequest)
		return
	}
	text, err := h.OCR.Recognize(r.Context(), req.ImageURL)
	if err != nil {
		h.Logger.Error("ocr recognize", "error", err)
		http.Error(w, `{"error":"external service failure"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// normalizeJSON passes through valid JSON and wraps anything else as a JSON
// string, so the response stays well-formed when the model ignores the
// format instruction.
func normalizeJSON(s string) []byte {
	if json.Valid([]byte(s)) {
		return []byte(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
