package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"embed"
	"encoding/base64"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jkaninda/mtafiti/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const flashCookieName = "mtafiti_flash"

// Flash is a one-shot message shown on the next page render.
type Flash struct {
	Message  string `json:"message"`
	Category string `json:"category"` // e.g. "danger", "success".
}

type indexData struct {
	Flashes []Flash
}

type resultData struct {
	Topic        string
	Instructions string
	FullMarkdown string
}

// handleIndex renders the topic form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	flashes := s.popFlashes(w, r)
	s.render(w, "index.html", indexData{Flashes: flashes})
}

// handleGenerate runs the pipeline for the submitted topic and renders the
// report. An empty topic flashes an error and redirects without invoking
// the pipeline.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	topic := strings.TrimSpace(r.FormValue("topic"))
	instructions := strings.TrimSpace(r.FormValue("instructions"))

	if topic == "" {
		s.setFlash(w, Flash{Message: "Please enter a research topic.", Category: "danger"})
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	s.logger.Info("ui report requested", slog.String("topic", topic))

	report, err := s.generator.Generate(r.Context(), &pipeline.Request{
		Topic:        topic,
		Instructions: instructions,
	})
	if err != nil {
		s.logger.Error("report generation failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		s.setFlash(w, Flash{Message: "Report generation failed. Please try again.", Category: "danger"})
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	s.render(w, "result.html", resultData{
		Topic:        report.Topic,
		Instructions: report.Instructions,
		FullMarkdown: report.FullMarkdown,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("rendering template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

// setFlash stores flashes in an HMAC-signed cookie.
func (s *Server) setFlash(w http.ResponseWriter, flashes ...Flash) {
	payload, err := json.Marshal(flashes)
	if err != nil {
		return
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    encoded + "." + s.signFlash(encoded),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes reads, verifies, and clears the flash cookie.
func (s *Server) popFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	encoded, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(s.signFlash(encoded))) != 1 {
		return nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(payload, &flashes); err != nil {
		return nil
	}
	return flashes
}

func (s *Server) signFlash(encoded string) string {
	mac := hmac.New(sha256.New, []byte(s.config.SecretKey))
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
