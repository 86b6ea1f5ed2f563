package rest

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/approvalflow/approval-gateway/internal/auth"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}} - Approval Gateway</title></head>
<body>
<div id="root" data-page="{{.Page}}"{{if .Next}} data-next="{{.Next}}"{{end}}></div>
<script src="/assets/app.js"></script>
</body>
</html>
`))

type pageData struct {
	Title string
	Page  string
	Next  string
}

// PagesHandler serves the HTML shells for the browser routes. The role
// gating happens in the route guards; by the time a request reaches one of
// these, it is allowed to see the page.
type PagesHandler struct {
	logger *slog.Logger
}

func NewPagesHandler(logger *slog.Logger) *PagesHandler {
	return &PagesHandler{logger: logger}
}

func (h *PagesHandler) render(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error("failed to render page", "page", data.Page, "error", err)
	}
}

// Root sends an authenticated user to the landing page for their primary
// role. The page guard has already bounced anonymous visitors to /login.
func (h *PagesHandler) Root(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	http.Redirect(w, r, user.DefaultRoute(), http.StatusFound)
}

func (h *PagesHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.render(w, pageData{Title: "Sign in", Page: "login", Next: r.URL.Query().Get("next")})
}

func (h *PagesHandler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusForbidden)
	h.render(w, pageData{Title: "Not allowed", Page: "unauthorized"})
}

func (h *PagesHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, pageData{Title: "My requests", Page: "dashboard"})
}

func (h *PagesHandler) Manager(w http.ResponseWriter, r *http.Request) {
	h.render(w, pageData{Title: "Approval queue", Page: "manager"})
}

func (h *PagesHandler) Admin(w http.ResponseWriter, r *http.Request) {
	h.render(w, pageData{Title: "Administration", Page: "admin"})
}
