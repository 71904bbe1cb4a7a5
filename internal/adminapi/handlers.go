// Package adminapi implements the thin admin CRUD surface over
// internal/store: login, interception rules, commands, request logs, and
// tactics templates.
package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/linspirer/proxy/internal/assert"
	"github.com/linspirer/proxy/internal/auth"
	"github.com/linspirer/proxy/internal/logging"
	"github.com/linspirer/proxy/internal/models"
	"github.com/linspirer/proxy/internal/store"
)

// Handlers holds the admin API's collaborators.
type Handlers struct {
	Store     *store.Store
	JWTSecret string
}

func New(s *store.Store, jwtSecret string) *Handlers {
	return &Handlers{Store: s, JWTSecret: jwtSecret}
}

// Mount registers every admin route on mux; all but /admin/api/login are
// wrapped in the auth gate.
func (h *Handlers) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/admin/api/login", h.handleLogin)
	mux.Handle("/admin/api/password", h.gate(http.HandlerFunc(h.handlePassword)))
	mux.Handle("/admin/api/rules", h.gate(http.HandlerFunc(h.handleRulesCollection)))
	mux.Handle("/admin/api/rules/", h.gate(http.HandlerFunc(h.handleRuleItem)))
	mux.Handle("/admin/api/commands", h.gate(http.HandlerFunc(h.handleCommandsCollection)))
	mux.Handle("/admin/api/commands/", h.gate(http.HandlerFunc(h.handleCommandItem)))
	mux.Handle("/admin/api/logs", h.gate(http.HandlerFunc(h.handleLogs)))
	mux.Handle("/admin/api/logs/methods", h.gate(http.HandlerFunc(h.handleLogMethods)))
	mux.Handle("/admin/api/logs/emails", h.gate(http.HandlerFunc(h.handleLogEmails)))
	mux.Handle("/admin/api/logs/stats", h.gate(http.HandlerFunc(h.handleLogStats)))
	mux.Handle("/admin/api/templates", h.gate(http.HandlerFunc(h.handleTemplates)))
}

// gate enforces the Bearer token check on every admin route but /login.
func (h *Handlers) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if _, err := auth.VerifyToken(h.JWTSecret, token); err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := h.Store.GetConfig("admin_password_hash")
	if err != nil {
		logging.Error("login: config lookup failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if req.Username != "admin" || stored == "" || !auth.VerifyPassword(stored, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.IssueToken(h.JWTSecret, req.Username)
	if err != nil {
		logging.Error("login: token issue failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

type passwordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handlers) handlePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := h.Store.GetConfig("admin_password_hash")
	if err != nil || stored == "" || !auth.VerifyPassword(stored, req.OldPassword) {
		writeError(w, http.StatusUnauthorized, "incorrect current password")
		return
	}

	newHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logging.Error("password change: hash failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.Store.SetConfig("admin_password_hash", newHash, ""); err != nil {
		logging.Error("password change: save failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleRulesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules, err := h.Store.ListRules()
		if err != nil {
			logging.Error("list rules failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, rules)
	case http.MethodPost:
		var rule models.InterceptionRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := assert.Check(rule.MethodName != "", "method_name is required"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rule.IsEnabled = true
		id, err := h.Store.CreateRule(rule)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handlers) handleRuleItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, "/admin/api/rules/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var rule models.InterceptionRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		rule.ID = id
		if err := h.Store.UpdateRule(rule); err != nil {
			var verr store.ValidationError
			if errors.As(err, &verr) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ValidationError", "message": verr.Error()})
				return
			}
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case http.MethodDelete:
		if err := h.Store.DeleteRule(id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handlers) handleCommandsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		var cmds []models.Command
		var err error
		if status != "" {
			cmds, err = h.Store.ListCommandsByStatus(status)
		} else {
			cmds, err = h.Store.ListCommands()
		}
		if err != nil {
			logging.Error("list commands failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, cmds)
	case http.MethodPost:
		var body struct {
			CommandJSON string `json:"command_json"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		id, err := h.Store.InsertCommand(body.CommandJSON)
		if err != nil {
			logging.Error("insert command failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCommandItem handles /admin/api/commands/{id}, /admin/api/commands/{id}/send,
// and /admin/api/commands/{id}/status.
func (h *Handlers) handleCommandItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/api/commands/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid command id")
		return
	}

	if len(parts) == 2 && parts[1] == "send" {
		h.sendCommand(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cmd, err := h.Store.FindCommandByID(id)
		if err != nil {
			logging.Error("find command failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if cmd == nil {
			writeError(w, http.StatusNotFound, "command not found")
			return
		}
		writeJSON(w, http.StatusOK, cmd)
	case http.MethodPut:
		var body struct {
			Status string `json:"status"`
			Notes  string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := h.Store.UpdateCommandStatus(id, body.Status, body.Notes); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// sendCommand simulates dispatching a verified command to the device. The
// real device protocol is unspecified, so this only records the state
// transition — it never makes a network call.
func (h *Handlers) sendCommand(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cmd, err := h.Store.FindCommandByID(id)
	if err != nil || cmd == nil {
		writeError(w, http.StatusNotFound, "command not found")
		return
	}
	if cmd.Status != models.CommandVerified {
		writeError(w, http.StatusBadRequest, "command must be verified before sending")
		return
	}
	if err := h.Store.UpdateCommandStatus(id, models.CommandSent, ""); err != nil {
		logging.Error("send command failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.CommandSent})
}

func (h *Handlers) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	logs, total, err := h.Store.ListLogs(store.LogFilter{
		Method: q.Get("method"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		logging.Error("list logs failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": logs,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *Handlers) handleLogMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.Store.ListMethods()
	if err != nil {
		logging.Error("list log methods failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

func (h *Handlers) handleLogEmails(w http.ResponseWriter, r *http.Request) {
	emails, err := h.Store.ListEmails()
	if err != nil {
		logging.Error("list log emails failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, emails)
}

func (h *Handlers) handleLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats()
	if err != nil {
		logging.Error("log stats failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		templates, err := h.Store.ListTemplates()
		if err != nil {
			logging.Error("list templates failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, templates)
	case http.MethodPost:
		var body struct {
			Name         string `json:"name"`
			TemplateJSON string `json:"template_json"`
			IsDefault    bool   `json:"is_default"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		id, err := h.Store.UpsertTemplate(body.Name, body.TemplateJSON, body.IsDefault)
		if err != nil {
			logging.Error("upsert template failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func pathID(path, prefix string) (int64, error) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(rest, "/")
	return strconv.ParseInt(rest, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps a store.ValidationError to 400 and anything else to
// 500, so rule validation failures read as client errors.
func writeStoreError(w http.ResponseWriter, err error) {
	var verr store.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ValidationError", "message": verr.Error()})
		return
	}
	logging.Error("store operation failed", logging.Fields{Error: err.Error(), Component: "adminapi"})
	writeError(w, http.StatusInternalServerError, "internal error")
}
