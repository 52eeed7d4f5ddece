// Package adminhttp implements the inbound JSON admin API for MCP
// Guardian (spec.md §6). It is grounded on the teacher's
// internal/adapter/inbound/admin.AdminAPIHandler: the Go 1.22+
// method+pattern http.ServeMux, the respondJSON/respondError helper
// pair, and the localhost-bypass auth middleware shape. Guardian
// has a single operator password instead of the teacher's per-identity
// API key store, so the middleware checks HTTP Basic auth against an
// argon2id hash (config.AdminConfig.Password, hashed the way the
// teacher's identity_service hashes API keys) falling back to the
// teacher's localhost-only bypass when no password is configured.
package adminhttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/alexedwards/argon2id"

	"github.com/jacklatrobe/MCP-Guardian/internal/domain/mcpservice"
	"github.com/jacklatrobe/MCP-Guardian/internal/domain/snapshot"
	"github.com/jacklatrobe/MCP-Guardian/internal/service"
)

// Handler serves the admin API routes from spec.md §6 over the
// AdminService callable surface.
type Handler struct {
	admin        *service.AdminService
	passwordHash string
	logger       *slog.Logger
}

// New creates a Handler. passwordHash is config.AdminConfig.Password: an
// argon2id hash (produced the same way the teacher's identity_service
// hashes API keys, argon2id.CreateHash) rather than a plaintext secret, so
// the config file never holds a directly usable credential. An empty
// value disables Basic auth and falls back to a localhost-only bypass,
// matching the teacher's AUTH-01 behavior for an unconfigured admin
// surface.
func New(admin *service.AdminService, passwordHash string, logger *slog.Logger) *Handler {
	return &Handler{admin: admin, passwordHash: passwordHash, logger: logger}
}

// Routes returns the admin API's http.Handler, wrapped in admin auth.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /admin/api/v1/services", h.handleCreateService)
	mux.HandleFunc("GET /admin/api/v1/services", h.handleListServices)
	mux.HandleFunc("GET /admin/api/v1/services/{name}", h.handleGetService)
	mux.HandleFunc("PATCH /admin/api/v1/services/{name}", h.handleUpdateService)
	mux.HandleFunc("DELETE /admin/api/v1/services/{name}", h.handleDeleteService)
	mux.HandleFunc("GET /admin/api/v1/services/{name}/snapshots", h.handleListSnapshots)
	mux.HandleFunc("GET /admin/api/v1/services/{name}/diff", h.handleDiff)
	mux.HandleFunc("POST /admin/api/v1/services/{name}/approve", h.handleApprove)

	return h.authMiddleware(mux)
}

// authMiddleware enforces the admin surface's access control. With a
// configured password, every request must present it via HTTP Basic
// auth (username is ignored, matching guardianclient.Client's
// SetBasicAuth("admin", password)). Without one, only loopback requests
// are allowed, per the teacher's isLocalhost bypass.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.passwordHash == "" {
			if isLocalhost(r) {
				next.ServeHTTP(w, r)
				return
			}
			h.respondError(w, http.StatusForbidden, "admin API requires localhost access or a configured admin password")
			return
		}

		_, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="mcp-guardian admin"`)
			h.respondError(w, http.StatusUnauthorized, "invalid admin credentials")
			return
		}
		match, err := argon2id.ComparePasswordAndHash(pass, h.passwordHash)
		if err != nil {
			h.logger.Error("admin password hash comparison failed", "error", err)
			h.respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !match {
			w.Header().Set("WWW-Authenticate", `Basic realm="mcp-guardian admin"`)
			h.respondError(w, http.StatusUnauthorized, "invalid admin credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isLocalhost checks if the request originates from a loopback address.
// X-Forwarded-For is intentionally not trusted: an attacker could spoof it.
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

func (h *Handler) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name                  string `json:"name"`
		UpstreamURL           string `json:"upstream_url"`
		Enabled               bool   `json:"enabled"`
		CheckFrequencyMinutes int    `json:"check_frequency_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	svc, err := h.admin.CreateService(r.Context(), service.CreateServiceInput{
		Name:                  req.Name,
		UpstreamURL:           req.UpstreamURL,
		Enabled:               req.Enabled,
		CheckFrequencyMinutes: req.CheckFrequencyMinutes,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, serviceResponse(svc))
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.admin.ListServices(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	resp := make([]serviceWithStatusResponse, 0, len(services))
	for i := range services {
		resp = append(resp, serviceWithStatusResponse(&services[i]))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	svc, snaps, err := h.admin.GetService(r.Context(), name, limit)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"service":   serviceResponse(svc),
		"snapshots": snapshotResponses(snaps),
	})
}

func (h *Handler) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req struct {
		UpstreamURL           *string `json:"upstream_url"`
		Enabled               *bool   `json:"enabled"`
		CheckFrequencyMinutes *int    `json:"check_frequency_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	svc, err := h.admin.UpdateService(r.Context(), name, service.UpdateServiceInput{
		UpstreamURL:           req.UpstreamURL,
		Enabled:               req.Enabled,
		CheckFrequencyMinutes: req.CheckFrequencyMinutes,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, serviceResponse(svc))
}

func (h *Handler) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.admin.DeleteService(r.Context(), name); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	snaps, err := h.admin.ListSnapshots(r.Context(), name, limit)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, snapshotResponses(snaps))
}

func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	changes, err := h.admin.Diff(r.Context(), name)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"changes": changeResponses(changes)})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	svc, snap, err := h.admin.ApproveLatest(r.Context(), name)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"service":  serviceResponse(svc),
		"snapshot": snapshotResponse(snap),
	})
}

// respondDomainError maps a service-layer error to an HTTP status per
// spec.md §6's implicit contract: not-found conditions are 404,
// validation/duplicate-name failures are 400, everything else is 500.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mcpservice.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mcpservice.ErrValidation), errors.Is(err, mcpservice.ErrDuplicateName):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("admin API request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode admin API response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func serviceResponse(svc *mcpservice.Service) map[string]any {
	return map[string]any{
		"name":                    svc.Name,
		"upstream_url":            svc.UpstreamURL,
		"enabled":                 svc.Enabled,
		"check_frequency_minutes": svc.CheckFrequencyMinutes,
		"created_at":              svc.CreatedAt,
		"updated_at":              svc.UpdatedAt,
	}
}

func serviceWithStatusResponse(svc *mcpservice.WithLatestStatus) map[string]any {
	resp := serviceResponse(&svc.Service)
	if svc.LatestSnapshotStatus != nil {
		resp["latest_snapshot_status"] = string(*svc.LatestSnapshotStatus)
	}
	return resp
}

func snapshotResponse(snap *snapshot.Snapshot) map[string]any {
	return map[string]any{
		"id":         snap.ID,
		"payload":    snap.Payload,
		"hash":       snap.Hash,
		"status":     string(snap.Status),
		"created_at": snap.CreatedAt,
		"seq":        snap.Seq,
	}
}

func snapshotResponses(snaps []snapshot.Snapshot) []map[string]any {
	resp := make([]map[string]any, 0, len(snaps))
	for i := range snaps {
		resp = append(resp, snapshotResponse(&snaps[i]))
	}
	return resp
}

func changeResponses(changes []snapshot.Change) []map[string]any {
	resp := make([]map[string]any, 0, len(changes))
	for _, c := range changes {
		resp = append(resp, map[string]any{
			"path": c.Path,
			"kind": string(c.Kind),
			"old":  c.Old,
			"new":  c.New,
		})
	}
	return resp
}
