package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
	"github.com/bizclaw/bizclaw/internal/domain/tenant"
	"github.com/bizclaw/bizclaw/internal/infrastructure/auth"
)

// AdminHandler implements the Admin API's thin REST shell over the
// TenantRepository/Supervisor and the platform's audit/trace log. It
// holds no business logic beyond authorization.
type AdminHandler struct {
	tenants    repository.TenantRepository
	users      repository.UserRepository
	audit      repository.AuditRepository
	traces     repository.LlmTraceRepository
	supervisor *tenant.Supervisor
	tokens     *auth.TokenManager
	logger     *zap.Logger
}

// NewAdminHandler wires the Admin API handler, mirroring the
// constructor-wires-dependencies shape of NewServer/NewOpenAIHandler.
func NewAdminHandler(
	tenants repository.TenantRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	traces repository.LlmTraceRepository,
	supervisor *tenant.Supervisor,
	tokens *auth.TokenManager,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		tenants: tenants, users: users, audit: audit, traces: traces,
		supervisor: supervisor, tokens: tokens, logger: logger,
	}
}

func (h *AdminHandler) appendAudit(c *gin.Context, tenantID, action, detail string) {
	actorID := "anonymous"
	if claims, ok := auth.ClaimsFromContext(c); ok {
		actorID = claims.UserID
	}
	event := entity.NewAuditEvent(uuid.NewString(), tenantID, actorID, action, detail)
	if err := h.audit.Append(c.Request.Context(), event); err != nil {
		h.logger.Warn("failed to append audit event", zap.String("action", action), zap.Error(err))
	}
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// Login authenticates an email/password pair and issues a signed bearer
// token. POST /api/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil || user == nil || !auth.ComparePassword(user.PasswordHash(), req.Password) {
		h.appendAudit(c, "", "auth.login_failed", req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	user.RecordLogin(time.Now().UTC())
	_ = h.users.Save(c.Request.Context(), user)
	h.appendAudit(c, user.TenantID(), "auth.login", user.Email())

	resp := loginResponse{Token: token}
	resp.User.ID = user.ID()
	resp.User.Email = user.Email()
	resp.User.Role = string(user.Role())
	c.JSON(http.StatusOK, resp)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates a new platform user with the "user" role (admin
// accounts are provisioned out of band). Rate-limited per source IP
// alongside Login. POST /api/admin/register
func (h *AdminHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if existing, _ := h.users.FindByEmail(c.Request.Context(), req.Email); existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user, err := entity.NewUser(uuid.NewString(), req.Email, hash, entity.UserRoleUser)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.users.Save(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.appendAudit(c, "", "auth.registered", user.Email())
	c.JSON(http.StatusCreated, gin.H{"id": user.ID(), "email": user.Email()})
}

// --- Tenant lifecycle ---

type tenantView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	Port     int    `json:"port"`
	Plan     string `json:"plan"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func toTenantView(t *entity.Tenant) tenantView {
	return tenantView{
		ID: t.ID(), Name: t.Name(), Slug: t.Slug(), Status: string(t.Status()),
		Port: t.Port(), Plan: t.Plan(), Provider: t.Provider(), Model: t.Model(),
	}
}

// ListTenants returns every known tenant. GET /api/admin/tenants
func (h *AdminHandler) ListTenants(c *gin.Context) {
	tenants, err := h.tenants.FindAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]tenantView, 0, len(tenants))
	for _, t := range tenants {
		views = append(views, toTenantView(t))
	}
	c.JSON(http.StatusOK, gin.H{"tenants": views})
}

type createTenantRequest struct {
	Name     string `json:"name" binding:"required"`
	Slug     string `json:"slug" binding:"required"`
	Plan     string `json:"plan"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// CreateTenant provisions a new tenant, allocates its port and generates
// its first pairing code. POST /api/admin/tenants
func (h *AdminHandler) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, _ := h.tenants.FindBySlug(c.Request.Context(), req.Slug)
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "slug already in use"})
		return
	}

	t, err := entity.NewTenant(uuid.NewString(), req.Name, req.Slug, entity.TenantLimits{})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	port, err := h.supervisor.AllocatePort(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	t.SetPort(port)

	code, err := t.GeneratePairingCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.tenants.Save(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.appendAudit(c, t.ID(), "tenant.created", t.Slug())
	c.JSON(http.StatusCreated, gin.H{"tenant": toTenantView(t), "pairing_code": code})
}

// DeleteTenant removes a tenant record. DELETE /api/admin/tenants/:id
func (h *AdminHandler) DeleteTenant(c *gin.Context) {
	id := c.Param("id")
	if err := h.tenants.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.appendAudit(c, id, "tenant.deleted", "")
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) findTenantOr404(c *gin.Context) *entity.Tenant {
	id := c.Param("id")
	t, err := h.tenants.FindByID(c.Request.Context(), id)
	if err != nil || t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return nil
	}
	return t
}

// StartTenant spawns the tenant's OS process. POST /api/admin/tenants/:id/start
func (h *AdminHandler) StartTenant(c *gin.Context) {
	t := h.findTenantOr404(c)
	if t == nil {
		return
	}
	if err := h.supervisor.Start(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": toTenantView(t)})
}

// StopTenant signals the tenant's process group and marks it stopped.
// POST /api/admin/tenants/:id/stop
func (h *AdminHandler) StopTenant(c *gin.Context) {
	t := h.findTenantOr404(c)
	if t == nil {
		return
	}
	if err := h.supervisor.Stop(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": toTenantView(t)})
}

// ResetPairing regenerates a tenant's one-shot pairing code, invalidating
// any unredeemed prior code. POST /api/admin/tenants/:id/reset-pairing
func (h *AdminHandler) ResetPairing(c *gin.Context) {
	t := h.findTenantOr404(c)
	if t == nil {
		return
	}
	code, err := t.GeneratePairingCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.tenants.Save(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.appendAudit(c, t.ID(), "tenant.pairing_reset", "")
	c.JSON(http.StatusOK, gin.H{"pairing_code": code})
}

type tenantConfigRequest struct {
	Plan        string `json:"plan"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	MessagesDay int    `json:"messages_day"`
	Channels    int    `json:"channels"`
	Members     int    `json:"members"`
}

// GetConfig returns a tenant's current plan/provider/model/limits.
// GET /api/admin/tenants/:id/config
func (h *AdminHandler) GetConfig(c *gin.Context) {
	t := h.findTenantOr404(c)
	if t == nil {
		return
	}
	limits := t.Limits()
	c.JSON(http.StatusOK, gin.H{
		"plan": t.Plan(), "provider": t.Provider(), "model": t.Model(),
		"limits": gin.H{"messages_day": limits.MessagesDay, "channels": limits.Channels, "members": limits.Members},
	})
}

// SetConfig overwrites a tenant's plan/provider/model/limits.
// PUT /api/admin/tenants/:id/config
func (h *AdminHandler) SetConfig(c *gin.Context) {
	t := h.findTenantOr404(c)
	if t == nil {
		return
	}
	var req tenantConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t.UpdateConfig(req.Plan, req.Provider, req.Model, entity.TenantLimits{
		MessagesDay: req.MessagesDay, Channels: req.Channels, Members: req.Members,
	})
	if err := h.tenants.Save(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.appendAudit(c, t.ID(), "tenant.config_updated", req.Plan)
	c.JSON(http.StatusOK, gin.H{"tenant": toTenantView(t)})
}

// ToggleChannel flips one of a tenant's channel integrations. Channel
// specifics (Telegram polling vs. webhook, Slack, etc.) are handled by the
// concrete channel adapter; this endpoint only records the toggle as an
// audit event for that adapter to observe and act on.
// POST /api/admin/tenants/:id/channels/:channel/toggle
func (h *AdminHandler) ToggleChannel(c *gin.Context) {
	t := h.findTenantOr404(c)
	if t == nil {
		return
	}
	channel := c.Param("channel")
	enabled := c.Query("enabled") != "false"
	h.appendAudit(c, t.ID(), "tenant.channel_toggled", channel+" enabled="+strconv.FormatBool(enabled))
	c.JSON(http.StatusOK, gin.H{"channel": channel, "enabled": enabled})
}

// --- Audit / traces / activity ---

// Audit returns recent audit events, optionally scoped to one tenant via
// ?tenant_id=. GET /api/admin/audit
func (h *AdminHandler) Audit(c *gin.Context) {
	limit := parseLimit(c, 100)
	var (
		events []*entity.AuditEvent
		err    error
	)
	if tenantID := c.Query("tenant_id"); tenantID != "" {
		events, err = h.audit.ListByTenant(c.Request.Context(), tenantID, limit)
	} else {
		events, err = h.audit.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Traces returns recent LLM call traces across every agent.
// GET /api/v1/traces
func (h *AdminHandler) Traces(c *gin.Context) {
	limit := parseLimit(c, 100)
	traces, err := h.traces.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traces": traces})
}

// TracesCost returns per-model token/call totals since ?since_unix= (a
// Unix timestamp; defaults to the last 24h). GET /api/v1/traces/cost
func (h *AdminHandler) TracesCost(c *gin.Context) {
	since := time.Now().UTC().Add(-24 * time.Hour).Unix()
	if raw := c.Query("since_unix"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			since = parsed
		}
	}
	summary, err := h.traces.CostByModel(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since_unix": since, "models": summary})
}

// Activity is a lightweight combined feed of the most recent audit
// events and trace calls, for the admin dashboard's live view.
// GET /api/v1/activity
func (h *AdminHandler) Activity(c *gin.Context) {
	limit := parseLimit(c, 50)
	events, err := h.audit.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	traces, err := h.traces.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_events": events, "traces": traces})
}

func parseLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
