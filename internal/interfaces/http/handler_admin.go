package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"botfleet/internal/entities"
	"botfleet/internal/interfaces"
	"botfleet/internal/scheduler"
	"botfleet/internal/usecases"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
)

// AdminHandler exposes the operator API: fleet commands, billing review and
// platform observability.
type AdminHandler struct {
	fleet   *usecases.FleetService
	billing *usecases.Billing
	monitor *usecases.Monitor
	store   interfaces.Store
	sched   *scheduler.Scheduler
	journal *scheduler.Journal
}

func NewAdminHandler(fleet *usecases.FleetService, billing *usecases.Billing, monitor *usecases.Monitor, store interfaces.Store, sched *scheduler.Scheduler, journal *scheduler.Journal) *AdminHandler {
	return &AdminHandler{
		fleet:   fleet,
		billing: billing,
		monitor: monitor,
		store:   store,
		sched:   sched,
		journal: journal,
	}
}

// GetStats returns platform statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	owners, err := h.store.ListOwners(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	byStatus := gin.H{}
	total := 0
	for _, st := range []entities.BotStatus{
		entities.StatusCreated, entities.StatusRunning, entities.StatusStopped,
		entities.StatusSuspended, entities.StatusPendingDeletion, entities.StatusDeleted,
	} {
		bots, err := h.store.BotsByStatus(ctx, st)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
			return
		}
		byStatus[string(st)] = len(bots)
		total += len(bots)
	}

	c.JSON(http.StatusOK, gin.H{
		"total_owners":   len(owners),
		"total_bots":     total,
		"bots_by_status": byStatus,
		"queue_depths":   h.sched.QueueDepths(),
	})
}

// ListBots returns the fleet, optionally filtered by status or owner.
func (h *AdminHandler) ListBots(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		bots []*entities.Bot
		err  error
	)
	switch {
	case c.Query("owner_id") != "":
		ownerID, aerr := strconv.Atoi(c.Query("owner_id"))
		if aerr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner ID"})
			return
		}
		bots, err = h.store.BotsByOwner(ctx, ownerID)
	case c.Query("status") != "":
		bots, err = h.store.BotsByStatus(ctx, entities.BotStatus(c.Query("status")))
	default:
		bots, err = h.store.BotsByStatus(ctx,
			entities.StatusCreated, entities.StatusRunning, entities.StatusStopped,
			entities.StatusSuspended, entities.StatusPendingDeletion)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bots"})
		return
	}
	c.JSON(http.StatusOK, bots)
}

// GetBot returns one bot row.
func (h *AdminHandler) GetBot(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}
	bot, err := h.store.GetBot(c.Request.Context(), botID)
	if errors.Is(err, entities.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bot"})
		return
	}
	c.JSON(http.StatusOK, bot)
}

// CreateBot provisions a bot synchronously: fee charged, runtime spawned,
// row persisted, or none of those.
func (h *AdminHandler) CreateBot(c *gin.Context) {
	var payload struct {
		OwnerID    int             `json:"owner_id"`
		TemplateID int             `json:"template_id"`
		Name       string          `json:"name"`
		Token      string          `json:"token"`
		Config     json.RawMessage `json:"config"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidBotName(payload.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot name"})
		return
	}
	if !ValidBotToken(payload.Token) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot token"})
		return
	}

	bot, err := h.fleet.CreateBot(c.Request.Context(), payload.OwnerID, payload.TemplateID, payload.Name, payload.Token, payload.Config)
	switch {
	case errors.Is(err, entities.ErrQuotaExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "Bot quota exceeded"})
	case errors.Is(err, entities.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient balance"})
	case errors.Is(err, entities.ErrSpawnFailure):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Bot failed to start, fee refunded"})
	case errors.Is(err, entities.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Owner or template not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create bot"})
	default:
		c.JSON(http.StatusCreated, bot)
	}
}

// botCommand runs one async fleet command and reports the queued job.
func (h *AdminHandler) botCommand(c *gin.Context, run func(botID int) (*scheduler.Job, error)) {
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}
	job, err := run(botID)
	if errors.Is(err, entities.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue command"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_id": job.ID})
}

func (h *AdminHandler) StartBot(c *gin.Context) {
	h.botCommand(c, func(botID int) (*scheduler.Job, error) {
		return h.fleet.Start(c.Request.Context(), botID)
	})
}

func (h *AdminHandler) StopBot(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}
	if !h.fleet.Stop(c.Request.Context(), botID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *AdminHandler) RestartBot(c *gin.Context) {
	if c.Query("emergency") == "true" {
		h.botCommand(c, func(botID int) (*scheduler.Job, error) {
			return h.fleet.EmergencyRestartBot(c.Request.Context(), botID)
		})
		return
	}
	h.botCommand(c, func(botID int) (*scheduler.Job, error) {
		return h.fleet.Restart(c.Request.Context(), botID)
	})
}

func (h *AdminHandler) DeleteBot(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}
	if !h.fleet.Delete(c.Request.Context(), botID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// BotAnalytics returns the bot's daily usage buckets.
func (h *AdminHandler) BotAnalytics(c *gin.Context) {
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}
	days := 7
	if d, err := strconv.Atoi(c.Query("days")); err == nil && d > 0 && d <= 90 {
		days = d
	}
	buckets, err := h.fleet.GetAnalytics(c.Request.Context(), botID, days)
	if errors.Is(err, entities.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analytics"})
		return
	}
	c.JSON(http.StatusOK, buckets)
}

// ListTemplates returns the template catalog.
func (h *AdminHandler) ListTemplates(c *gin.Context) {
	templates, err := h.store.ListTemplates(c.Request.Context(), c.Query("all") != "true")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch templates"})
		return
	}
	c.JSON(http.StatusOK, templates)
}

// ListOwners returns all tenants.
func (h *AdminHandler) ListOwners(c *gin.Context) {
	owners, err := h.store.ListOwners(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch owners"})
		return
	}
	c.JSON(http.StatusOK, owners)
}

// CreateOwner registers a tenant.
func (h *AdminHandler) CreateOwner(c *gin.Context) {
	var payload struct {
		TelegramID int64  `json:"telegram_id" binding:"required"`
		Username   string `json:"username"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	owner := &entities.Owner{
		TelegramID: payload.TelegramID,
		Username:   payload.Username,
		FirstName:  payload.FirstName,
		LastName:   payload.LastName,
	}
	if err := h.store.CreateOwner(c.Request.Context(), owner); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to create owner"})
		return
	}
	c.JSON(http.StatusCreated, owner)
}

// CreateTopup opens a pending top-up for an owner and returns a QR code for
// the payment reference.
func (h *AdminHandler) CreateTopup(c *gin.Context) {
	ownerID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner ID"})
		return
	}
	var payload struct {
		Amount int64  `json:"amount" binding:"required"`
		Method string `json:"method"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	payment, err := h.billing.CreateTopup(c.Request.Context(), ownerID, payload.Amount, payload.Method)
	if errors.Is(err, entities.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Owner not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create top-up"})
		return
	}

	png, err := qrcode.Encode(payment.TransactionID, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusOK, payment)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment": payment,
		"qr_png":  png, // base64 in JSON
	})
}

// ListPayments returns recent payments.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	payments, err := h.store.ListPayments(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payments"})
		return
	}
	c.JSON(http.StatusOK, payments)
}

// ApprovePayment queues settlement of a pending payment.
func (h *AdminHandler) ApprovePayment(c *gin.Context) {
	paymentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID"})
		return
	}
	job, err := h.fleet.SettlePayment(c.Request.Context(), paymentID)
	if errors.Is(err, entities.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue settlement"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_id": job.ID})
}

// SystemHealth returns the last resource sample.
func (h *AdminHandler) SystemHealth(c *gin.Context) {
	health := h.monitor.LastHealth()
	if health.SampledAt.IsZero() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No health sample yet"})
		return
	}
	c.JSON(http.StatusOK, health)
}

// TaskRuns returns recent job executions from the journal.
func (h *AdminHandler) TaskRuns(c *gin.Context) {
	limit := 100
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}
	runs, err := h.journal.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch task history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"queue_depths": h.sched.QueueDepths(),
		"runs":         runs,
	})
}

// EmergencyCleanup queues the out-of-band cleanup pass.
func (h *AdminHandler) EmergencyCleanup(c *gin.Context) {
	job, err := h.fleet.EmergencyCleanup(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue cleanup"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "job_id": job.ID})
}

// Healthz is the unauthenticated liveness probe.
func (h *AdminHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
