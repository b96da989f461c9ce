package transport

import (
	"errors"
	"log/slog"

	"golang-smssync-gateway/internal/app"
	"golang-smssync-gateway/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the SMSSync device protocol and the message submission API.
type Handler struct {
	tr  *app.Transport
	log *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(tr *app.Transport, log *slog.Logger) *Handler {
	return &Handler{tr: tr, log: log}
}

// Register mounts the device endpoint at syncPath plus the submission API.
// guard runs in front of both, typically the shared secret check.
func (h *Handler) Register(router fiber.Router, syncPath string, guard ...fiber.Handler) {
	sync := append(append([]fiber.Handler{}, guard...), h.Sync)
	router.Get(syncPath, sync...)
	router.Post(syncPath, sync...)

	submit := append(append([]fiber.Handler{}, guard...), h.QueueMessage)
	router.Post("/api/messages", submit...)
}

// RegisterProbes mounts health, readiness and Prometheus metrics.
func (h *Handler) RegisterProbes(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
	router.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// ── SMSSync device protocol ──────────────────────────────────────────────────

// Sync dispatches a device request on its task query parameter.
//
//	POST /smssync                 inbound SMS
//	GET|POST /smssync?task=send   pending outbound envelopes
//	POST /smssync?task=sent       acknowledge envelopes queued on the device
//	GET /smssync?task=result      correlation ids awaiting a delivery report
//	POST /smssync?task=result     delivery reports
func (h *Handler) Sync(c *fiber.Ctx) error {
	task := c.Query("task")
	post := c.Method() == fiber.MethodPost

	switch {
	case task == "" && post:
		return h.receive(c)
	case task == "send":
		return h.send(c)
	case task == "sent" && post:
		return h.sent(c)
	case task == "result" && post:
		return h.delivered(c)
	case task == "result":
		return h.queued(c)
	}
	return fiber.NewError(fiber.StatusBadRequest, "unsupported task")
}

func (h *Handler) receive(c *fiber.Ctx) error {
	var in app.InboundSMS
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	reply, _, err := h.tr.Sync().OnReceive(c.Context(), in)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"payload": fiber.Map{
			"success":  true,
			"error":    nil,
			"task":     "send",
			"secret":   h.tr.Options().Secret,
			"messages": []domain.Envelope{reply},
		},
	})
}

func (h *Handler) send(c *fiber.Ctx) error {
	envelopes, err := h.tr.Sync().OnSend(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"payload": fiber.Map{
			"task":     "send",
			"secret":   h.tr.Options().Secret,
			"messages": envelopes,
		},
	})
}

type sentRequest struct {
	QueuedMessages []string `json:"queued_messages" form:"queued_messages"`
}

func (h *Handler) sent(c *fiber.Ctx) error {
	var req sentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	uuids, err := h.tr.Sync().OnSent(c.Context(), req.QueuedMessages)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message_uuids": uuids})
}

func (h *Handler) queued(c *fiber.Ctx) error {
	uuids, err := h.tr.Sync().OnQueued(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message_uuids": uuids})
}

type resultRequest struct {
	MessageResult []app.DeliveryReport `json:"message_result"`
}

func (h *Handler) delivered(c *fiber.Ctx) error {
	var req resultRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msgs, err := h.tr.Sync().OnDelivered(c.Context(), req.MessageResult)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"payload":  fiber.Map{"success": true, "error": nil},
		"messages": msgs,
	})
}

// ── Submission API ───────────────────────────────────────────────────────────

type queueRequest struct {
	From    string            `json:"from"`
	To      domain.Recipients `json:"to"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Fake    bool              `json:"fake"`
}

// QueueMessage queues an outbound SMS for devices to pick up.
//
// POST /api/messages
// Body: { "from": "...", "to": "..." | ["...", ...], "subject": "...", "body": "..." }
func (h *Handler) QueueMessage(c *fiber.Ctx) error {
	var req queueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Body == "" || len(req.To) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "to and body are required")
	}

	msg := domain.NewOutboundMessage(req.From, req.To, req.Subject, req.Body)
	if req.Fake {
		msg.Options = &domain.SendOptions{Fake: true}
	}
	if err := h.tr.Queue(c.Context(), &msg); err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true})
}

// ── Probes ───────────────────────────────────────────────────────────────────

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

func (h *Handler) Ready(c *fiber.Ctx) error {
	if err := h.tr.Ping(c.Context()); err != nil {
		h.log.Warn("readiness check failed", "err", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// ErrorHandler renders every error in the device protocol's failure shape.
// Store and queue failures are logged and reported without detail.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code = fe.Code
			msg = fe.Message
		case errors.Is(err, domain.ErrQueueFull):
			code = fiber.StatusServiceUnavailable
			msg = "queue full, retry later"
			log.Warn("queue full", "path", c.Path(), "err", err)
		default:
			log.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"request_id", c.Locals("request_id"),
				"err", err,
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"payload": fiber.Map{"success": false, "error": msg},
		})
	}
}
