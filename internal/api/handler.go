// Package api exposes the filter pipeline over HTTP.
package api

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"shipfilter/internal/audit"
	"shipfilter/internal/filterspec"
	"shipfilter/internal/pipeline"
	"shipfilter/internal/preview"
	"shipfilter/internal/session"
)

// AuditLister reads stored audit events.
type AuditLister interface {
	ListAuditEvents(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

type Handler struct {
	svc      *pipeline.Service
	sessions *session.Manager
	events   AuditLister
}

// NewHandler creates a Handler. events may be nil, in which case the audit
// listing is not served.
func NewHandler(svc *pipeline.Service, sessions *session.Manager, events AuditLister) *Handler {
	return &Handler{svc: svc, sessions: sessions, events: events}
}

// specRequest carries either a resolved spec, with the resolution token it was
// issued with, or an intent to resolve first.
type specRequest struct {
	Spec    *filterspec.ResolvedFilterSpec `json:"spec"`
	Intent  *filterspec.FilterIntent       `json:"intent"`
	Dialect string                         `json:"dialect"`
	Limit   int                            `json:"limit"`
}

func (h *Handler) spec(c *fiber.Ctx, req specRequest) (*filterspec.ResolvedFilterSpec, error) {
	if req.Spec != nil {
		return req.Spec, nil
	}
	if req.Intent == nil {
		return nil, InvalidPayload("spec or intent is required")
	}
	return h.svc.Resolve(c.UserContext(), session.ID(c), *req.Intent)
}

// OpenSession handles POST /api/sessions.
func (h *Handler) OpenSession(c *fiber.Ctx) error {
	s, err := h.sessions.Open()
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": s})
}

// Dictionary handles GET /api/dictionary.
func (h *Handler) Dictionary(c *fiber.Ctx) error {
	dict := h.svc.Dictionary()
	entries := dict.Entries()
	if tier := c.Query("tier"); tier != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if string(e.Tier) == tier {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"version": dict.Version(), "entries": entries}})
}

// Schema handles GET /api/schema.
func (h *Handler) Schema(c *fiber.Ctx) error {
	schema, err := h.svc.Schema(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"table":     h.svc.Table(),
		"columns":   schema.Columns,
		"signature": schema.Signature,
	}})
}

// Resolve handles POST /api/filters/resolve.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	var intent filterspec.FilterIntent
	if err := c.BodyParser(&intent); err != nil {
		return InvalidPayload("Invalid filter intent: " + err.Error())
	}
	spec, err := h.svc.Resolve(c.UserContext(), session.ID(c), intent)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": spec})
}

// Confirm handles POST /api/filters/confirm.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var body struct {
		Token  string                  `json:"resolution_token"`
		Intent filterspec.FilterIntent `json:"intent"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayload("Invalid confirmation: " + err.Error())
	}
	if body.Token == "" {
		return InvalidPayload("resolution_token is required")
	}
	spec, err := h.svc.Confirm(c.UserContext(), session.ID(c), body.Token, body.Intent)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": spec})
}

// Compile handles POST /api/filters/compile.
func (h *Handler) Compile(c *fiber.Ctx) error {
	var body specRequest
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayload("Invalid compile request: " + err.Error())
	}
	spec, err := h.spec(c, body)
	if err != nil {
		return err
	}
	compiled, err := h.svc.Compile(c.UserContext(), session.ID(c), spec, body.Dialect)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": compiled})
}

// Execute handles POST /api/filters/execute.
func (h *Handler) Execute(c *fiber.Ctx) error {
	var body specRequest
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayload("Invalid execute request: " + err.Error())
	}
	spec, err := h.spec(c, body)
	if err != nil {
		return err
	}
	res, err := h.svc.Execute(c.UserContext(), session.ID(c), spec, body.Limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": res.Rows,
		"meta": fiber.Map{"count": len(res.Rows), "filter": res.Filter},
	})
}

// Preview handles POST /api/filters/preview.
func (h *Handler) Preview(c *fiber.Ctx) error {
	var body struct {
		Root *filterspec.FilterGroup `json:"root"`
		Rows []preview.Row           `json:"rows"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayload("Invalid preview request: " + err.Error())
	}
	matched, err := h.svc.Preview(c.UserContext(), session.ID(c), body.Root, body.Rows)
	if err != nil {
		return err
	}
	if matched == nil {
		matched = []preview.Row{}
	}
	return c.JSON(fiber.Map{"data": matched, "meta": fiber.Map{"count": len(matched), "total": len(body.Rows)}})
}

// AuditEvents handles GET /api/audit, listing the caller's own events.
func (h *Handler) AuditEvents(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit < 0 {
		return InvalidPayload("limit must be a non-negative integer")
	}
	events, err := h.events.ListAuditEvents(c.UserContext(), audit.Query{
		SessionID: session.ID(c),
		Action:    audit.Action(c.Query("action")),
		Limit:     limit,
	})
	if err != nil {
		return err
	}
	if events == nil {
		events = []audit.Event{}
	}
	return c.JSON(fiber.Map{"data": events})
}
