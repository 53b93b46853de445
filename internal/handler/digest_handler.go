package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/toolhub/digest-engine/internal/domain"
	"github.com/toolhub/digest-engine/internal/repository"
	"github.com/toolhub/digest-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type DigestService interface {
	Run(ctx context.Context, kind domain.DigestKind) (*service.RunOutcome, error)
}

// DigestHandler exposes the operator surface: manual triggers, the
// dispatch ledger, and the announcement ingress.
type DigestHandler struct {
	digests     DigestService
	windows     repository.WindowRepository
	items       repository.ItemWriter
	accumulator *service.Accumulator
	nowFn       func() time.Time
}

// NewDigestHandler wires the operator endpoints. The accumulator is nil
// under the schedule policy; announced items then only land in the
// persisted window.
func NewDigestHandler(
	digests DigestService,
	windows repository.WindowRepository,
	items repository.ItemWriter,
	accumulator *service.Accumulator,
) (*DigestHandler, error) {
	if digests == nil {
		return nil, fmt.Errorf("digest service is required")
	}
	if windows == nil {
		return nil, fmt.Errorf("window repository is required")
	}
	if items == nil {
		return nil, fmt.Errorf("item writer is required")
	}
	return &DigestHandler{
		digests:     digests,
		windows:     windows,
		items:       items,
		accumulator: accumulator,
		nowFn:       time.Now,
	}, nil
}

func RegisterDigestRoutes(
	router fiber.Router,
	digests DigestService,
	windows repository.WindowRepository,
	items repository.ItemWriter,
	accumulator *service.Accumulator,
) error {
	h, err := NewDigestHandler(digests, windows, items, accumulator)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/digests/:kind/trigger", h.TriggerDigest)
	v1.Get("/digests", h.ListDigests)
	v1.Post("/announcements", h.Announce)

	return nil
}

type windowResponse struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	WindowStart    time.Time `json:"windowStart"`
	ItemCount      int       `json:"itemCount"`
	ItemIDs        []string  `json:"itemIds,omitempty"`
	RecipientCount int       `json:"recipientCount"`
	SucceededCount int       `json:"succeededCount"`
	FailedCount    int       `json:"failedCount"`
	Status         string    `json:"status"`
	Error          *string   `json:"error,omitempty"`
	RetryCount     int       `json:"retryCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type triggerResponse struct {
	Result string          `json:"result"`
	Window *windowResponse `json:"window,omitempty"`
}

type listWindowsResponse struct {
	Data []windowResponse `json:"data"`
	Meta listMeta         `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type announceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// TriggerDigest runs one digest window on demand. A window already
// claimed or in flight answers 409; a below-minimum window answers 200
// with the skipped result and no ledger row.
func (h *DigestHandler) TriggerDigest(c *fiber.Ctx) error {
	kind, err := domain.ParseDigestKindFromString(c.Params("kind"))
	if err != nil {
		return toHTTPError(err)
	}

	outcome, err := h.digests.Run(c.Context(), kind)
	if err != nil {
		return toHTTPError(err)
	}

	resp := triggerResponse{Result: outcome.Result}
	if outcome.Window != nil {
		w := toWindowResponse(outcome.Window)
		resp.Window = &w
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *DigestHandler) ListDigests(c *fiber.Ctx) error {
	params, err := parseListWindowParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	windows, total, err := h.windows.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]windowResponse, 0, len(windows))
	for i := range windows {
		data = append(data, toWindowResponse(&windows[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listWindowsResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

// Announce registers one approved item. The item is persisted with its
// approval stamped, so the next scheduled window picks it up; under the
// accumulator policy it additionally joins the in-memory batch.
func (h *DigestHandler) Announce(c *fiber.Ctx) error {
	var req announceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)
	if req.Name == "" {
		return toHTTPError(fmt.Errorf("%w: name is required", domain.ErrValidation))
	}
	if req.URL == "" {
		return toHTTPError(fmt.Errorf("%w: url is required", domain.ErrValidation))
	}

	item := domain.Item{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		URL:         req.URL,
		Status:      domain.ItemStatusPending,
	}
	if err := h.items.Create(c.Context(), &item); err != nil {
		return toHTTPError(err)
	}
	if err := h.items.Approve(c.Context(), item.ID, h.nowFn()); err != nil {
		return toHTTPError(err)
	}

	resp := fiber.Map{"itemId": item.ID}
	if h.accumulator != nil {
		h.accumulator.Add(item.Summary())
		resp["pending"] = h.accumulator.Pending()
	}

	return c.Status(fiber.StatusAccepted).JSON(resp)
}

func parseListWindowParams(c *fiber.Ctx) (repository.ListWindowParams, error) {
	params := repository.ListWindowParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListWindowParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListWindowParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawKind := strings.TrimSpace(c.Query("kind")); rawKind != "" {
		kind, err := domain.ParseDigestKindFromString(rawKind)
		if err != nil {
			return repository.ListWindowParams{}, err
		}
		params.Kind = &kind
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status := domain.WindowStatus(strings.ToUpper(rawStatus))
		if !status.IsValid() {
			return repository.ListWindowParams{}, fmt.Errorf("%w: invalid window status %q", domain.ErrValidation, rawStatus)
		}
		params.Status = &status
	}

	return params, nil
}

func toWindowResponse(w *domain.NotificationWindow) windowResponse {
	if w == nil {
		return windowResponse{}
	}

	return windowResponse{
		ID:             w.ID,
		Kind:           w.Kind.String(),
		WindowStart:    w.WindowStart,
		ItemCount:      w.ItemCount,
		ItemIDs:        w.ItemIDs,
		RecipientCount: w.RecipientCount,
		SucceededCount: w.SucceededCount,
		FailedCount:    w.FailedCount,
		Status:         w.Status.String(),
		Error:          w.Error,
		RetryCount:     w.RetryCount,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
