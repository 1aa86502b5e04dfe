package server

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/KaramelBytes/stagewise/internal/session"
	"github.com/KaramelBytes/stagewise/internal/transport"
	"github.com/KaramelBytes/stagewise/internal/wizard"
)

var validate = validator.New()

type columnsRequest struct {
	SelectedColumns []string `json:"selectedColumns" validate:"required"`
}

type configRequest struct {
	MLType           string `json:"mlType" validate:"required"`
	Algorithm        string `json:"algorithm"`
	NumClusters      *int   `json:"numClusters"`
	PolynomialDegree *int   `json:"polynomialDegree"`
}

type hydrateRequest struct {
	Stage   string            `json:"stage" validate:"required"`
	Payload transport.Payload `json:"payload"`
}

type transportResponse struct {
	Stage   string            `json:"stage"`
	Payload transport.Payload `json:"payload"`
}

type hydrateResponse struct {
	wizard.View
	Diagnostics []string `json:"diagnostics,omitempty"`
}

type wizardHandler struct {
	store  *session.Store
	logger *zap.Logger
}

func (h *wizardHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/wizard")
	g.Post("", h.Create)
	g.Post("hydrate", h.Hydrate)
	g.Get(":id", h.Show)
	g.Delete(":id", h.Delete)
	g.Post(":id/upload", h.Upload)
	g.Put(":id/columns", h.Columns)
	g.Put(":id/config", h.Config)
	g.Post(":id/next", h.Next)
	g.Post(":id/back", h.Back)
	g.Post(":id/cancel", h.Cancel)
	g.Post(":id/restart", h.Restart)
	g.Get(":id/transport", h.Transport)
	g.Get(":id/download/:name", h.Download)
}

func (h *wizardHandler) session(ctx *fiber.Ctx) (*wizard.Controller, error) {
	ctrl, ok := h.store.Get(ctx.Params("id"))
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

func parseBody(ctx *fiber.Ctx, dst interface{}) error {
	if err := ctx.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func (h *wizardHandler) Create(ctx *fiber.Ctx) error {
	ctrl := h.store.Create()
	return ctx.Status(fiber.StatusCreated).JSON(ctrl.View())
}

func (h *wizardHandler) Show(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(ctrl.View())
}

func (h *wizardHandler) Delete(ctx *fiber.Ctx) error {
	if !h.store.Delete(ctx.Params("id")) {
		return ErrSessionNotFound
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *wizardHandler) Upload(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	if _, err := ctrl.Upload(filepath.Base(fh.Filename), f); err != nil {
		return err
	}
	return ctx.JSON(ctrl.View())
}

func (h *wizardHandler) Columns(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	var req columnsRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := ctrl.SelectColumns(req.SelectedColumns); err != nil {
		return err
	}
	return ctx.JSON(ctrl.View())
}

// Config replaces the configuration. A body carrying only mlType switches
// the family and resets its algorithm and parameters to the family defaults.
func (h *wizardHandler) Config(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	var req configRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	kind := wizard.Family(req.MLType)
	if req.Algorithm == "" && req.NumClusters == nil && req.PolynomialDegree == nil {
		err = ctrl.SetFamily(kind)
	} else {
		err = ctrl.Configure(wizard.MLConfiguration{
			Kind:             kind,
			Algorithm:        req.Algorithm,
			NumClusters:      req.NumClusters,
			PolynomialDegree: req.PolynomialDegree,
		})
	}
	if err != nil {
		return err
	}
	return ctx.JSON(ctrl.View())
}

// Next answers 202 when the step started an analysis submission.
func (h *wizardHandler) Next(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	if err := ctrl.Next(); err != nil {
		return err
	}
	v := ctrl.View()
	if v.Pending {
		return ctx.Status(fiber.StatusAccepted).JSON(v)
	}
	return ctx.JSON(v)
}

func (h *wizardHandler) Back(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	if err := ctrl.Back(); err != nil {
		return err
	}
	return ctx.JSON(ctrl.View())
}

func (h *wizardHandler) Cancel(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	if err := ctrl.Cancel(); err != nil {
		return err
	}
	return ctx.JSON(ctrl.View())
}

func (h *wizardHandler) Restart(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	ctrl.Restart()
	return ctx.JSON(ctrl.View())
}

// Transport encodes the state for the stage named by ?to=, defaulting to
// the session's current stage.
func (h *wizardHandler) Transport(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	state := ctrl.State()
	to := state.Stage
	if raw := ctx.Query("to"); raw != "" {
		if to, err = wizard.ParseStage(raw); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	return ctx.JSON(transportResponse{Stage: to.String(), Payload: transport.Encode(state, to)})
}

// Hydrate opens a new session from a stage transport payload. Values that
// fail to decode are reported back as diagnostics, never as an error.
func (h *wizardHandler) Hydrate(ctx *fiber.Ctx) error {
	var req hydrateRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	at, err := wizard.ParseStage(req.Stage)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	state, diags := transport.DecodeLogged(req.Payload, at, h.logger)
	ctrl := h.store.Create()
	if err := ctrl.Hydrate(state); err != nil {
		h.store.Delete(ctrl.ID())
		return err
	}
	resp := hydrateResponse{View: ctrl.View()}
	for _, d := range diags {
		resp.Diagnostics = append(resp.Diagnostics, d.String())
	}
	return ctx.Status(fiber.StatusCreated).JSON(resp)
}

func (h *wizardHandler) Download(ctx *fiber.Ctx) error {
	ctrl, err := h.session(ctx)
	if err != nil {
		return err
	}
	name := ctx.Params("name")
	body, err := ctrl.Download(name)
	if err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return ctx.SendString(body)
}
