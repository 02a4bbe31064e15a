package flowapi

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/webhookrouter"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/gofiber/fiber/v2"
)

// FlowService is what the HTTP layer needs from the flow service.
type FlowService interface {
	SaveFlow(ctx context.Context, doc []byte) (kernel.FlowID, error)
	GetFlow(ctx context.Context, id kernel.FlowID) ([]byte, error)
	ExecuteFlow(ctx context.Context, id kernel.FlowID, dialogID kernel.DialogID, variables map[string]any) (*engine.ExecutionResult, error)
}

// Dispatcher runs routed webhook triggers.
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger *engine.RunTrigger) (*engine.ExecutionResult, error)
}

type FlowHandler struct {
	flows      FlowService
	router     *webhookrouter.Router
	dispatcher Dispatcher
}

func NewFlowHandler(flows FlowService, router *webhookrouter.Router, dispatcher Dispatcher) *FlowHandler {
	return &FlowHandler{
		flows:      flows,
		router:     router,
		dispatcher: dispatcher,
	}
}

// SaveFlow stores the request body as a new flow.
// POST /api/save_flow
func (h *FlowHandler) SaveFlow(c *fiber.Ctx) error {
	body := c.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return c.Status(http.StatusBadRequest).JSON(engine.ErrorResponse{Error: "No flow data provided"})
	}

	id, err := h.flows.SaveFlow(c.Context(), body)
	if err != nil {
		if errx.IsType(err, errx.TypeValidation) {
			log.Printf("⚠️  Rejected flow document: %v", err)
			return c.Status(http.StatusBadRequest).JSON(engine.ErrorResponse{Error: err.Error()})
		}
		log.Printf("❌ Failed to save flow: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(engine.ErrorResponse{Error: "failed to save flow"})
	}

	return c.JSON(engine.SaveFlowResponse{
		Message: "Flow saved successfully",
		FlowID:  id.String(),
	})
}

// GetFlow returns the stored document unchanged.
// GET /api/flows/:flowId
func (h *FlowHandler) GetFlow(c *fiber.Ctx) error {
	id := kernel.FlowID(c.Params("flowId"))

	doc, err := h.flows.GetFlow(c.Context(), id)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return c.Status(http.StatusNotFound).JSON(engine.ErrorResponse{Error: "Flow not found"})
		}
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(doc)
}

// ExecuteFlow runs a flow for one dialog and returns the run result. A failed
// run is still a handled request; its status is in the result.
// POST /api/execute_flow/:flowId
func (h *FlowHandler) ExecuteFlow(c *fiber.Ctx) error {
	id := kernel.FlowID(c.Params("flowId"))

	var req engine.ExecuteFlowRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(engine.ErrorResponse{
				Status:  "error",
				Message: "invalid request body",
			})
		}
	}

	log.Printf("▶️  Execute flow %s for dialog %s", id, req.DialogID)

	res, err := h.flows.ExecuteFlow(c.Context(), id, kernel.DialogID(req.DialogID), req.Variables)
	if err != nil {
		status := http.StatusInternalServerError
		if errx.IsType(err, errx.TypeNotFound) {
			status = http.StatusNotFound
		}
		return c.Status(status).JSON(engine.ErrorResponse{Status: "error", Message: err.Error()})
	}

	return c.JSON(engine.ExecuteFlowResponse{Status: "success", Result: res})
}

// Webhook acknowledges every provider event and processes it in the
// background, so the provider never sees run failures.
// POST /api/webhook
func (h *FlowHandler) Webhook(c *fiber.Ctx) error {
	payload, err := normalizePayload(c.Get(fiber.HeaderContentType), c.Body())
	if err != nil {
		log.Printf("❌ Could not read webhook payload: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(engine.ErrorResponse{
			Status:  "error",
			Message: "could not read payload",
		})
	}

	log.Printf("📥 Received webhook (%d bytes)", len(payload))

	if trigger := h.router.Route(payload); trigger != nil {
		go func() {
			// The run outlives the request.
			if _, err := h.dispatcher.Dispatch(context.Background(), trigger); err != nil {
				log.Printf("❌ Failed to dispatch %s: %v", trigger.Event, err)
			}
		}()
	}

	return c.JSON(engine.WebhookAck{Status: "received"})
}
