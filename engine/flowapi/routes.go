package flowapi

import (
	"github.com/gofiber/fiber/v2"
)

type FlowRoutes struct {
	handler *FlowHandler
}

func NewFlowRoutes(handler *FlowHandler) *FlowRoutes {
	return &FlowRoutes{
		handler: handler,
	}
}

// RegisterRoutes mounts the flow API. protect guards the flow endpoints and may
// be nil; webhooks are never guarded because the provider cannot send tokens.
func (r *FlowRoutes) RegisterRoutes(app *fiber.App, protect fiber.Handler) {
	api := app.Group("/api")

	// Provider webhooks
	api.Post("/webhook", r.handler.Webhook)
	api.Post("/bitrix/webhook", r.handler.Webhook)

	guarded := func(h fiber.Handler) []fiber.Handler {
		if protect == nil {
			return []fiber.Handler{h}
		}
		return []fiber.Handler{protect, h}
	}

	api.Post("/save_flow", guarded(r.handler.SaveFlow)...)
	api.Get("/flows/:flowId", guarded(r.handler.GetFlow)...)
	api.Post("/execute_flow/:flowId", guarded(r.handler.ExecuteFlow)...)
}
