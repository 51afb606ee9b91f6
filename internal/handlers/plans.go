package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proserveapp/proserve/internal/services"
	appErrors "github.com/proserveapp/proserve/pkg/errors"
	"github.com/proserveapp/proserve/pkg/response"
)

// PlansHandler serves the public subscription catalog.
type PlansHandler struct {
	plans *services.PlanService
}

func NewPlansHandler(plans *services.PlanService) *PlansHandler {
	return &PlansHandler{plans: plans}
}

// GET /api/plans
func (h *PlansHandler) List(c *gin.Context) {
	plans, err := h.plans.ListActive(requestContext(c))
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, plans)
}

// GET /api/plans/:id
func (h *PlansHandler) Get(c *gin.Context) {
	plan, err := h.plans.Get(requestContext(c), c.Param("id"))
	if err != nil {
		// A direct catalog lookup for an unknown id is a plain 404, unlike
		// checkout where a vanished plan is a 400.
		if errors.Is(err, services.ErrPlanNotFound) {
			response.Error(c, appErrors.ErrNotFound.WithInternal(err))
			return
		}
		response.Error(c, serviceError(err))
		return
	}
	response.Success(c, http.StatusOK, plan)
}
