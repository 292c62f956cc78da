package dashboard

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/flow"
	"onboarding_backend/internal/session"
)

// Handler serves the dashboard.
type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger.Named("dashboard_handler")}
}

// RegisterRoutes mounts GET /dashboard behind authOnly.
func (h *Handler) RegisterRoutes(router gin.IRouter, authOnly gin.HandlerFunc) {
	router.GET(flow.PathDashboard, authOnly, h.overview)
}

func (h *Handler) overview(c *gin.Context) {
	sc := session.FromGin(c)
	if sc == nil {
		common.RespondWithError(c, common.ErrInternalServer.WithDetails("session middleware not installed"))
		return
	}

	var query CustomerQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.logger.Warn("Invalid dashboard query", zap.Error(err))
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return
	}
	query.Page, query.PageSize = common.GetPaginationParams(c)

	overview, err := h.service.Overview(c.Request.Context(), Viewer{User: sc.CurrentUser(), Profile: sc.Profile()}, query)
	if err != nil {
		h.logger.Error("Failed to build dashboard", zap.Error(err))
		common.RespondWithError(c, err)
		return
	}
	common.RespondPaginated(c, "", overview, overview.Pagination)
}
