package flow

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/session"
)

// Handler exposes the flow over HTTP. GET enters a step, POST submits it.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger.Named("flow")}
}

// RegisterRoutes mounts the flow. publicOnly guards login and register,
// signupFlow guards the remaining steps and authLimit throttles credential
// submissions.
func (h *Handler) RegisterRoutes(router gin.IRouter, publicOnly, signupFlow, authLimit gin.HandlerFunc) {
	public := router.Group("", publicOnly)
	{
		public.GET(PathLogin, h.enter(func(ctx context.Context, _ *session.Context) (*Outcome, error) {
			return &Outcome{Next: PathLogin}, nil
		}))
		public.POST(PathLogin, authLimit, h.login)
		public.GET(PathRegister, h.enter(func(ctx context.Context, _ *session.Context) (*Outcome, error) {
			return &Outcome{Next: PathRegister}, nil
		}))
		public.POST(PathRegister, authLimit, h.register)
	}

	steps := router.Group("", signupFlow)
	{
		steps.GET(PathPersonalInfo, h.enter(h.service.EnterPersonalInfo))
		steps.POST(PathPersonalInfo, h.personalInfo)
		steps.GET(PathAddressSearch, h.enter(h.service.EnterAddressSearch))
		steps.POST(PathAddressSearch, h.addressSearch)
		steps.GET(PathAddressForm, h.enter(h.service.EnterAddressForm))
		steps.POST(PathAddressForm, h.addressForm)
		steps.GET(PathSuccess, h.enter(h.service.EnterSuccess))
		steps.POST(PathSuccess, h.enter(h.service.FinishSuccess))
	}

	router.POST("/logout", h.enter(h.service.Logout))
	router.GET("/session", h.enter(h.service.Status))
}

// pagePaths are the screens whose display unmounts the success screen.
var pagePaths = map[string]bool{
	PathLogin:         true,
	PathRegister:      true,
	PathPersonalInfo:  true,
	PathAddressSearch: true,
	PathAddressForm:   true,
	PathDashboard:     true,
}

// LeaveSuccess cancels a pending success-screen auto-advance when the session
// shows any other screen.
func (h *Handler) LeaveSuccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		if pagePaths[c.FullPath()] {
			if sc := session.FromGin(c); sc != nil && h.service.Timers().Unmount(sc.ID()) {
				h.logger.Debug("Success screen left; auto-advance cancelled", zap.String("sid", sc.ID()))
			}
		}
		c.Next()
	}
}

func (h *Handler) enter(fn func(ctx context.Context, sc *session.Context) (*Outcome, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := session.FromGin(c)
		if sc == nil {
			common.RespondWithError(c, common.ErrInternalServer.WithDetails("session middleware not installed"))
			return
		}
		out, err := fn(c.Request.Context(), sc)
		h.respond(c, out, err)
	}
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.service.Login(c.Request.Context(), session.FromGin(c), req)
	h.respond(c, out, err)
}

func (h *Handler) register(c *gin.Context) {
	var req RegisterRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.service.Register(c.Request.Context(), session.FromGin(c), req)
	h.respond(c, out, err)
}

func (h *Handler) personalInfo(c *gin.Context) {
	var req PersonalInfoRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.service.SubmitPersonalInfo(c.Request.Context(), session.FromGin(c), req)
	h.respond(c, out, err)
}

func (h *Handler) addressSearch(c *gin.Context) {
	var req AddressSearchRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.service.SubmitAddressSearch(c.Request.Context(), session.FromGin(c), req)
	h.respond(c, out, err)
}

func (h *Handler) addressForm(c *gin.Context) {
	var req AddressFormRequest
	if !h.bind(c, &req) {
		return
	}
	out, err := h.service.SubmitAddressForm(c.Request.Context(), session.FromGin(c), req)
	h.respond(c, out, err)
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("Invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, out *Outcome, err error) {
	if err == nil {
		common.RespondOK(c, "", out)
		return
	}

	var redirect *RedirectError
	switch {
	case errors.As(err, &redirect):
		common.RespondRedirect(c, redirect.To)
	case errors.Is(err, ErrStale):
		h.logger.Debug("Discarding result for a request that already ended", zap.String("path", c.FullPath()))
		c.Abort()
	default:
		if apiErr, ok := toAPIError(err); ok {
			common.RespondWithError(c, apiErr)
			return
		}
		common.RespondWithError(c, err)
	}
}
