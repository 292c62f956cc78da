package middleware

import (
	"github.com/gin-gonic/gin"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/session"
)

// Guard paths.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// RedirectRecorder counts guard redirects.
type RedirectRecorder interface {
	GuardRedirected(step, target string)
}

// Guards builds the route wrappers. Every wrapper answers 503 LOADING while the
// session's initial auth state is unknown.
type Guards struct {
	recorder RedirectRecorder
}

func NewGuards(recorder RedirectRecorder) *Guards {
	return &Guards{recorder: recorder}
}

// PublicOnly sends authenticated users to the dashboard.
func (g *Guards) PublicOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := g.resolved(c)
		if !ok {
			return
		}
		if sc.CurrentUser() != nil {
			g.redirect(c, DashboardPath)
			return
		}
		c.Next()
	}
}

// SignupFlow admits anonymous users (the step guards decide from the draft) and
// authenticated users only while their signup is in progress or just finished.
// Anyone else authenticated belongs on the dashboard.
func (g *Guards) SignupFlow() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := g.resolved(c)
		if !ok {
			return
		}
		if sc.CurrentUser() == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		if sc.Completed(ctx) {
			c.Next()
			return
		}
		snap, err := sc.Draft.Snapshot(ctx)
		if err != nil {
			common.RespondWithError(c, err)
			return
		}
		if snap.Empty() {
			g.redirect(c, DashboardPath)
			return
		}
		c.Next()
	}
}

// AuthenticatedOnly sends anonymous users to login.
func (g *Guards) AuthenticatedOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := g.resolved(c)
		if !ok {
			return
		}
		if sc.CurrentUser() == nil {
			g.redirect(c, LoginPath)
			return
		}
		c.Next()
	}
}

func (g *Guards) resolved(c *gin.Context) (*session.Context, bool) {
	sc := session.FromGin(c)
	if sc == nil {
		common.RespondWithError(c, common.ErrInternalServer.WithDetails("session middleware not installed"))
		return nil, false
	}
	if sc.Loading() {
		c.Header("Retry-After", "1")
		common.RespondWithError(c, common.ErrLoading)
		return nil, false
	}
	return sc, true
}

func (g *Guards) redirect(c *gin.Context, to string) {
	if g.recorder != nil {
		g.recorder.GuardRedirected(c.FullPath(), to)
	}
	common.RespondRedirect(c, to)
}
