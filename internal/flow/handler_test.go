package flow

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"onboarding_backend/internal/middleware"
)

type client struct {
	t       *testing.T
	router  *gin.Engine
	cookies []*http.Cookie
}

func newTestRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	guards := middleware.NewGuards(f.recorder)
	handler := NewHandler(f.service, zap.NewNop())

	r := gin.New()
	r.Use(f.manager.Middleware(), handler.LeaveSuccess())
	handler.RegisterRoutes(r, guards.PublicOnly(), guards.SignupFlow(), func(c *gin.Context) { c.Next() })
	r.GET(PathDashboard, guards.AuthenticatedOnly(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return w
}

type envelope struct {
	Status string `json:"status"`
	Data   struct {
		Next string          `json:"next"`
		Data json.RawMessage `json:"data"`
	} `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHandler_SignupOverHTTP(t *testing.T) {
	f := newFixture(t)
	c := &client{t: t, router: newTestRouter(f)}

	w := c.do(http.MethodGet, PathRegister, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, c.cookies)

	// Skipping ahead bounces back to the first missing step.
	w = c.do(http.MethodGet, PathAddressForm, nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, PathAddressSearch, w.Header().Get("Location"))

	w = c.do(http.MethodPost, PathRegister, map[string]string{"email": "ana@example.com", "password": "abc12345", "confirmPassword": "abc12345"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Code)

	w = c.do(http.MethodPost, PathRegister, validRegistration("ana@example.com"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, PathPersonalInfo, decode(t, w).Data.Next)
	f.manager.WaitIdle()

	// Mid-signup the public pages are closed but the flow stays open.
	w = c.do(http.MethodGet, PathLogin, nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, PathDashboard, w.Header().Get("Location"))

	w = c.do(http.MethodGet, PathPersonalInfo, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = c.do(http.MethodPost, PathPersonalInfo, validPersonalInfo())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, PathAddressSearch, decode(t, w).Data.Next)

	w = c.do(http.MethodPost, PathAddressSearch, AddressSearchRequest{Action: ActionManual})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = c.do(http.MethodPost, PathAddressForm, validAddress())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, PathSuccess, decode(t, w).Data.Next)

	w = c.do(http.MethodGet, PathSuccess, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	timer := f.clock.last()
	require.NotNil(t, timer)
	assert.False(t, timer.stopped)

	w = c.do(http.MethodPost, PathSuccess, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, PathLogin, decode(t, w).Data.Next)

	w = c.do(http.MethodGet, PathDashboard, nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, PathLogin, w.Header().Get("Location"))
}

func TestHandler_LeavingSuccessCancelsAutoAdvance(t *testing.T) {
	f := newFixture(t)
	c := &client{t: t, router: newTestRouter(f)}

	c.do(http.MethodGet, PathRegister, nil)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, PathRegister, validRegistration("ana@example.com")).Code)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, PathPersonalInfo, validPersonalInfo()).Code)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, PathAddressSearch, AddressSearchRequest{Action: ActionManual}).Code)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, PathAddressForm, validAddress()).Code)
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, PathSuccess, nil).Code)
	timer := f.clock.last()

	c.do(http.MethodGet, PathDashboard, nil)
	assert.True(t, timer.stopped)
}

func TestHandler_GatewayErrorKeepsValues(t *testing.T) {
	f := newFixture(t)
	first := &client{t: t, router: newTestRouter(f)}
	require.Equal(t, http.StatusOK, first.do(http.MethodPost, PathRegister, validRegistration("ana@example.com")).Code)

	second := &client{t: t, router: first.router}
	w := second.do(http.MethodPost, PathRegister, validRegistration("ana@example.com"))
	assert.Equal(t, http.StatusConflict, w.Code)

	env := decode(t, w)
	assert.Equal(t, "EMAIL_IN_USE", env.Code)
	assert.JSONEq(t, `{"values":{"email":"ana@example.com"}}`, string(env.Details))
}

func TestHandler_MalformedBody(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, PathLogin, bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
