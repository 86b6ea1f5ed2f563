package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/transport"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

// mockService is a hand-rolled ServiceAPI for handler tests.
type mockService struct {
	user           *User
	currentUserErr error
	loginUser      *User
	loginSessionID string
	loginErr       error
	status         *SessionStatus
	logoutCalls    []string
}

func (m *mockService) Login(ctx context.Context, dto LoginDTO) (*User, string, error) {
	if m.loginErr != nil {
		return nil, "", m.loginErr
	}
	return m.loginUser, m.loginSessionID, nil
}

func (m *mockService) Logout(ctx context.Context, sessionID string) error {
	m.logoutCalls = append(m.logoutCalls, sessionID)
	return nil
}

func (m *mockService) Refresh(ctx context.Context, sessionID string) (string, error) {
	return "", internal.ErrSessionExpired
}

func (m *mockService) CurrentUser(ctx context.Context, sessionID string) (*User, error) {
	if m.currentUserErr != nil {
		return nil, m.currentUserErr
	}
	return m.user, nil
}

func (m *mockService) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	return m.status, nil
}

func (m *mockService) RecordActivity(ctx context.Context, sessionID string, dto ActivityDTO) error {
	return dto.Validate()
}

func (m *mockService) TokenSource(sessionID string) upstream.TokenSource {
	return staticTokenSource{token: "test"}
}

func (m *mockService) WithSession(ctx context.Context, sessionID string) context.Context {
	return internal.ContextWithSessionID(ctx, sessionID)
}

func (m *mockService) setCurrentUserError(err error) { m.currentUserErr = err }
func (m *mockService) clearErrors()                  { m.currentUserErr = nil; m.loginErr = nil }

var _ = ginkgo.Describe("Auth Handler guards", func() {
	var (
		svc     *mockService
		handler *Handler
		cookies *CookieManager
	)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(user).ToNot(gomega.BeNil())
		gomega.Expect(internal.SessionIDFromContext(r.Context())).ToNot(gomega.BeEmpty())
		w.WriteHeader(http.StatusOK)
	})

	ginkgo.BeforeEach(func() {
		cookies = NewCookieManager(internal.SecurityConfig{
			SessionSecret: "test-secret-test-secret-test-secret",
			CookieName:    "gateway_session",
			CookieTTL:     time.Hour,
		})
		svc = &mockService{user: userWithRoles(RoleUser)}
		svc.clearErrors()
		handler = NewHandler(transport.NewBaseHandler(discardLogger()), svc, cookies)
	})

	withSessionCookie := func(req *http.Request, sessionID string) *http.Request {
		recorder := httptest.NewRecorder()
		gomega.Expect(cookies.Issue(recorder, sessionID)).To(gomega.Succeed())
		for _, cookie := range recorder.Result().Cookies() {
			req.AddCookie(cookie)
		}
		return req
	}

	ginkgo.Describe("Middleware", func() {
		ginkgo.It("answers JSON 401 for requests without a session cookie", func() {
			// Given
			req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals", nil)
			recorder := httptest.NewRecorder()

			// When
			handler.Middleware(okHandler).ServeHTTP(recorder, req)

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(recorder.Header().Get("Location")).To(gomega.BeEmpty())
		})

		ginkgo.It("binds the user and session to the request context", func() {
			// Given
			req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/api/v1/approvals", nil), "sess-1")
			recorder := httptest.NewRecorder()

			// When
			handler.Middleware(okHandler).ServeHTTP(recorder, req)

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("clears the cookie when the session is no longer valid", func() {
			// Given
			svc.setCurrentUserError(internal.ErrSessionExpired)
			req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/api/v1/approvals", nil), "sess-1")
			recorder := httptest.NewRecorder()

			// When
			handler.Middleware(okHandler).ServeHTTP(recorder, req)

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
			cleared := recorder.Result().Cookies()
			gomega.Expect(cleared).ToNot(gomega.BeEmpty())
			gomega.Expect(cleared[0].MaxAge).To(gomega.BeNumerically("<", 0))
		})
	})

	ginkgo.Describe("PageMiddleware", func() {
		ginkgo.It("redirects anonymous visitors to login, carrying the target path", func() {
			// Given
			req := httptest.NewRequest(http.MethodGet, "/manager?tab=queue", nil)
			recorder := httptest.NewRecorder()

			// When
			handler.PageMiddleware(okHandler).ServeHTTP(recorder, req)

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusFound))
			gomega.Expect(recorder.Header().Get("Location")).To(gomega.Equal("/login?next=%2Fmanager%3Ftab%3Dqueue"))
		})

		ginkgo.It("redirects to login when the session turned invalid", func() {
			// Given
			svc.setCurrentUserError(internal.ErrSessionExpired)
			req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "sess-1")
			recorder := httptest.NewRecorder()

			// When
			handler.PageMiddleware(okHandler).ServeHTTP(recorder, req)

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusFound))
			gomega.Expect(recorder.Header().Get("Location")).To(gomega.HavePrefix("/login?next="))
		})

		ginkgo.It("renders the page for a live session", func() {
			// Given
			req := withSessionCookie(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "sess-1")
			recorder := httptest.NewRecorder()

			// When
			handler.PageMiddleware(okHandler).ServeHTTP(recorder, req)

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
		})
	})

	ginkgo.Describe("Logout", func() {
		ginkgo.It("is idempotent and always clears the cookie", func() {
			// Given: no session cookie at all.
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
			recorder := httptest.NewRecorder()

			// When
			handler.Logout(recorder, req)

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNoContent))
			gomega.Expect(svc.logoutCalls).To(gomega.BeEmpty())
			gomega.Expect(recorder.Result().Cookies()).ToNot(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("SessionStatus", func() {
		ginkgo.It("reports unauthenticated without a cookie instead of erroring", func() {
			// Given
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
			recorder := httptest.NewRecorder()

			// When
			handler.SessionStatus(recorder, req)

			// Then
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(recorder.Body.String()).To(gomega.ContainSubstring(`"authenticated":false`))
		})
	})
})
