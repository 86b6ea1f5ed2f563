package auth

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/approvalflow/approval-gateway/internal"
)

var _ = ginkgo.Describe("CookieManager", func() {
	var cm *CookieManager

	ginkgo.BeforeEach(func() {
		cm = NewCookieManager(internal.SecurityConfig{
			SessionSecret: "test-secret-test-secret-test-secret",
			CookieName:    "gateway_session",
			CookieTTL:     time.Hour,
		})
	})

	requestWithCookies := func(recorder *httptest.ResponseRecorder) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, cookie := range recorder.Result().Cookies() {
			req.AddCookie(cookie)
		}
		return req
	}

	ginkgo.It("round-trips the session ID through a signed cookie", func() {
		// Given
		recorder := httptest.NewRecorder()
		gomega.Expect(cm.Issue(recorder, "sess-abc")).To(gomega.Succeed())

		cookies := recorder.Result().Cookies()
		gomega.Expect(cookies).To(gomega.HaveLen(1))
		gomega.Expect(cookies[0].HttpOnly).To(gomega.BeTrue())
		gomega.Expect(cookies[0].Value).ToNot(gomega.ContainSubstring("sess-abc"))

		// When
		sessionID, ok := cm.SessionID(requestWithCookies(recorder))

		// Then
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(sessionID).To(gomega.Equal("sess-abc"))
	})

	ginkgo.It("rejects a cookie signed with a different secret", func() {
		// Given
		other := NewCookieManager(internal.SecurityConfig{
			SessionSecret: "some-entirely-different-secret-value",
			CookieName:    "gateway_session",
			CookieTTL:     time.Hour,
		})
		recorder := httptest.NewRecorder()
		gomega.Expect(other.Issue(recorder, "sess-abc")).To(gomega.Succeed())

		// When
		_, ok := cm.SessionID(requestWithCookies(recorder))

		// Then
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.It("rejects a request without the cookie", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		_, ok := cm.SessionID(req)

		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.It("clears the cookie by expiring it", func() {
		recorder := httptest.NewRecorder()

		cm.Clear(recorder)

		cookies := recorder.Result().Cookies()
		gomega.Expect(cookies).To(gomega.HaveLen(1))
		gomega.Expect(cookies[0].Value).To(gomega.BeEmpty())
		gomega.Expect(cookies[0].MaxAge).To(gomega.BeNumerically("<", 0))
	})
})
