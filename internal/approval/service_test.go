package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	app "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/core/events"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

// upstreamStub scripts the remote approval API and counts hits per
// method+path.
type upstreamStub struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	hits      map[string]int
	server    *httptest.Server
}

type stubResponse struct {
	status int
	body   string
}

func newUpstreamStub() *upstreamStub {
	stub := &upstreamStub{
		responses: make(map[string]stubResponse),
		hits:      make(map[string]int),
	}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		stub.mu.Lock()
		stub.hits[key]++
		resp, ok := stub.responses[key]
		stub.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"message":"not found"}`))
			return
		}
		if resp.status != 0 {
			w.WriteHeader(resp.status)
		}
		w.Write([]byte(resp.body))
	}))
	return stub
}

func (s *upstreamStub) on(method, path string, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method+" "+path] = stubResponse{body: body}
}

func (s *upstreamStub) onStatus(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method+" "+path] = stubResponse{status: status, body: body}
}

func (s *upstreamStub) hitCount(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

func (s *upstreamStub) close() {
	s.server.Close()
}

func newApprovalService(stub *upstreamStub) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := upstream.NewClient(app.UpstreamConfig{
		BaseURL:   stub.server.URL,
		APIPrefix: "/plugin/v1",
		Timeout:   2 * time.Second,
	}, logger)
	bus := events.NewEventBus(logger)
	return NewService(api, app.CacheConfig{StaleAfter: 5 * time.Minute}, bus, logger)
}

var _ = ginkgo.Describe("Approval Service", func() {
	var (
		stub *upstreamStub
		svc  *Service
		ctx  context.Context
	)

	ginkgo.BeforeEach(func() {
		stub = newUpstreamStub()
		svc = newApprovalService(stub)
		ctx = app.ContextWithSessionID(context.Background(), "sess-1")
	})

	ginkgo.AfterEach(func() {
		stub.close()
	})

	ginkgo.Describe("List", func() {
		ginkgo.It("serves repeat reads from the cache", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals", `{"success":true,"data":[{"id":1,"status":"pending"}]}`)

			// When
			first, err := svc.List(ctx, ListQuery{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			second, err := svc.List(ctx, ListQuery{})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(first).To(gomega.HaveLen(1))
			gomega.Expect(second).To(gomega.HaveLen(1))
			gomega.Expect(stub.hitCount("GET", "/plugin/v1/approvals")).To(gomega.Equal(1))
		})

		ginkgo.It("caches each filter combination separately", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals", `{"success":true,"data":[]}`)

			// When
			svc.List(ctx, ListQuery{Status: "pending"})
			svc.List(ctx, ListQuery{Status: "approved"})
			svc.List(ctx, ListQuery{Status: "pending"})

			// Then
			gomega.Expect(stub.hitCount("GET", "/plugin/v1/approvals")).To(gomega.Equal(2))
		})
	})

	ginkgo.Describe("Get", func() {
		ginkgo.It("maps an upstream 404 to a not-found error", func() {
			// When
			_, err := svc.Get(ctx, 99)

			// Then
			gomega.Expect(err).To(gomega.MatchError(app.ErrRequestNotFound))
		})
	})

	ginkgo.Describe("Submit", func() {
		ginkgo.It("rejects a profile the user does not hold", func() {
			// When
			_, err := svc.Submit(ctx, plainUser(), SubmitDTO{ProfileID: 999, Amount: 10, Description: "Cables"})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(stub.hitCount("POST", "/plugin/v1/approvals")).To(gomega.Equal(0))
		})

		ginkgo.It("creates the request and invalidates the session's cached lists", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals", `{"success":true,"data":[]}`)
			stub.on("POST", "/plugin/v1/approvals", `{"success":true,"data":{"id":7,"status":"pending","amount":10}}`)
			svc.List(ctx, ListQuery{})
			gomega.Expect(stub.hitCount("GET", "/plugin/v1/approvals")).To(gomega.Equal(1))

			// When
			created, err := svc.Submit(ctx, plainUser(), SubmitDTO{ProfileID: 10, Amount: 10, Description: "Cables"})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(created.ID).To(gomega.Equal(int64(7)))
			gomega.Expect(created.Status).To(gomega.Equal(StatusPending))

			svc.List(ctx, ListQuery{})
			gomega.Expect(stub.hitCount("GET", "/plugin/v1/approvals")).To(gomega.Equal(2))
		})
	})

	ginkgo.Describe("Cancel", func() {
		ginkgo.It("refuses locally when the cached status disallows it", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals/7", `{"success":true,"data":{"id":7,"status":"approved"}}`)

			// When
			_, err := svc.Cancel(ctx, plainUser(), 7)

			// Then
			gomega.Expect(err).To(gomega.MatchError(app.ErrInvalidRequestStatus))
			gomega.Expect(stub.hitCount("POST", "/plugin/v1/approvals/7/cancel")).To(gomega.Equal(0))
		})

		ginkgo.It("adopts the state the server answers with", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals/7", `{"success":true,"data":{"id":7,"status":"pending"}}`)
			stub.on("POST", "/plugin/v1/approvals/7/cancel", `{"success":true,"data":{"id":7,"status":"cancelled"}}`)

			// When
			updated, err := svc.Cancel(ctx, plainUser(), 7)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(updated.Status).To(gomega.Equal(StatusCancelled))
		})

		ginkgo.It("surfaces the server's rejection even when the affordance allowed it", func() {
			// Given: the cached copy still says pending, the server disagrees.
			stub.on("GET", "/plugin/v1/approvals/7", `{"success":true,"data":{"id":7,"status":"pending"}}`)
			stub.onStatus("POST", "/plugin/v1/approvals/7/cancel", http.StatusConflict,
				`{"success":false,"message":"request is no longer pending"}`)

			// When
			_, err := svc.Cancel(ctx, plainUser(), 7)

			// Then
			var appErr *app.AppError
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errors.As(err, &appErr)).To(gomega.BeTrue())
			gomega.Expect(appErr.Message).To(gomega.Equal("request is no longer pending"))
		})
	})

	ginkgo.Describe("Resubmit", func() {
		ginkgo.It("pushes a needs_revision request back to pending", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals/7", `{"success":true,"data":{"id":7,"status":"needs_revision"}}`)
			stub.on("POST", "/plugin/v1/approvals/7/resubmit", `{"success":true,"data":{"id":7,"status":"pending"}}`)

			// When
			updated, err := svc.Resubmit(ctx, plainUser(), 7, ResubmitDTO{Amount: 12, Description: "Cables, revised"})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(updated.Status).To(gomega.Equal(StatusPending))
		})

		ginkgo.It("refuses to resubmit from any other status", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals/7", `{"success":true,"data":{"id":7,"status":"rejected"}}`)

			// When
			_, err := svc.Resubmit(ctx, plainUser(), 7, ResubmitDTO{Amount: 12, Description: "Cables"})

			// Then
			gomega.Expect(err).To(gomega.MatchError(app.ErrInvalidRequestStatus))
		})
	})

	ginkgo.Describe("Decide", func() {
		ginkgo.It("forbids non-managers", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals/7", `{"success":true,"data":{"id":7,"status":"pending"}}`)

			// When
			_, err := svc.Decide(ctx, plainUser(), 7, DecisionDTO{Action: ActionApprove})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(stub.hitCount("POST", "/plugin/v1/approvals/7/decision")).To(gomega.Equal(0))
		})

		ginkgo.It("records a manager's verdict", func() {
			// Given
			stub.on("GET", "/plugin/v1/approvals/7", `{"success":true,"data":{"id":7,"status":"pending"}}`)
			stub.on("POST", "/plugin/v1/approvals/7/decision", `{"success":true,"data":{"id":7,"status":"approved"}}`)

			// When
			updated, err := svc.Decide(ctx, managerUser(), 7, DecisionDTO{Action: ActionApprove, Notes: "within budget"})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(updated.Status).To(gomega.Equal(StatusApproved))
		})
	})

	ginkgo.Describe("Archive and Restore", func() {
		ginkgo.It("restricts archiving to administrators", func() {
			// When
			err := svc.Archive(ctx, managerUser(), ArchiveDTO{RequestIDs: []int64{1}})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(stub.hitCount("POST", "/plugin/v1/approvals/archive")).To(gomega.Equal(0))
		})

		ginkgo.It("archives a batch as admin", func() {
			// Given
			stub.on("POST", "/plugin/v1/approvals/archive", `{"success":true}`)

			// When
			err := svc.Archive(ctx, adminUser(), ArchiveDTO{RequestIDs: []int64{1, 2}})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stub.hitCount("POST", "/plugin/v1/approvals/archive")).To(gomega.Equal(1))
		})

		ginkgo.It("restores an archived request as admin", func() {
			// Given
			stub.on("POST", "/plugin/v1/approvals/9/restore", `{"success":true,"data":{"id":9,"status":"approved"}}`)

			// When
			updated, err := svc.Restore(ctx, adminUser(), 9)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(updated.Status).To(gomega.Equal(StatusApproved))
		})
	})

	ginkgo.Describe("ValidateOrder", func() {
		ginkgo.It("returns the upstream verdict", func() {
			// Given
			stub.on("POST", "/plugin/v1/validate-order", `{"success":true,"data":{"valid":false,"message":"order number already used"}}`)

			// When
			verdict, err := svc.ValidateOrder(ctx, "PO-123")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(verdict.Valid).To(gomega.BeFalse())
			gomega.Expect(verdict.Message).To(gomega.Equal("order number already used"))
		})
	})
})
