package profile

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	app "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/auth"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

func TestProfile(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Profile Module Suite")
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeInvalidator) Invalidate(ctx context.Context) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func adminUser() *auth.User {
	return &auth.User{ID: 3, Roles: []auth.RoleGrant{{Name: auth.RoleAdmin}}}
}

func managerUser() *auth.User {
	return &auth.User{ID: 2, Roles: []auth.RoleGrant{{Name: auth.RoleManager}}}
}

var _ = ginkgo.Describe("Profile Service", func() {
	var (
		mu        sync.Mutex
		hits      map[string]int
		server    *httptest.Server
		catalogs  *fakeInvalidator
		svc       *Service
		lastBody  []byte
		serveBody string
	)

	hitCount := func(key string) int {
		mu.Lock()
		defer mu.Unlock()
		return hits[key]
	}

	body := func() string {
		mu.Lock()
		defer mu.Unlock()
		return string(lastBody)
	}

	ginkgo.BeforeEach(func() {
		hits = make(map[string]int)
		serveBody = `{"success":true,"data":null}`
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			hits[r.Method+" "+r.URL.Path]++
			lastBody = body
			mu.Unlock()
			w.Write([]byte(serveBody))
		}))

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		api := upstream.NewClient(app.UpstreamConfig{
			BaseURL:   server.URL,
			APIPrefix: "/plugin/v1",
			Timeout:   2 * time.Second,
		}, logger)
		catalogs = &fakeInvalidator{}
		svc = NewService(api, catalogs, logger)
	})

	ginkgo.AfterEach(func() {
		server.Close()
	})

	ginkgo.Describe("GetUser", func() {
		ginkgo.It("fetches one user record by ID", func() {
			// Given
			serveBody = `{"success":true,"data":{"id":7,"display_name":"Sam","roles":[{"name":"user"}]}}`

			// When
			user, err := svc.GetUser(context.Background(), adminUser(), 7)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(user.ID).To(gomega.Equal(int64(7)))
			gomega.Expect(user.DisplayName).To(gomega.Equal("Sam"))
			gomega.Expect(hitCount("GET /plugin/v1/user/7")).To(gomega.Equal(1))
		})

		ginkgo.It("refuses a non-admin caller without touching the upstream", func() {
			// When
			_, err := svc.GetUser(context.Background(), managerUser(), 7)

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(hitCount("GET /plugin/v1/user/7")).To(gomega.Equal(0))
		})
	})

	ginkgo.Describe("ListUsers", func() {
		ginkgo.It("serves the admin listing", func() {
			// Given
			serveBody = `{"success":true,"data":[{"id":1},{"id":2}]}`

			// When
			users, err := svc.ListUsers(context.Background(), adminUser())

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(users).To(gomega.HaveLen(2))
		})

		ginkgo.It("refuses a non-admin caller", func() {
			_, err := svc.ListUsers(context.Background(), managerUser())
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("Assign", func() {
		ginkgo.It("posts the assignment and drops the session's cached catalogs", func() {
			// When
			err := svc.Assign(context.Background(), adminUser(), AssignmentDTO{UserID: 7, ProfileID: 10})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(hitCount("POST /plugin/v1/profiles/assign")).To(gomega.Equal(1))
			gomega.Expect(body()).To(gomega.ContainSubstring(`"profile_id":10`))
			gomega.Expect(catalogs.count()).To(gomega.Equal(1))
		})

		ginkgo.It("keeps the cache when the upstream rejects the assignment", func() {
			// Given
			server.Close()

			// When
			err := svc.Assign(context.Background(), adminUser(), AssignmentDTO{UserID: 7, ProfileID: 10})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(catalogs.count()).To(gomega.Equal(0))
		})

		ginkgo.It("refuses a non-admin caller without touching the upstream", func() {
			// When
			err := svc.Assign(context.Background(), managerUser(), AssignmentDTO{UserID: 7, ProfileID: 10})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(hitCount("POST /plugin/v1/profiles/assign")).To(gomega.Equal(0))
			gomega.Expect(catalogs.count()).To(gomega.Equal(0))
		})

		ginkgo.It("rejects an assignment missing either ID", func() {
			err := svc.Assign(context.Background(), adminUser(), AssignmentDTO{UserID: 7})
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(catalogs.count()).To(gomega.Equal(0))
		})
	})

	ginkgo.Describe("Revoke", func() {
		ginkgo.It("posts the revocation and drops the session's cached catalogs", func() {
			// When
			err := svc.Revoke(context.Background(), adminUser(), AssignmentDTO{UserID: 7, ProfileID: 10})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(hitCount("POST /plugin/v1/profiles/revoke")).To(gomega.Equal(1))
			gomega.Expect(catalogs.count()).To(gomega.Equal(1))
		})

		ginkgo.It("refuses a non-admin caller", func() {
			err := svc.Revoke(context.Background(), managerUser(), AssignmentDTO{UserID: 7, ProfileID: 10})
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(catalogs.count()).To(gomega.Equal(0))
		})
	})
})
