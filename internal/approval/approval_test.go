package approval

import (
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/approvalflow/approval-gateway/internal/auth"
)

func TestApproval(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Approval Module Suite")
}

func managerUser() *auth.User {
	return &auth.User{ID: 2, Roles: []auth.RoleGrant{{Name: auth.RoleManager}}}
}

func plainUser() *auth.User {
	return &auth.User{
		ID:       1,
		Roles:    []auth.RoleGrant{{Name: auth.RoleUser}},
		Profiles: []auth.ProfileAssignment{{ProfileID: 10, IsActive: true}},
	}
}

func adminUser() *auth.User {
	return &auth.User{ID: 3, Roles: []auth.RoleGrant{{Name: auth.RoleAdmin}}}
}

var _ = ginkgo.Describe("Status", func() {
	ginkgo.It("knows the closed status set", func() {
		for _, s := range []Status{StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusNeedsRevision, StatusArchived} {
			gomega.Expect(s.Valid()).To(gomega.BeTrue(), string(s))
		}
		gomega.Expect(Status("draft").Valid()).To(gomega.BeFalse())
	})

	ginkgo.It("marks approved, rejected and cancelled as terminal", func() {
		gomega.Expect(StatusApproved.Terminal()).To(gomega.BeTrue())
		gomega.Expect(StatusRejected.Terminal()).To(gomega.BeTrue())
		gomega.Expect(StatusCancelled.Terminal()).To(gomega.BeTrue())
		gomega.Expect(StatusPending.Terminal()).To(gomega.BeFalse())
		gomega.Expect(StatusNeedsRevision.Terminal()).To(gomega.BeFalse())
		gomega.Expect(StatusArchived.Terminal()).To(gomega.BeFalse())
	})
})

var _ = ginkgo.Describe("Request affordances", func() {
	ginkgo.It("allows cancelling only while pending", func() {
		gomega.Expect((&Request{Status: StatusPending}).CanCancel()).To(gomega.BeTrue())
		gomega.Expect((&Request{Status: StatusApproved}).CanCancel()).To(gomega.BeFalse())
		gomega.Expect((&Request{Status: StatusNeedsRevision}).CanCancel()).To(gomega.BeFalse())
	})

	ginkgo.It("allows editing on needs_revision or an explicit edit grant", func() {
		gomega.Expect((&Request{Status: StatusNeedsRevision}).CanEdit()).To(gomega.BeTrue())
		gomega.Expect((&Request{Status: StatusPending, EditGranted: true}).CanEdit()).To(gomega.BeTrue())
		gomega.Expect((&Request{Status: StatusPending}).CanEdit()).To(gomega.BeFalse())
	})

	ginkgo.It("allows resubmitting only from needs_revision", func() {
		gomega.Expect((&Request{Status: StatusNeedsRevision}).CanResubmit()).To(gomega.BeTrue())
		gomega.Expect((&Request{Status: StatusRejected}).CanResubmit()).To(gomega.BeFalse())
	})

	ginkgo.It("allows deciding only for managers on pending requests", func() {
		pending := &Request{Status: StatusPending}

		gomega.Expect(pending.CanDecide(managerUser())).To(gomega.BeTrue())
		gomega.Expect(pending.CanDecide(adminUser())).To(gomega.BeTrue())
		gomega.Expect(pending.CanDecide(plainUser())).To(gomega.BeFalse())
		gomega.Expect(pending.CanDecide(nil)).To(gomega.BeFalse())
		gomega.Expect((&Request{Status: StatusApproved}).CanDecide(managerUser())).To(gomega.BeFalse())
	})

	ginkgo.It("allows restoring only archived requests", func() {
		gomega.Expect((&Request{Status: StatusArchived}).CanRestore()).To(gomega.BeTrue())
		gomega.Expect((&Request{Status: StatusApproved}).CanRestore()).To(gomega.BeFalse())
	})
})

var _ = ginkgo.Describe("DTO validation", func() {
	ginkgo.Describe("SubmitDTO", func() {
		ginkgo.It("accepts a complete submission", func() {
			dto := SubmitDTO{ProfileID: 10, Amount: 125.50, Description: "Standing desk"}

			gomega.Expect(dto.Validate()).To(gomega.Succeed())
		})

		ginkgo.It("rejects a missing profile", func() {
			dto := SubmitDTO{Amount: 125.50, Description: "Standing desk"}

			gomega.Expect(dto.Validate()).To(gomega.HaveOccurred())
		})

		ginkgo.It("rejects a non-positive amount", func() {
			dto := SubmitDTO{ProfileID: 10, Amount: 0, Description: "Standing desk"}
			gomega.Expect(dto.Validate()).To(gomega.HaveOccurred())

			dto.Amount = -5
			gomega.Expect(dto.Validate()).To(gomega.HaveOccurred())
		})

		ginkgo.It("bounds the description length", func() {
			dto := SubmitDTO{ProfileID: 10, Amount: 1, Description: ""}
			gomega.Expect(dto.Validate()).To(gomega.HaveOccurred())

			long := make([]byte, 1001)
			for i := range long {
				long[i] = 'x'
			}
			dto.Description = string(long)
			gomega.Expect(dto.Validate()).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("DecisionDTO", func() {
		ginkgo.It("accepts approve and reject with optional notes", func() {
			gomega.Expect((&DecisionDTO{Action: ActionApprove}).Validate()).To(gomega.Succeed())
			gomega.Expect((&DecisionDTO{Action: ActionReject, Notes: "over budget"}).Validate()).To(gomega.Succeed())
		})

		ginkgo.It("rejects an unknown action", func() {
			gomega.Expect((&DecisionDTO{Action: "escalate"}).Validate()).To(gomega.HaveOccurred())
		})

		ginkgo.It("requires a target manager for delegation", func() {
			gomega.Expect((&DecisionDTO{Action: ActionDelegate}).Validate()).To(gomega.HaveOccurred())

			target := int64(9)
			gomega.Expect((&DecisionDTO{Action: ActionDelegate, DelegateToID: &target}).Validate()).To(gomega.Succeed())
		})

		ginkgo.It("bounds the notes length", func() {
			long := make([]byte, 501)
			for i := range long {
				long[i] = 'x'
			}

			gomega.Expect((&DecisionDTO{Action: ActionApprove, Notes: string(long)}).Validate()).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("ArchiveDTO", func() {
		ginkgo.It("requires at least one request", func() {
			gomega.Expect((&ArchiveDTO{}).Validate()).To(gomega.HaveOccurred())
			gomega.Expect((&ArchiveDTO{RequestIDs: []int64{1, 2}}).Validate()).To(gomega.Succeed())
		})
	})
})
