package validation

import (
	"strings"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	errors "github.com/approvalflow/approval-gateway/internal"
)

func TestValidation(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Validation Suite")
}

var _ = ginkgo.Describe("ValidationBuilder", func() {
	ginkgo.It("passes when every field satisfies its rules", func() {
		validator := NewValidator()
		validator.Field("name", "desk lamp").Required().MaxLength(100)
		validator.Field("amount", 12.50).Positive(errors.ErrCodeInvalidAmount)

		gomega.Expect(validator.Validate()).To(gomega.BeNil())
	})

	ginkgo.It("collects every failing field into one error", func() {
		validator := NewValidator()
		validator.Field("username", "").Required()
		validator.Field("amount", -1.0).Positive(errors.ErrCodeInvalidAmount)

		err := validator.Validate()

		gomega.Expect(err).ToNot(gomega.BeNil())
		details, ok := err.Details.(errors.ValidationErrors)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(details.Errors).To(gomega.HaveLen(2))
	})

	ginkgo.It("treats whitespace-only strings as missing", func() {
		validator := NewValidator()
		validator.Field("description", "   ").Required()

		gomega.Expect(validator.Validate()).ToNot(gomega.BeNil())
	})

	ginkgo.It("treats a zero ID as missing", func() {
		validator := NewValidator()
		validator.Field("profile_id", int64(0)).Required()

		gomega.Expect(validator.Validate()).ToNot(gomega.BeNil())
	})

	ginkgo.It("restricts OneOf fields to the allowed set", func() {
		validator := NewValidator()
		validator.Field("action", "escalate").OneOf([]string{"approve", "reject"}, errors.ErrCodeInvalidAction)

		err := validator.Validate()

		gomega.Expect(err).ToNot(gomega.BeNil())
	})

	ginkgo.It("runs custom validators", func() {
		validator := NewValidator()
		validator.Field("order_number", "po-123").Custom(func(value interface{}) *errors.AppError {
			if v, ok := value.(string); ok && !strings.HasPrefix(v, "PO-") {
				return errors.NewValidationFieldError("order_number", "must start with PO-", errors.ErrCodeValidationFailed)
			}
			return nil
		})

		gomega.Expect(validator.Validate()).ToNot(gomega.BeNil())
	})
})

var _ = ginkgo.Describe("request field helpers", func() {
	ginkgo.It("accepts only positive amounts", func() {
		gomega.Expect(ValidateRequestAmount(10)).To(gomega.BeNil())
		gomega.Expect(ValidateRequestAmount(0)).ToNot(gomega.BeNil())
		gomega.Expect(ValidateRequestAmount(-3)).ToNot(gomega.BeNil())
	})

	ginkgo.It("bounds descriptions to a thousand characters", func() {
		gomega.Expect(ValidateRequestDescription("chairs")).To(gomega.BeNil())
		gomega.Expect(ValidateRequestDescription("")).ToNot(gomega.BeNil())
		gomega.Expect(ValidateRequestDescription(strings.Repeat("x", 1001))).ToNot(gomega.BeNil())
	})

	ginkgo.It("allows empty decision notes but bounds long ones", func() {
		gomega.Expect(ValidateDecisionNotes("")).To(gomega.BeNil())
		gomega.Expect(ValidateDecisionNotes(strings.Repeat("x", 501))).ToNot(gomega.BeNil())
	})
})
