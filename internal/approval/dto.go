package approval

import (
	errors "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/core/common/validation"
)

// SubmitDTO creates a new purchase request. Reference IDs must come from
// the catalogs scoped to the chosen profile; the upstream re-validates all
// of them.
type SubmitDTO struct {
	ProfileID       int64   `json:"profile_id"`
	Amount          float64 `json:"amount"`
	Description     string  `json:"description"`
	SupplierID      *int64  `json:"supplier_id,omitempty"`
	CategoryID      *int64  `json:"category_id,omitempty"`
	ProjectID       *int64  `json:"project_id,omitempty"`
	BranchID        *int64  `json:"branch_id,omitempty"`
	PaymentMethodID *int64  `json:"payment_method_id,omitempty"`
	OrderNumber     string  `json:"order_number,omitempty"`
}

func (d *SubmitDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("profile_id", d.ProfileID).Required()
	validator.Field("amount", d.Amount).Positive(errors.ErrCodeInvalidAmount)
	validator.Field("description", d.Description).
		Required().
		MinLength(1).
		MaxLength(1000)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

// ResubmitDTO carries the edited fields of a needs_revision request.
type ResubmitDTO struct {
	Amount          float64 `json:"amount"`
	Description     string  `json:"description"`
	SupplierID      *int64  `json:"supplier_id,omitempty"`
	CategoryID      *int64  `json:"category_id,omitempty"`
	ProjectID       *int64  `json:"project_id,omitempty"`
	BranchID        *int64  `json:"branch_id,omitempty"`
	PaymentMethodID *int64  `json:"payment_method_id,omitempty"`
}

func (d *ResubmitDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("amount", d.Amount).Positive(errors.ErrCodeInvalidAmount)
	validator.Field("description", d.Description).
		Required().
		MinLength(1).
		MaxLength(1000)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionDelegate = "delegate"
)

// DecisionDTO is a manager's verdict on a pending request. Delegation
// needs a target manager; approve and reject take optional notes.
type DecisionDTO struct {
	Action       string `json:"action"`
	Notes        string `json:"notes,omitempty"`
	DelegateToID *int64 `json:"delegate_to_id,omitempty"`
}

func (d *DecisionDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("action", d.Action).
		Required().
		OneOf([]string{ActionApprove, ActionReject, ActionDelegate}, errors.ErrCodeInvalidAction)
	validator.Field("notes", d.Notes).MaxLength(500)
	if err := validator.Validate(); err != nil {
		return err
	}
	if d.Action == ActionDelegate && (d.DelegateToID == nil || *d.DelegateToID == 0) {
		return errors.NewValidationFieldError("delegate_to_id", "delegation requires a target manager", errors.ErrCodeDelegateRequired)
	}
	return nil
}

// ArchiveDTO names the terminal-status requests an admin wants parked.
type ArchiveDTO struct {
	RequestIDs []int64 `json:"request_ids"`
}

func (d *ArchiveDTO) Validate() error {
	if len(d.RequestIDs) == 0 {
		return errors.NewValidationFieldError("request_ids", "at least one request is required", errors.ErrCodeValidationFailed)
	}
	return nil
}

// ListQuery narrows a request listing. Scope selects whose requests:
// "mine", "pending" (decision queue) or "all" (admin).
type ListQuery struct {
	Status string `json:"status,omitempty"`
	Scope  string `json:"scope,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
