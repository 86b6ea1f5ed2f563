package upstream

import "fmt"

// Endpoints builds the path catalog of the remote approval API. Functional
// endpoints live under the plugin prefix; token issue/refresh/validate live
// under the JWT auth prefix.
type Endpoints struct {
	api  string
	auth string
}

func NewEndpoints(apiPrefix, authPrefix string) Endpoints {
	return Endpoints{api: apiPrefix, auth: authPrefix}
}

// Authentication and user info.

func (e Endpoints) Login() string         { return e.api + "/login" }
func (e Endpoints) TokenRefresh() string  { return e.auth + "/token/refresh" }
func (e Endpoints) TokenValidate() string { return e.auth + "/token/validate" }
func (e Endpoints) Me() string            { return e.api + "/user/me" }
func (e Endpoints) User(id int64) string  { return fmt.Sprintf("%s/user/%d", e.api, id) }

// Request lifecycle.

func (e Endpoints) Approvals() string { return e.api + "/approvals" }
func (e Endpoints) Approval(id int64) string {
	return fmt.Sprintf("%s/approvals/%d", e.api, id)
}
func (e Endpoints) DecideApproval(id int64) string {
	return fmt.Sprintf("%s/approvals/%d/decision", e.api, id)
}
func (e Endpoints) CancelApproval(id int64) string {
	return fmt.Sprintf("%s/approvals/%d/cancel", e.api, id)
}
func (e Endpoints) GrantEditApproval(id int64) string {
	return fmt.Sprintf("%s/approvals/%d/grant-edit", e.api, id)
}
func (e Endpoints) ResubmitApproval(id int64) string {
	return fmt.Sprintf("%s/approvals/%d/resubmit", e.api, id)
}
func (e Endpoints) RestoreApproval(id int64) string {
	return fmt.Sprintf("%s/approvals/%d/restore", e.api, id)
}
func (e Endpoints) ApprovalHistory(id int64) string {
	return fmt.Sprintf("%s/approvals/%d/history", e.api, id)
}
func (e Endpoints) ArchiveApprovals() string { return e.api + "/approvals/archive" }

// Reference data, scoped server-side by the caller's profile.

func (e Endpoints) RefCompanies() string        { return e.api + "/ref/companies" }
func (e Endpoints) RefBranches() string         { return e.api + "/ref/branches" }
func (e Endpoints) RefDepartments() string      { return e.api + "/ref/departments" }
func (e Endpoints) RefCategories() string       { return e.api + "/ref/categories" }
func (e Endpoints) RefSuppliers() string        { return e.api + "/ref/suppliers" }
func (e Endpoints) RefProjects() string         { return e.api + "/ref/projects" }
func (e Endpoints) RefRequesters() string       { return e.api + "/ref/requesters" }
func (e Endpoints) RefPaymentMethods() string   { return e.api + "/ref/payment-methods" }
func (e Endpoints) RefApprovalStatuses() string { return e.api + "/ref/approval-statuses" }

// Profile assignment and order validation.

func (e Endpoints) AssignProfile() string { return e.api + "/profiles/assign" }
func (e Endpoints) RevokeProfile() string { return e.api + "/profiles/revoke" }
func (e Endpoints) Users() string         { return e.api + "/users" }
func (e Endpoints) ValidateOrder() string { return e.api + "/validate-order" }
