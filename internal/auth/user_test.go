package auth

import (
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func userWithRoles(roles ...Role) *User {
	u := &User{ID: 1, Email: "pat@example.com"}
	for i, role := range roles {
		u.Roles = append(u.Roles, RoleGrant{ID: int64(i + 1), Name: role})
	}
	return u
}

var _ = ginkgo.Describe("User", func() {
	ginkgo.Describe("role queries", func() {
		ginkgo.It("matches held roles only", func() {
			user := userWithRoles(RoleUser)

			gomega.Expect(user.HasRole(RoleUser)).To(gomega.BeTrue())
			gomega.Expect(user.HasRole(RoleManager)).To(gomega.BeFalse())
			gomega.Expect(user.HasAnyRole(RoleManager, RoleAdmin)).To(gomega.BeFalse())
			gomega.Expect(user.HasAnyRole(RoleManager, RoleUser)).To(gomega.BeTrue())
		})

		ginkgo.It("treats admins as managers for decision rights", func() {
			gomega.Expect(userWithRoles(RoleAdmin).IsManager()).To(gomega.BeTrue())
			gomega.Expect(userWithRoles(RoleManager).IsManager()).To(gomega.BeTrue())
			gomega.Expect(userWithRoles(RoleUser).IsManager()).To(gomega.BeFalse())
		})

		ginkgo.It("does not treat managers as admins", func() {
			gomega.Expect(userWithRoles(RoleManager).IsAdmin()).To(gomega.BeFalse())
			gomega.Expect(userWithRoles(RoleAdmin).IsAdmin()).To(gomega.BeTrue())
		})

		ginkgo.It("finds capabilities across all role grants", func() {
			user := &User{Roles: []RoleGrant{
				{Name: RoleUser, Capabilities: []string{"submit_request"}},
				{Name: RoleManager, Capabilities: []string{"decide_request"}},
			}}

			gomega.Expect(user.HasCapability("decide_request")).To(gomega.BeTrue())
			gomega.Expect(user.HasCapability("delete_everything")).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("PrimaryRole", func() {
		ginkgo.It("prefers admin over manager over user", func() {
			role, ok := userWithRoles(RoleUser, RoleManager, RoleAdmin).PrimaryRole()

			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(role).To(gomega.Equal(RoleAdmin))

			role, _ = userWithRoles(RoleUser, RoleManager).PrimaryRole()
			gomega.Expect(role).To(gomega.Equal(RoleManager))
		})

		ginkgo.It("falls back to the first listed role for names outside the known set", func() {
			user := &User{Roles: []RoleGrant{{Name: Role("auditor")}}}

			role, ok := user.PrimaryRole()

			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(role).To(gomega.Equal(Role("auditor")))
		})

		ginkgo.It("reports a user with no roles", func() {
			_, ok := (&User{}).PrimaryRole()

			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("DefaultRoute", func() {
		ginkgo.It("routes by the primary role", func() {
			gomega.Expect(userWithRoles(RoleAdmin, RoleUser).DefaultRoute()).To(gomega.Equal("/admin"))
			gomega.Expect(userWithRoles(RoleManager).DefaultRoute()).To(gomega.Equal("/manager"))
			gomega.Expect(userWithRoles(RoleUser).DefaultRoute()).To(gomega.Equal("/dashboard"))
			gomega.Expect((&User{}).DefaultRoute()).To(gomega.Equal("/dashboard"))
		})
	})

	ginkgo.Describe("HasProfile", func() {
		ginkgo.It("counts only active assignments", func() {
			user := &User{Profiles: []ProfileAssignment{
				{ProfileID: 10, IsActive: true},
				{ProfileID: 20, IsActive: false},
			}}

			gomega.Expect(user.HasProfile(10)).To(gomega.BeTrue())
			gomega.Expect(user.HasProfile(20)).To(gomega.BeFalse())
			gomega.Expect(user.HasProfile(30)).To(gomega.BeFalse())
		})
	})
})
