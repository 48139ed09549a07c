package authz

import (
	"fmt"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
)

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Policies []Policy
}

// BuiltinRoleSeeds 预置角色矩阵：admin 拥有全部后台权限，editor 管理商品与库存
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: constants.AdminRoleAdmin,
			Policies: []Policy{
				{Object: "/admin/*", Action: "*"},
			},
		},
		{
			Role: constants.AdminRoleEditor,
			Policies: []Policy{
				{Object: "/admin/me", Action: "GET"},
				{Object: "/admin/items", Action: "*"},
				{Object: "/admin/items/:id", Action: "*"},
				{Object: "/admin/items/:id/credentials", Action: "*"},
				{Object: "/admin/credentials/:id", Action: "DELETE"},
				{Object: "/admin/credentials/:id/release", Action: "POST"},
				{Object: "/admin/history", Action: "GET"},
				{Object: "/admin/orders", Action: "GET"},
			},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略，可重复执行
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	for _, seed := range BuiltinRoleSeeds() {
		for _, policy := range seed.Policies {
			if err := s.GrantRolePolicy(seed.Role, policy.Object, policy.Action); err != nil {
				return fmt.Errorf("bootstrap role %s failed: %w", seed.Role, err)
			}
		}
	}
	return nil
}
