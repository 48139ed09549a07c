package authz

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Kosei0128/Plane-SNS/internal/constants"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestEnforceRoleMatchesPathPatterns(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/items/:id", "GET"); err != nil {
		t.Fatalf("grant role policy failed: %v", err)
	}

	allow, err := svc.EnforceRole("ops", "/api/v1/admin/items/42", "get")
	if err != nil {
		t.Fatalf("enforce allow failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected allow=true")
	}

	allow, err = svc.EnforceRole("role:ops", "/api/v1/admin/items/42", "POST")
	if err != nil {
		t.Fatalf("enforce deny failed: %v", err)
	}
	if allow {
		t.Fatalf("expected allow=false")
	}

	if _, err := svc.EnforceRole(" ", "/api/v1/admin/items/42", "GET"); err == nil {
		t.Fatalf("blank role must be rejected")
	}
}

func TestBuiltinRolesSeparateEditorFromBalance(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}
	// 重复执行不应报错
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}

	cases := []struct {
		role   string
		path   string
		method string
		want   bool
	}{
		{constants.AdminRoleAdmin, "/api/v1/admin/users/u1/balance", "PUT", true},
		{constants.AdminRoleAdmin, "/api/v1/admin/reconcile/credentials", "POST", true},
		{constants.AdminRoleEditor, "/api/v1/admin/items", "POST", true},
		{constants.AdminRoleEditor, "/api/v1/admin/items/7/credentials", "POST", true},
		{constants.AdminRoleEditor, "/api/v1/admin/credentials/9/release", "POST", true},
		{constants.AdminRoleEditor, "/api/v1/admin/orders", "GET", true},
		{constants.AdminRoleEditor, "/api/v1/admin/users/u1/balance", "PUT", false},
		{constants.AdminRoleEditor, "/api/v1/admin/users", "GET", false},
		{constants.AdminRoleEditor, "/api/v1/admin/reconcile/credentials", "POST", false},
	}
	for _, tc := range cases {
		allow, err := svc.EnforceRole(tc.role, tc.path, tc.method)
		if err != nil {
			t.Fatalf("enforce %s %s %s failed: %v", tc.role, tc.method, tc.path, err)
		}
		if allow != tc.want {
			t.Fatalf("enforce %s %s %s = %v, want %v", tc.role, tc.method, tc.path, allow, tc.want)
		}
	}
}

func TestRolePoliciesListsGrantsInOrder(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}
	policies, err := svc.RolePolicies(constants.AdminRoleEditor)
	if err != nil {
		t.Fatalf("list policies failed: %v", err)
	}
	if len(policies) != 8 {
		t.Fatalf("expected 8 editor policies, got %d: %+v", len(policies), policies)
	}
	if policies[0].Object != "/admin/credentials/:id" || policies[0].Action != "DELETE" {
		t.Fatalf("policies should be sorted by object: %+v", policies[0])
	}

	admin, err := svc.RolePolicies(constants.AdminRoleAdmin)
	if err != nil {
		t.Fatalf("list admin policies failed: %v", err)
	}
	if len(admin) != 1 || admin[0].Object != "/admin/*" || admin[0].Action != "*" {
		t.Fatalf("unexpected admin policies: %+v", admin)
	}
}

func TestNormalizeHelpers(t *testing.T) {
	if got := NormalizeObject("/api/v1/admin/items"); got != "/admin/items" {
		t.Fatalf("unexpected object: %s", got)
	}
	if got := NormalizeObject("admin/orders"); got != "/admin/orders" {
		t.Fatalf("unexpected object: %s", got)
	}
	if got := NormalizeObject("/api/v1"); got != "/" {
		t.Fatalf("unexpected root object: %s", got)
	}
	if got := NormalizeAction(" post "); got != "POST" {
		t.Fatalf("unexpected action: %s", got)
	}
	if _, err := NormalizeRole("  "); err == nil {
		t.Fatalf("expected error for blank role")
	}
	if _, err := NormalizeRole("role:"); err == nil {
		t.Fatalf("expected error for bare prefix")
	}
	if got, _ := NormalizeRole("editor"); got != "role:editor" {
		t.Fatalf("unexpected role: %s", got)
	}
}
