package security

import (
	"strings"
	"sync"

	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
)

// AdminRole 占位规则中唯一受限的角色
const AdminRole = "admin"

// PlaceholderAuthorizer 占位授权规则
//
// admin 角色要求调用者以 "admin" 结尾，其他角色一律授予。
// 没有真实角色数据库时的默认判定，生产部署应通过 WithAuthorizer 注入 RoleTable 或自定义实现。
type PlaceholderAuthorizer struct{}

// Authorize 实现 runtime.Authorizer
func (PlaceholderAuthorizer) Authorize(_, caller, requiredRole string) bool {
	if requiredRole == AdminRole {
		return strings.HasSuffix(caller, AdminRole)
	}
	return true
}

// AllowAll 授予所有角色
type AllowAll struct{}

// Authorize 实现 runtime.Authorizer
func (AllowAll) Authorize(string, string, string) bool { return true }

// RoleTable 基于显式授权表的判定，未登记的角色一律拒绝
type RoleTable struct {
	mu     sync.RWMutex
	grants map[string]map[string]struct{}
}

// NewRoleTable 从 角色 -> 调用者列表 创建授权表
func NewRoleTable(grants map[string][]string) *RoleTable {
	t := &RoleTable{grants: make(map[string]map[string]struct{}, len(grants))}
	for role, callers := range grants {
		for _, caller := range callers {
			t.Grant(role, caller)
		}
	}
	return t
}

// Grant 授予角色
func (t *RoleTable) Grant(role, caller string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.grants[role] == nil {
		t.grants[role] = map[string]struct{}{}
	}
	t.grants[role][caller] = struct{}{}
}

// Revoke 撤销角色
func (t *RoleTable) Revoke(role, caller string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.grants[role], caller)
}

// Authorize 实现 runtime.Authorizer
func (t *RoleTable) Authorize(_, caller, requiredRole string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.grants[requiredRole][caller]
	return ok
}

var (
	_ runtime.Authorizer = PlaceholderAuthorizer{}
	_ runtime.Authorizer = AllowAll{}
	_ runtime.Authorizer = (*RoleTable)(nil)
)
