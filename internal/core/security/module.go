package security

import (
	"go.uber.org/fx"

	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
)

// ModuleInput 安全模块输入依赖
type ModuleInput struct {
	fx.In

	Options *runtimeconfig.RuntimeOptions
	Logger  log.Logger `optional:"true"`
}

// ModuleOutput 安全模块输出服务
type ModuleOutput struct {
	fx.Out

	Authorizer runtime.Authorizer
}

// Module 返回安全模块
//
// 配置了 role_grants 时使用 RoleTable，否则使用占位授权规则。
func Module() fx.Option {
	return fx.Module("security",
		fx.Provide(ProvideAuthorizer),
	)
}

// ProvideAuthorizer 按配置选择访问控制判定
func ProvideAuthorizer(input ModuleInput) ModuleOutput {
	if input.Options != nil && len(input.Options.RoleGrants) > 0 {
		if input.Logger != nil {
			input.Logger.With("module", "security").Infof("access control uses role table with %d roles", len(input.Options.RoleGrants))
		}
		return ModuleOutput{Authorizer: NewRoleTable(input.Options.RoleGrants)}
	}
	if input.Logger != nil {
		input.Logger.With("module", "security").Warn("no role grants configured, access control uses the placeholder admin-suffix rule")
	}
	return ModuleOutput{Authorizer: PlaceholderAuthorizer{}}
}
