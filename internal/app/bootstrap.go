package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/weisyn/chainruntime/internal/api"
	configimpl "github.com/weisyn/chainruntime/internal/config"
	"github.com/weisyn/chainruntime/internal/core/engines"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/event"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/log"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/metrics"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/storage"
	coreruntime "github.com/weisyn/chainruntime/internal/core/runtime"
	"github.com/weisyn/chainruntime/internal/core/security"
	"github.com/weisyn/chainruntime/pkg/interfaces/config"
	logiface "github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
)

// startTimeout 启动超时
const startTimeout = 30 * time.Second

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts  *options
	fxApp *fx.App

	manager  *coreruntime.Manager
	provider config.Provider
	logger   logiface.Logger
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{opts: opts}
}

// SetupInfrastructureLayer 配置、日志与指标
func (b *Bootstrap) SetupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(func() config.AppOptions { return b.opts }),
		configimpl.Module(),
		log.Module(),
		fx.Provide(newRegistry),
		metrics.Module(),
		fx.Invoke(configimpl.EnsureDataDirectories),
	}
}

// SetupCommunicationLayer 事件与存储
func (b *Bootstrap) SetupCommunicationLayer() []fx.Option {
	return []fx.Option{
		event.Module(),
		storage.Module(),
	}
}

// SetupBusinessLayer 安全、执行后端与生命周期管理
//
// 加载顺序：security（授权）-> engines（后端选择）-> runtime（Manager）
func (b *Bootstrap) SetupBusinessLayer() []fx.Option {
	return []fx.Option{
		security.Module(),
		engines.Module(),
		coreruntime.Module(),
	}
}

// SetupApplicationLayer 对外接口
func (b *Bootstrap) SetupApplicationLayer() []fx.Option {
	modules := []fx.Option{
		fx.Populate(&b.manager, &b.provider, &b.logger),
	}
	if b.opts.enableAPI {
		modules = append(modules, api.Module())
	}
	return append(modules, b.opts.extra...)
}

// SetupModules 按层组装全部模块
func (b *Bootstrap) SetupModules() []fx.Option {
	var all []fx.Option
	all = append(all, b.SetupInfrastructureLayer()...)
	all = append(all, b.SetupCommunicationLayer()...)
	all = append(all, b.SetupBusinessLayer()...)
	all = append(all, b.SetupApplicationLayer()...)
	return all
}

// CreateFxApp 创建fx应用
func (b *Bootstrap) CreateFxApp() error {
	if err := b.opts.resolve(); err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	b.fxApp = fx.New(
		fx.Options(b.SetupModules()...),
		fx.NopLogger,
	)
	return b.fxApp.Err()
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	return nil
}

// StopApp 停止应用程序
func (b *Bootstrap) StopApp(ctx context.Context) error {
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}

// BootstrapApp 执行完整的引导过程并返回已启动的应用
func BootstrapApp(options ...Option) (App, error) {
	bootstrap := NewBootstrap(newOptions(options...))
	if err := bootstrap.CreateFxApp(); err != nil {
		return nil, fmt.Errorf("创建应用失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := bootstrap.StartApp(ctx); err != nil {
		return nil, err
	}
	return &internalApp{bootstrap: bootstrap}, nil
}

// newRegistry 进程内独立的指标注册表，附带 Go 运行时与进程指标
func newRegistry() (*prometheus.Registry, prometheus.Registerer, prometheus.Gatherer) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, registry, registry
}

// WaitForSignal 等待退出信号
func WaitForSignal() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	return <-signals
}
