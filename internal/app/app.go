// Package app 按层组装运行时应用（配置、基础设施、执行后端、生命周期管理、HTTP接口）
package app

import (
	"context"
	"time"

	coreruntime "github.com/weisyn/chainruntime/internal/core/runtime"
	"github.com/weisyn/chainruntime/pkg/interfaces/config"
)

// stopTimeout 停止超时，留出结果库落盘时间
const stopTimeout = 30 * time.Second

// App 运行时应用的对外接口
type App interface {
	// Manager 环境生命周期管理器
	Manager() *coreruntime.Manager

	// Config 已解析的配置
	Config() config.Provider

	// Stop 停止应用，销毁全部环境并关闭存储
	Stop() error

	// Wait 阻塞直到收到退出信号，然后停止应用
	Wait() error
}

// internalApp 应用的内部实现
type internalApp struct {
	bootstrap *Bootstrap
}

// Start 加载配置并启动应用
func Start(options ...Option) (App, error) {
	return BootstrapApp(options...)
}

// Manager 返回生命周期管理器
func (a *internalApp) Manager() *coreruntime.Manager {
	return a.bootstrap.manager
}

// Config 返回配置提供者
func (a *internalApp) Config() config.Provider {
	return a.bootstrap.provider
}

// Stop 停止应用
func (a *internalApp) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}

// Wait 等待退出信号
func (a *internalApp) Wait() error {
	sig := WaitForSignal()
	a.bootstrap.logger.Infof("received signal %v, shutting down", sig)
	return a.Stop()
}
