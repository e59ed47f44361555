// Package storage 提供执行结果库与热缓存的依赖注入模块
package storage

import (
	"context"

	"go.uber.org/fx"

	badgerconfig "github.com/weisyn/chainruntime/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/chainruntime/internal/config/storage/memory"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	storageInterface "github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/storage"
)

// ModuleInput 存储模块输入依赖
type ModuleInput struct {
	fx.In

	BadgerOptions *badgerconfig.BadgerOptions
	MemoryOptions *memoryconfig.MemoryOptions
	Logger        log.Logger `optional:"true"`
	Lifecycle     fx.Lifecycle
}

// ModuleOutput 存储模块输出服务
type ModuleOutput struct {
	fx.Out

	BadgerStore storageInterface.BadgerStore
	MemoryStore storageInterface.MemoryStore
}

// Module 返回存储模块
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideStores),
	)
}

// ProvideStores 打开结果库与热缓存，并在停止时关闭
func ProvideStores(input ModuleInput) (ModuleOutput, error) {
	var logger log.Logger
	if input.Logger != nil {
		logger = input.Logger.With("module", "storage")
	}

	badgerStore, err := badger.New(input.BadgerOptions, logger)
	if err != nil {
		return ModuleOutput{}, err
	}
	memoryStore, err := memory.New(input.MemoryOptions, logger)
	if err != nil {
		_ = badgerStore.Close()
		return ModuleOutput{}, err
	}

	input.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			errCache := memoryStore.Close()
			if err := badgerStore.Close(); err != nil {
				return err
			}
			return errCache
		},
	})

	return ModuleOutput{BadgerStore: badgerStore, MemoryStore: memoryStore}, nil
}
