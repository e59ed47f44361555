package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weisyn/chainruntime/configs"
	"github.com/weisyn/chainruntime/internal/app"
	configimpl "github.com/weisyn/chainruntime/internal/config"
	"github.com/weisyn/chainruntime/pkg/types"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigPath   string // 配置文件路径
	OutputFormat string // 输出格式
	Profile      string // 内置配置档，未指定配置文件时使用
	Backend      string // 覆盖配置中的执行后端
	LogLevel     string // 覆盖配置中的日志级别
}

var globalFlags GlobalFlags

// newRootCmd 根命令
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "runtimectl",
		Short: "区块链执行运行时命令行工具",
		Long: `runtimectl - 在隔离环境中执行合约代码并报告安全违规

支持的执行后端:
  wasm       基于 wazero 的 WASM 后端
  simulator  JSON 轨迹程序模拟后端

配置文件支持 JSON 与 YAML，也可通过 CHAINRUNTIME_CONFIG_PATH 指定；
未指定配置文件时可用 --profile 选择内置配置档。`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch globalFlags.OutputFormat {
			case outputTable, outputJSON:
				return nil
			}
			return fmt.Errorf("不支持的输出格式 %q（table|json）", globalFlags.OutputFormat)
		},
	}

	root.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "配置文件路径 (JSON/YAML)")
	root.PersistentFlags().StringVarP(&globalFlags.OutputFormat, "output", "o", outputTable, "输出格式: table|json")
	root.PersistentFlags().StringVar(&globalFlags.Profile, "profile", "", "内置配置档: development|production")
	root.PersistentFlags().StringVar(&globalFlags.Backend, "backend", "", "执行后端: wasm|simulator (覆盖配置)")
	root.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "日志级别 (覆盖配置)")

	root.AddCommand(newPresetsCmd())
	root.AddCommand(newCapabilitiesCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute 执行根命令
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

// loadAppConfig 读取配置文件并应用命令行覆盖项
func loadAppConfig() (*types.AppConfig, error) {
	cfg, err := readAppConfig()
	if err != nil {
		return nil, err
	}
	if globalFlags.Backend != "" {
		if cfg.Backend == nil {
			cfg.Backend = &types.UserBackendConfig{}
		}
		kind := globalFlags.Backend
		cfg.Backend.Kind = &kind
	}
	if globalFlags.LogLevel != "" {
		if cfg.Log == nil {
			cfg.Log = &types.UserLogConfig{}
		}
		level := globalFlags.LogLevel
		cfg.Log.Level = &level
	}
	return cfg, nil
}

// readAppConfig 配置文件优先，其次是内置配置档
func readAppConfig() (*types.AppConfig, error) {
	if globalFlags.Profile == "" || globalFlags.ConfigPath != "" || os.Getenv(configimpl.ConfigPathEnv) != "" {
		return configimpl.LoadAppConfig(globalFlags.ConfigPath)
	}
	data, err := configs.Profile(globalFlags.Profile)
	if err != nil {
		return nil, err
	}
	cfg, err := configimpl.ParseAppConfig(data, ".yaml")
	if err != nil {
		return nil, fmt.Errorf("解析配置档 %s 失败: %w", globalFlags.Profile, err)
	}
	return cfg, configimpl.ValidateAppConfig(cfg)
}

// startApp 按全局标志启动应用
func startApp(withAPI bool, cfg *types.AppConfig) (app.App, error) {
	opts := []app.Option{app.WithAppConfig(cfg)}
	if withAPI {
		opts = append(opts, app.WithAPI())
	} else {
		opts = append(opts, app.WithoutAPI())
	}
	return app.Start(opts...)
}
