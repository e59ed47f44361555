package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weisyn/chainruntime/internal/app/version"
	coreruntime "github.com/weisyn/chainruntime/internal/core/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// ==================== presets ====================

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "列出内置运行时预设",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			views := make([]presetView, 0, len(types.PresetNames))
			for _, name := range types.PresetNames {
				cfg, err := types.PresetConfig(name)
				if err != nil {
					return err
				}
				views = append(views, presetView{Name: name, Description: cfg.Describe(), Config: cfg})
			}
			return newRenderer(cmd.OutOrStdout()).presets(views)
		},
	}
}

// ==================== capabilities ====================

func newCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "查看执行后端的能力与指标定义",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			oneShot(cfg)
			application, err := startApp(false, cfg)
			if err != nil {
				return err
			}
			defer application.Stop()

			manager := application.Manager()
			return newRenderer(cmd.OutOrStdout()).capabilities(capabilitiesView{
				BlockchainID: manager.BlockchainID(),
				Capabilities: manager.Capabilities(),
				Metrics:      manager.MetricsDefinition(),
			})
		},
	}
}

// ==================== run ====================

// runFlags run 命令标志
type runFlags struct {
	Function        string
	Params          []string
	Sender          string
	RequiredRole    string
	Preset          string
	AbortOnCritical bool
	Deploy          bool
	Args            string
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "在新环境中执行程序并输出结果与安全报告",
		Long: `在按预设创建的隔离环境中执行一次程序，完成后销毁环境。

参数以 key=value 给出，value 为合法 JSON 时按 JSON 解析，否则按字符串处理。
WASM 后端通过 args 传入入口函数参数，例如 --param 'args=[1,2]'。

使用 --deploy 时先部署程序再调用函数，--args 为十六进制调用数据。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.Function, "function", "f", "main", "入口函数")
	cmd.Flags().StringArrayVarP(&flags.Params, "param", "p", nil, "执行参数 key=value，可重复")
	cmd.Flags().StringVar(&flags.Sender, "sender", "", "调用者地址")
	cmd.Flags().StringVar(&flags.RequiredRole, "role", "", "入口函数要求的角色")
	cmd.Flags().StringVar(&flags.Preset, "preset", "", "环境预设 (默认使用配置中的运行时段)")
	cmd.Flags().BoolVar(&flags.AbortOnCritical, "abort-on-critical", false, "出现Critical违规时中止执行")
	cmd.Flags().BoolVar(&flags.Deploy, "deploy", false, "部署后调用而不是直接执行")
	cmd.Flags().StringVar(&flags.Args, "args", "", "部署模式下的十六进制调用数据")
	return cmd
}

func runProgram(cmd *cobra.Command, path string, flags runFlags) error {
	params, err := parseParams(flags.Params)
	if err != nil {
		return err
	}
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	oneShot(cfg)

	application, err := startApp(false, cfg)
	if err != nil {
		return err
	}
	defer application.Stop()

	runtimeConfig := application.Config().GetRuntime().Config
	if flags.Preset != "" {
		if runtimeConfig, err = types.PresetConfig(flags.Preset); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	manager := application.Manager()
	env, err := manager.CreateEnvironment(ctx, runtimeConfig)
	if err != nil {
		return err
	}
	defer manager.Destroy(context.WithoutCancel(ctx), env.EnvironmentID)

	if flags.Deploy {
		return deployAndCall(cmd, manager, env, path, flags)
	}

	inputs := types.ExecutionInputs{
		TargetFunction: flags.Function,
		Parameters:     params,
		Context: types.InvocationContext{
			Sender:       flags.Sender,
			RequiredRole: flags.RequiredRole,
		},
	}
	result, err := manager.ExecuteSecure(ctx, env.EnvironmentID, path, inputs,
		coreruntime.WithAbortOnCritical(flags.AbortOnCritical))
	if err != nil && result == nil {
		return err
	}

	view := runView{Environment: *env, Result: result}
	if report, reportErr := manager.GetSecurityReport(ctx, result.ExecutionID); reportErr == nil {
		view.Report = report
	}
	if renderErr := newRenderer(cmd.OutOrStdout()).run(view); renderErr != nil {
		return renderErr
	}
	return err
}

func deployAndCall(cmd *cobra.Command, manager *coreruntime.Manager, env *types.RuntimeEnvironment, path string, flags runFlags) error {
	bytecode, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取程序失败: %w", err)
	}
	callData, err := hex.DecodeString(strings.TrimPrefix(flags.Args, "0x"))
	if err != nil {
		return fmt.Errorf("调用数据不是合法十六进制: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	address, err := manager.DeployContract(ctx, env.EnvironmentID, bytecode, nil)
	if err != nil {
		return err
	}
	out, err := manager.CallFunction(ctx, env.EnvironmentID, address, flags.Function, callData)
	if err != nil {
		return err
	}

	r := newRenderer(cmd.OutOrStdout())
	if r.format == outputJSON {
		return r.json(map[string]any{
			"environment_id": env.EnvironmentID,
			"contract":       address,
			"function":       flags.Function,
			"output":         "0x" + hex.EncodeToString(out),
		})
	}
	r.header("Contract " + address)
	return r.table([][]string{
		{"Function", "Output"},
		{flags.Function, "0x" + hex.EncodeToString(out)},
	})
}

// parseParams 解析 key=value 参数
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("参数 %q 格式应为 key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}

// oneShot 单次命令默认不落盘、只输出错误日志，并关闭HTTP接口
func oneShot(cfg *types.AppConfig) {
	if cfg.Storage == nil {
		cfg.Storage = &types.UserStorageConfig{}
	}
	if cfg.Storage.InMemory == nil {
		inMemory := true
		cfg.Storage.InMemory = &inMemory
	}
	if cfg.Log == nil {
		cfg.Log = &types.UserLogConfig{}
	}
	if cfg.Log.Level == nil {
		level := "error"
		cfg.Log.Level = &level
	}
}

// ==================== serve ====================

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动运行时并提供HTTP接口",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			if cfg.API == nil {
				cfg.API = &types.UserAPIConfig{}
			}
			enabled := true
			cfg.API.Enabled = &enabled
			if cmd.Flags().Changed("port") {
				cfg.API.Port = &port
			}

			application, err := startApp(true, cfg)
			if err != nil {
				return err
			}
			api := application.Config().GetAPI()
			fmt.Fprintf(cmd.OutOrStdout(), "runtime %s serving on http://%s:%d (Ctrl+C to stop)\n",
				application.Manager().BlockchainID(), api.Host, api.Port)
			return application.Wait()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "监听端口 (覆盖配置)")
	return cmd
}

// ==================== version ====================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRenderer(cmd.OutOrStdout())
			if r.format == outputJSON {
				return r.json(version.GetBuildInfo())
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.GetFullVersion())
			return nil
		},
	}
}
