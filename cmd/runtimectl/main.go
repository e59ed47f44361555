// runtimectl 执行运行时的命令行工具
//
// 用法:
//
//	runtimectl presets                         # 列出内置预设
//	runtimectl capabilities --backend wasm     # 查看后端能力与指标定义
//	runtimectl run program.wasm -f add --param args=[1,2]
//	runtimectl serve --config config.yaml      # 启动HTTP接口
package main

func main() {
	Execute()
}
