// Package version 构建版本信息
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// 构建时通过 ldflags 注入
var (
	Version   = "v0.1.0"
	Commit    = ""
	BuildTime = "unknown"
)

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion 获取版本号
func GetVersion() string {
	return Version
}

// GetBuildInfo 获取完整构建信息
//
// 未注入提交号时从模块构建信息中读取 vcs.revision。
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					info.Commit = s.Value
				}
			}
		}
	}
	return info
}

// GetFullVersion 获取多行版本描述
func GetFullVersion() string {
	info := GetBuildInfo()
	s := fmt.Sprintf("chainruntime %s", info.Version)
	if info.Commit != "" {
		s += fmt.Sprintf("\n提交: %s", info.Commit)
	}
	if info.BuildTime != "unknown" {
		s += fmt.Sprintf("\n构建时间: %s", info.BuildTime)
	}
	s += fmt.Sprintf("\nGo版本: %s\n平台: %s", info.GoVersion, info.Platform)
	return s
}
