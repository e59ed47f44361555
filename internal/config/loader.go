package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weisyn/chainruntime/pkg/interfaces/config"
	"github.com/weisyn/chainruntime/pkg/types"
)

// ConfigPathEnv 配置文件路径环境变量
const ConfigPathEnv = "CHAINRUNTIME_CONFIG_PATH"

// LoadAppConfig 读取并校验配置文件
//
// 按扩展名选择格式：.yaml/.yml 使用YAML，其余按JSON解析。
// 文件不存在时返回空配置（全部字段使用默认值）。
func LoadAppConfig(path string) (*types.AppConfig, error) {
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path == "" {
		return &types.AppConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.AppConfig{}, nil
		}
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	appConfig, err := ParseAppConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	if err := ValidateAppConfig(appConfig); err != nil {
		return nil, err
	}
	return appConfig, nil
}

// ParseAppConfig 按扩展名解析配置内容
func ParseAppConfig(data []byte, ext string) (*types.AppConfig, error) {
	var appConfig types.AppConfig
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &appConfig); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &appConfig); err != nil {
			return nil, err
		}
	}
	return &appConfig, nil
}

// EnsureDataDirectories 创建配置中引用的数据目录
func EnsureDataDirectories(provider config.Provider) error {
	var directories []string
	if badger := provider.GetBadger(); !badger.InMemory && badger.Path != "" {
		directories = append(directories, badger.Path)
	}
	if log := provider.GetLog(); log.FilePath != "" && log.FilePath != "stdout" && log.FilePath != "stderr" {
		directories = append(directories, filepath.Dir(log.FilePath))
	}
	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}
