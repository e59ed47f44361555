// Package configs 嵌入 runtimectl 的内置配置档
package configs

import (
	_ "embed"
	"fmt"
)

// 配置档名称
const (
	ProfileDevelopment = "development"
	ProfileProduction  = "production"
)

//go:embed development.yaml
var developmentConfig []byte

//go:embed production.yaml
var productionConfig []byte

// GetDevelopmentConfig 获取开发环境配置
func GetDevelopmentConfig() []byte {
	return developmentConfig
}

// GetProductionConfig 获取生产环境配置
func GetProductionConfig() []byte {
	return productionConfig
}

// Profile 按名称获取嵌入的配置档
func Profile(name string) ([]byte, error) {
	switch name {
	case ProfileDevelopment:
		return developmentConfig, nil
	case ProfileProduction:
		return productionConfig, nil
	}
	return nil, fmt.Errorf("unknown config profile %q", name)
}
