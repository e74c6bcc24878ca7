// Package config 站点配置信息
package config

// Initialize 触发包加载，使各配置文件的 init() 完成注册
func Initialize() {
	// 各配置项通过 init() 注册，这里无需额外逻辑
}
