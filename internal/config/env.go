package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvLoader .env 文件加载器
// 在 viper 读取环境变量之前把 .env 中的 SCRYING_* 注入进程环境，已存在的变量不会被覆盖
type EnvLoader struct {
	envFiles []string // .env文件路径列表
	loaded   bool     // 是否已加载
	keys     []string // 本次加载引入的键
}

// NewEnvLoader 创建环境变量加载器
func NewEnvLoader(envFiles ...string) *EnvLoader {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &EnvLoader{
		envFiles: envFiles,
		loaded:   false,
	}
}

// Load 加载环境变量
func (e *EnvLoader) Load() error {
	if e.loaded {
		return nil
	}

	for _, envFile := range e.envFiles {
		if err := e.loadEnvFile(envFile); err != nil {
			// .env文件不存在不算错误
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
	}

	e.loaded = true
	return nil
}

// loadEnvFile 加载单个.env文件
func (e *EnvLoader) loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err != nil {
		return err
	}

	values, err := godotenv.Read(envFile)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", envFile, err)
	}
	for key, value := range values {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
		e.keys = append(e.keys, key)
	}
	return nil
}

// LoadedKeys 返回本次从 .env 引入且带有指定前缀的键
func (e *EnvLoader) LoadedKeys(prefix string) []string {
	var keys []string
	for _, k := range e.keys {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}
