package options

import (
	"github.com/nccgroup/scrying/internal/config"
)

// CommandOption 定义所有指令参数结构体必须实现的接口
type CommandOption interface {
	// Validate 验证参数合法性
	Validate() error

	// ApplyTo 把命令行上不经过配置文件的参数写入生效配置
	ApplyTo(cfg *config.Config) error
}
