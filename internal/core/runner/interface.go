package runner

import (
	"context"
)

// 进程退出码
const (
	ExitOK           = 0   // 正常完成 (包括一次中断后排空)
	ExitNoTargets    = 2   // 没有解析出任何目标
	ExitStartup      = 3   // 启动失败: 配置错误、输出目录不可用、驱动创建失败
	ExitReportFailed = 4   // 截图完成但报告写出失败
	ExitAborted      = 130 // 第二次中断
)

// Runner 定义了一次运行的通用接口
type Runner interface {
	// Run 执行并返回进程退出码
	Run(ctx context.Context) (int, error)
}
