package pipeline

import (
	"context"

	"github.com/nccgroup/scrying/internal/core/model"
)

// feedJobs 把作业逐个推入无缓冲通道
// 进入排空状态或 ctx 结束后停止推送并关闭通道，返回值通道给出未推送的作业数
func feedJobs(ctx context.Context, jobs []*model.Job, drain <-chan struct{}) (<-chan *model.Job, <-chan int) {
	out := make(chan *model.Job)
	remaining := make(chan int, 1)

	go func() {
		defer close(out)
		for i, job := range jobs {
			// 排空优先于继续推送
			select {
			case <-drain:
				remaining <- len(jobs) - i
				return
			default:
			}

			select {
			case out <- job:
			case <-drain:
				remaining <- len(jobs) - i
				return
			case <-ctx.Done():
				remaining <- len(jobs) - i
				return
			}
		}
		remaining <- 0
	}()

	return out, remaining
}

// isDraining 非阻塞检查排空标志
func isDraining(drain <-chan struct{}) bool {
	if drain == nil {
		return false
	}
	select {
	case <-drain:
		return true
	default:
		return false
	}
}
