package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus 作业状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job 一个 Target 加上运行期状态
// 入队前归队列所有，执行时归唯一的 worker 所有，完成后转交结果汇总
type Job struct {
	ID           string    `json:"id"`
	Target       Target    `json:"target"`
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts"`
	StartedAt    time.Time `json:"started_at"`
	ArtifactPath string    `json:"artifact_path"` // 预先计算好的输出路径
	Error        string    `json:"error,omitempty"`
}

// NewJob 创建作业，artifact 为该目标的输出文件路径
func NewJob(target Target, artifact string) *Job {
	return &Job{
		ID:           uuid.NewString(),
		Target:       target,
		Status:       JobStatusPending,
		ArtifactPath: artifact,
	}
}

// Start 标记开始执行
func (j *Job) Start() {
	j.Attempts++
	j.Status = JobStatusRunning
	j.StartedAt = time.Now()
}

// Finish 根据结果更新状态
func (j *Job) Finish(outcome CaptureOutcome) {
	if outcome.Success {
		j.Status = JobStatusCompleted
		return
	}
	j.Status = JobStatusFailed
	j.Error = string(outcome.Kind) + ": " + outcome.Message
}
