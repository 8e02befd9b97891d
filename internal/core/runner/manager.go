package runner

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nccgroup/scrying/internal/config"
	"github.com/nccgroup/scrying/internal/core/capture"
	"github.com/nccgroup/scrying/internal/core/factory"
	"github.com/nccgroup/scrying/internal/core/model"
)

// DriverManager 管理所有协议的截图驱动
type DriverManager struct {
	drivers map[model.Protocol]capture.Driver
	mu      sync.RWMutex
}

func NewDriverManager() *DriverManager {
	return &DriverManager{
		drivers: make(map[model.Protocol]capture.Driver),
	}
}

// NewDriverManagerFromConfig 按配置创建需要的驱动，只创建 protocols 中出现的协议
func NewDriverManagerFromConfig(cfg *config.Config, protocols []model.Protocol) (*DriverManager, error) {
	m := NewDriverManager()
	for _, p := range protocols {
		d, err := factory.NewDriver(cfg, p)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.Register(d)
	}
	return m, nil
}

// Register 注册一个驱动，同一协议后注册的覆盖先注册的
func (m *DriverManager) Register(driver capture.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.Protocol()] = driver
}

// Get 获取指定协议的驱动
func (m *DriverManager) Get(protocol model.Protocol) (capture.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if driver, ok := m.drivers[protocol]; ok {
		return driver, nil
	}
	return nil, fmt.Errorf("no capture driver for protocol: %s", protocol)
}

// Close 释放驱动持有的共享资源 (浏览器进程)
func (m *DriverManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, d := range m.drivers {
		if c, ok := d.(capture.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
