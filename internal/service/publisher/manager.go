package publisher

import (
	"fmt"

	"go.uber.org/zap"
)

// Manager is the adapter lookup table. Adding a platform means
// registering one adapter; the dispatcher never special-cases
// platforms.
type Manager struct {
	adapters map[string]Adapter
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

func (m *Manager) Register(adapter Adapter) error {
	platform := adapter.Platform()
	if _, exists := m.adapters[platform]; exists {
		return fmt.Errorf("adapter for platform %s already registered", platform)
	}

	m.adapters[platform] = adapter
	m.logger.Info("Publisher adapter registered", zap.String("platform", platform))
	return nil
}

func (m *Manager) Get(platform string) (Adapter, error) {
	adapter, exists := m.adapters[platform]
	if !exists {
		return nil, fmt.Errorf("adapter for platform %s not found", platform)
	}
	return adapter, nil
}

// Platforms returns the registered platform names.
func (m *Manager) Platforms() []string {
	var platforms []string
	for name := range m.adapters {
		platforms = append(platforms, name)
	}
	return platforms
}
