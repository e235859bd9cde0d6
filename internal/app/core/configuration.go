package core

import (
	"sync"

	"github.com/qcr/abb-libegm/internal/domain"
)

// ConfigurationStore double-buffers the configuration: any goroutine may stage an
// update, the orchestrator applies it at a session boundary only.
type ConfigurationStore struct {
	mu      sync.Mutex
	active  domain.Configuration
	update  domain.Configuration
	pending bool
}

func NewConfigurationStore(active domain.Configuration) *ConfigurationStore {
	return &ConfigurationStore{active: active.Clone()}
}

// Set stages cfg for the next session boundary. A later Set replaces an earlier one.
func (s *ConfigurationStore) Set(cfg domain.Configuration) {
	cfg = cfg.Clone()
	cfg.ApplyDefaults()

	s.mu.Lock()
	s.update = cfg
	s.pending = true
	s.mu.Unlock()
}

func (s *ConfigurationStore) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// ApplyPending promotes the staged configuration. An invalid staged configuration is
// reported and stays staged; the active one is kept.
func (s *ConfigurationStore) ApplyPending() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return false, nil
	}
	if err := s.update.Validate(); err != nil {
		return false, err
	}
	s.active = s.update
	s.update = domain.Configuration{}
	s.pending = false
	return true, nil
}

// Active returns a copy of the active configuration.
func (s *ConfigurationStore) Active() domain.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Clone()
}
