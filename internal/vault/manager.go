package vault

import (
	"context"
	"sync"
	"time"
)

// Manager hands out one Vault per channel so every destination keeps its own
// token file and its own acquisition lock.
type Manager struct {
	mu             sync.Mutex
	vaults         map[string]*Vault
	channelsDir    string
	secretPath     string
	authorizer     Authorizer
	refreshTimeout time.Duration
}

func NewManager(channelsDir, clientSecretPath string, authorizer Authorizer, refreshTimeout time.Duration) *Manager {
	return &Manager{
		vaults:         make(map[string]*Vault),
		channelsDir:    channelsDir,
		secretPath:     clientSecretPath,
		authorizer:     authorizer,
		refreshTimeout: refreshTimeout,
	}
}

// Acquire returns an authenticated session for the channel, creating the
// channel's vault on first use.
func (m *Manager) Acquire(ctx context.Context, channel string) (*Session, error) {
	m.mu.Lock()
	v, ok := m.vaults[channel]
	if !ok {
		v = New(channel, m.channelsDir, m.secretPath, m.authorizer, m.refreshTimeout)
		m.vaults[channel] = v
	}
	m.mu.Unlock()

	return v.Acquire(ctx)
}
