// Package manager runs a set of players identified by ids.
package manager

import (
	"sort"
	"sync"

	"github.com/abema/netwatch/player"
)

type Config struct {
	// AutoRemove removes a player once it terminates by itself.
	AutoRemove bool
}

type Manager interface {
	Add(id string, config *player.Config) bool
	Remove(id string) bool
	RemoveAll() []string
	// Batch replaces the running players with the ones of configs, keeping
	// players whose id is already running.
	Batch(configs map[string]*player.Config) (added, removed []string)
	Get(id string) player.Player
	IDs() []string
}

func NewManager(config *Config) Manager {
	if config == nil {
		config = &Config{}
	}
	return &manager{
		config:  config,
		players: make(map[string]player.Player),
	}
}

type manager struct {
	config  *Config
	players map[string]player.Player
	mutex   sync.RWMutex
}

func (m *manager) Add(id string, config *player.Config) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.add(id, config)
}

func (m *manager) add(id string, config *player.Config) bool {
	if _, exists := m.players[id]; exists {
		return false
	}
	if m.config.AutoRemove {
		copied := *config
		onTerminate := config.OnTerminate
		copied.OnTerminate = func() {
			m.removeIfTerminated(id)
			if onTerminate != nil {
				onTerminate()
			}
		}
		config = &copied
	}
	m.players[id] = player.Play(config)
	return true
}

func (m *manager) removeIfTerminated(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.players, id)
}

func (m *manager) Remove(id string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.remove(id)
}

func (m *manager) remove(id string) bool {
	p, exists := m.players[id]
	if !exists {
		return false
	}
	delete(m.players, id)
	// Stop may lead to OnTerminate, which locks m.
	go p.Stop()
	return true
}

func (m *manager) RemoveAll() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	removed := m.ids()
	for _, id := range removed {
		m.remove(id)
	}
	return removed
}

func (m *manager) Batch(configs map[string]*player.Config) (added, removed []string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	removed = make([]string, 0)
	for _, id := range m.ids() {
		if _, ok := configs[id]; !ok {
			m.remove(id)
			removed = append(removed, id)
		}
	}
	added = make([]string, 0)
	for id, config := range configs {
		if m.add(id, config) {
			added = append(added, id)
		}
	}
	sort.Strings(added)
	return added, removed
}

func (m *manager) Get(id string) player.Player {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.players[id]
}

func (m *manager) IDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.ids()
}

func (m *manager) ids() []string {
	ids := make([]string, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
