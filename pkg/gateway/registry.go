package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/harun/radbridge/internal/observability"
)

const idleAfter = 5 * time.Minute

// ClientRegistry tracks connected front-end clients. LastActivity is only
// written under the registry lock.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates an empty registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// Add registers client and updates the connected-clients gauge
func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	r.clients[client.ID] = client
	n := len(r.clients)
	r.mu.Unlock()
	observability.SetGatewayClients(n)
}

// Remove forgets the client; unknown ids are ignored
func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	n := len(r.clients)
	r.mu.Unlock()
	observability.SetGatewayClients(n)
}

// Touch records activity for clientID
func (r *ClientRegistry) Touch(clientID string) {
	r.mu.Lock()
	if c, ok := r.clients[clientID]; ok {
		c.LastActivity = time.Now()
	}
	r.mu.Unlock()
}

// Len returns the number of connected clients
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot returns the connected clients, optionally only those that
// passed authentication
func (r *ClientRegistry) Snapshot(authenticatedOnly bool) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if authenticatedOnly && !c.IsAuthenticated() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Infos describes every client, oldest connection first
func (r *ClientRegistry) Infos() []ClientInfo {
	r.mu.RLock()
	now := time.Now()
	infos := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		infos = append(infos, ClientInfo{
			ID:            c.ID,
			Authenticated: c.IsAuthenticated(),
			ConnectedAt:   c.ConnectedAt,
			LastActivity:  c.LastActivity,
			IPAddress:     c.IPAddress,
			Idle:          now.Sub(c.LastActivity) > idleAfter,
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}
