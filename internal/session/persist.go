package session

import (
	"context"
	"sync"
)

// Fixed key names for the persisted client state
const (
	TokenKey    = "session_token"
	LoggedInKey = "is_logged_in"
)

// Persister keeps the session token and login flag across restarts
type Persister interface {
	// Load returns the stored token and login flag. Missing state is not an error.
	Load(ctx context.Context) (token string, loggedIn bool, err error)

	// Save stores token and sets the login flag
	Save(ctx context.Context, token string) error

	// Clear removes both keys
	Clear(ctx context.Context) error
}

// MemoryPersister keeps state in process memory
type MemoryPersister struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryPersister creates an empty in-memory persister
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{values: make(map[string]string)}
}

func (p *MemoryPersister) Load(ctx context.Context) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[TokenKey], p.values[LoggedInKey] == "true", nil
}

func (p *MemoryPersister) Save(ctx context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[TokenKey] = token
	p.values[LoggedInKey] = "true"
	return nil
}

func (p *MemoryPersister) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, TokenKey)
	delete(p.values, LoggedInKey)
	return nil
}
