package checkpoint

import (
	"context"
	"sync"
)

// Null keeps the token in process memory. The key is ignored since a process
// drives a single stream. Nothing survives a restart.
type Null struct {
	mu    sync.RWMutex
	value *string
}

func NewNull() *Null {
	return &Null{}
}

func (n *Null) Get(_ context.Context, _ string) (string, bool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.value == nil {
		return "", false, nil
	}
	return *n.value, true, nil
}

func (n *Null) Set(_ context.Context, _ string, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.value = &value
	return nil
}

func (n *Null) Close() error { return nil }
