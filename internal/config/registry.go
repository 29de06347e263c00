package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mutsucloud/otogi/pkg/provider/chat"
	"github.com/mutsucloud/otogi/pkg/provider/embeddings"
	"github.com/mutsucloud/otogi/pkg/provider/imagegen"
	"github.com/mutsucloud/otogi/pkg/provider/videogen"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
//
// Summarizers ride the chat registry: the summarize entry names a chat
// provider, typically pointed at a cheaper model.
type Registry struct {
	mu         sync.RWMutex
	chat       map[string]func(ProviderEntry) (chat.Provider, error)
	image      map[string]func(ProviderEntry) (imagegen.Provider, error)
	video      map[string]func(ProviderEntry) (videogen.Provider, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		chat:       make(map[string]func(ProviderEntry) (chat.Provider, error)),
		image:      make(map[string]func(ProviderEntry) (imagegen.Provider, error)),
		video:      make(map[string]func(ProviderEntry) (videogen.Provider, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
	}
}

// RegisterChat registers a chat provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterChat(name string, factory func(ProviderEntry) (chat.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[name] = factory
}

// RegisterImage registers an image generation provider factory under name.
func (r *Registry) RegisterImage(name string, factory func(ProviderEntry) (imagegen.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[name] = factory
}

// RegisterVideo registers a video generation provider factory under name.
func (r *Registry) RegisterVideo(name string, factory func(ProviderEntry) (videogen.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateChat instantiates a chat provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Provider, error) {
	r.mu.RLock()
	factory, ok := r.chat[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: chat/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateImage instantiates an image provider using the factory registered under entry.Name.
func (r *Registry) CreateImage(entry ProviderEntry) (imagegen.Provider, error) {
	r.mu.RLock()
	factory, ok := r.image[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: image/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVideo instantiates a video provider using the factory registered under entry.Name.
func (r *Registry) CreateVideo(entry ProviderEntry) (videogen.Provider, error) {
	r.mu.RLock()
	factory, ok := r.video[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: video/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
