// Package di provides a small lazily-resolving service container with typed tokens.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves services by name.
type ServiceRegistry interface {
	Get(name string) any
}

// Container is a ServiceRegistry that also accepts registrations.
type Container interface {
	ServiceRegistry
	Register(name string, value any)
	RegisterFactory(name string, factory func(ServiceRegistry) any)
}

type container struct {
	mu        sync.Mutex
	values    map[string]any
	factories map[string]func(ServiceRegistry) any
	resolving map[string]bool
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		values:    make(map[string]any),
		factories: make(map[string]func(ServiceRegistry) any),
		resolving: make(map[string]bool),
	}
}

// Register stores a ready-made value.
func (c *container) Register(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
}

// RegisterFactory stores a factory invoked once, on first Get.
func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// Get resolves a service, panicking on unknown names or cycles.
func (c *container) Get(name string) any {
	c.mu.Lock()
	if v, ok := c.values[name]; ok {
		c.mu.Unlock()
		return v
	}
	factory, ok := c.factories[name]
	if !ok {
		c.mu.Unlock()
		panic(fmt.Sprintf("di: service %q not registered", name))
	}
	if c.resolving[name] {
		c.mu.Unlock()
		panic(fmt.Sprintf("di: dependency cycle resolving %q", name))
	}
	c.resolving[name] = true
	c.mu.Unlock()

	// factories may call Get recursively, so the lock is not held here
	v := factory(c)

	c.mu.Lock()
	delete(c.resolving, name)
	if existing, ok := c.values[name]; ok {
		v = existing
	} else {
		c.values[name] = v
	}
	c.mu.Unlock()

	return v
}

// Token is a typed service key.
type Token[T any] struct {
	name string
}

// NewToken creates a typed token.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the registration name.
func (t Token[T]) Name() string {
	return t.name
}

// RegisterToken registers a typed factory.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	return sr.Get(token.name).(T)
}
