package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type greeter struct{ name string }

func TestContainer_LazySingleton(t *testing.T) {
	c := NewContainer()
	c.Register("name", "satsend")

	calls := 0
	tok := NewToken[*greeter]("greeter")
	RegisterToken(c, tok, func(sr ServiceRegistry) *greeter {
		calls++
		return &greeter{name: sr.Get("name").(string)}
	})

	g1 := GetToken(c, tok)
	g2 := GetToken(c, tok)

	assert.Same(t, g1, g2)
	assert.Equal(t, "satsend", g1.name)
	assert.Equal(t, 1, calls)
}

func TestContainer_UnknownPanics(t *testing.T) {
	c := NewContainer()
	assert.Panics(t, func() { c.Get("missing") })
}

func TestContainer_CyclePanics(t *testing.T) {
	c := NewContainer()
	c.RegisterFactory("a", func(sr ServiceRegistry) any { return sr.Get("b") })
	c.RegisterFactory("b", func(sr ServiceRegistry) any { return sr.Get("a") })
	assert.Panics(t, func() { c.Get("a") })
}
