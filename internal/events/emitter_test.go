package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFireDeliversInRegistrationOrder(t *testing.T) {
	var e Emitter[int]
	var order []string

	e.Subscribe(func(int) { order = append(order, "first") })
	e.Subscribe(func(int) { order = append(order, "second") })
	e.Subscribe(func(int) { order = append(order, "third") })

	e.Fire(1)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDisposeRemovesHandler(t *testing.T) {
	var e Emitter[string]
	calls := 0

	sub := e.Subscribe(func(string) { calls++ })
	e.Fire("a")
	sub.Dispose()
	e.Fire("b")

	assert.Equal(t, 1, calls)
}

func TestDisposeIsIdempotent(t *testing.T) {
	var e Emitter[struct{}]
	cancels := 0

	sub := NewSubscription(func() { cancels++ })
	sub.Dispose()
	sub.Dispose()
	assert.Equal(t, 1, cancels)

	// disposing one subscription twice must not remove a sibling handler
	kept := 0
	keep := e.Subscribe(func(struct{}) { kept++ })
	gone := e.Subscribe(func(struct{}) {})
	gone.Dispose()
	gone.Dispose()
	e.Fire(struct{}{})
	assert.Equal(t, 1, kept)
	keep.Dispose()
}
