package parking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaseRunsInArrivalOrder(t *testing.T) {
	q := NewQueue[string]()
	var order []int
	q.Park("buf", func() { order = append(order, 1) })
	q.Park("buf", func() { order = append(order, 2) })
	q.Park("buf", func() { order = append(order, 3) })

	assert.Equal(t, 3, q.Len("buf"))
	q.Release("buf")
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, q.Len("buf"))
}

func TestDropDiscardsWithoutRunning(t *testing.T) {
	q := NewQueue[int]()
	ran := false
	q.Park(7, func() { ran = true })
	q.Drop(7)
	assert.False(t, ran)
	assert.Equal(t, 0, q.Len(7))
}

func TestReleaseOnEmptyKeyIsNoop(t *testing.T) {
	q := NewQueue[string]()
	assert.NotPanics(t, func() { q.Release("missing") })
}
