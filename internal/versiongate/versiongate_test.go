package versiongate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmitRunsImmediatelyWhenOnTimeOrStale(t *testing.T) {
	g := New()
	ran := false
	g.Admit("/a.go", 3, 5, func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, 0, g.Pending("/a.go"))

	ran = false
	g.Admit("/a.go", 5, 5, func() { ran = true })
	assert.True(t, ran)
}

func TestAdmitParksFutureVersionUntilMatchingDidChange(t *testing.T) {
	g := New()
	ran := false
	g.Admit("/a.go", 7, 5, func() { ran = true })
	assert.False(t, ran)
	assert.Equal(t, 1, g.Pending("/a.go"))

	g.OnDidChange("/a.go", 6)
	assert.False(t, ran)
	assert.Equal(t, 1, g.Pending("/a.go"))

	g.OnDidChange("/a.go", 7)
	assert.True(t, ran)
	assert.Equal(t, 0, g.Pending("/a.go"))
}

func TestOnDidChangeReleasesInFIFOOrderLeavingFutureOnesParked(t *testing.T) {
	g := New()
	var order []int
	g.Admit("/a.go", 6, 5, func() { order = append(order, 1) })
	g.Admit("/a.go", 8, 5, func() { order = append(order, 2) })
	g.Admit("/a.go", 6, 5, func() { order = append(order, 3) })

	g.OnDidChange("/a.go", 6)
	assert.Equal(t, []int{1, 3}, order)
	assert.Equal(t, 1, g.Pending("/a.go"))

	g.OnDidChange("/a.go", 8)
	assert.Equal(t, []int{1, 3, 2}, order)
	assert.Equal(t, 0, g.Pending("/a.go"))
}

func TestDropDiscardsWithoutRunning(t *testing.T) {
	g := New()
	ran := false
	g.Admit("/a.go", 9, 5, func() { ran = true })
	g.Drop("/a.go")
	assert.False(t, ran)
	assert.Equal(t, 0, g.Pending("/a.go"))
}

func TestExemptMethodsBypassGate(t *testing.T) {
	assert.True(t, Exempt("textDocument/didChange"))
	assert.True(t, Exempt("completionItem/resolve"))
	assert.False(t, Exempt("textDocument/hover"))
}
