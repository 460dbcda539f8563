package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeExitRun(t *testing.T) {
	var order []string
	code := -1
	s := &SafeExit{exit: func(c int) { code = c }}
	s.Register(func() { order = append(order, "store") })
	s.Register(func() { order = append(order, "metrics") })

	s.Run(1)
	assert.Equal(t, []string{"metrics", "store"}, order)
	assert.Equal(t, 1, code)

	// cleanups run once
	s.Run(2)
	assert.Len(t, order, 2)
	assert.Equal(t, 2, code)
}
