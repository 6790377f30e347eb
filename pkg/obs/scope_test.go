package obs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeEnd(t *testing.T) {
	t.Run("runs callbacks in registration order, once", func(t *testing.T) {
		s := NewScope()
		var order []int
		s.OnEnd(func() { order = append(order, 1) })
		s.OnEnd(func() { order = append(order, 2) })
		s.OnEnd(func() { order = append(order, 3) })

		s.End()
		s.End()
		require.Equal(t, []int{1, 2, 3}, order)
		require.True(t, s.Ended())
	})

	t.Run("OnEnd after end runs immediately", func(t *testing.T) {
		s := NewScope()
		s.End()

		ran := false
		s.OnEnd(func() { ran = true })
		require.True(t, ran)
	})

	t.Run("context is cancelled", func(t *testing.T) {
		s := NewScope()
		s.End()
		select {
		case <-s.Context().Done():
		default:
			t.Fatal("expected cancelled context")
		}
	})
}

func TestScopeChild(t *testing.T) {
	t.Run("ends with parent", func(t *testing.T) {
		parent := NewScope()
		child := parent.Child()
		parent.End()
		require.True(t, child.Ended())
	})

	t.Run("may end independently", func(t *testing.T) {
		parent := NewScope()
		child := parent.Child()
		child.End()
		require.True(t, child.Ended())
		require.False(t, parent.Ended())
	})
}
