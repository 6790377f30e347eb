package obs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	scope := NewScope()
	defer scope.End()

	src := NewBehavior(2)
	doubled := Map(scope, src, func(v int) int { return v * 2 })
	require.Equal(t, 4, doubled.Get())

	src.Set(5)
	require.Equal(t, 10, doubled.Get())
}

func TestCombine2(t *testing.T) {
	scope := NewScope()
	defer scope.End()

	a := NewBehavior(1)
	b := NewBehavior("x")
	out := Combine2(scope, a, b, func(i int, s string) string {
		return s + "-" + string(rune('0'+i))
	})
	require.Equal(t, "x-1", out.Get())

	a.Set(2)
	require.Equal(t, "x-2", out.Get())
	b.Set("y")
	require.Equal(t, "y-2", out.Get())
}

func TestAnd(t *testing.T) {
	scope := NewScope()
	defer scope.End()

	a := NewBehavior(true)
	b := NewBehavior(false)
	out := And(scope, a, b)

	var seen []bool
	out.Watch(scope, func(v bool) { seen = append(seen, v) })

	b.Set(true)
	a.Set(false)
	b.Set(false) // already false overall, no change
	require.Equal(t, []bool{false, true, false}, seen)
}

func TestSwitchMap(t *testing.T) {
	scope := NewScope()
	defer scope.End()

	inner1 := NewBehavior(10)
	inner2 := NewBehavior(20)
	selector := NewBehavior(1)

	var innerScopes []*Scope
	out := SwitchMap(scope, selector, func(s *Scope, which int) *Behavior[int] {
		innerScopes = append(innerScopes, s)
		if which == 1 {
			return inner1
		}
		return inner2
	})
	require.Equal(t, 10, out.Get())

	inner1.Set(11)
	require.Equal(t, 11, out.Get())

	selector.Set(2)
	require.Equal(t, 20, out.Get())
	require.True(t, innerScopes[0].Ended(), "scope of the replaced projection ends")

	// the replaced inner no longer propagates
	inner1.Set(12)
	require.Equal(t, 20, out.Get())

	inner2.Set(21)
	require.Equal(t, 21, out.Get())
}

func TestHoldAndAccumulate(t *testing.T) {
	scope := NewScope()
	defer scope.End()

	ev := NewEvent[int]()
	held := Hold(scope, ev, 0)
	sum := Accumulate(scope, ev, 0, func(s, e int) int { return s + e })

	ev.Emit(3)
	ev.Emit(4)
	require.Equal(t, 4, held.Get())
	require.Equal(t, 7, sum.Get())
}

func TestPairwise(t *testing.T) {
	scope := NewScope()
	defer scope.End()

	src := NewBehavior(1)
	var pairs []Pair[int]
	Pairwise(scope, src).Watch(scope, func(p Pair[int]) { pairs = append(pairs, p) })

	src.Set(2)
	src.Set(5)
	require.Equal(t, []Pair[int]{{Prev: 1, Next: 2}, {Prev: 2, Next: 5}}, pairs)
}

func TestPauseWhen(t *testing.T) {
	scope := NewScope()
	defer scope.End()

	src := NewBehavior(0)
	paused := NewBehavior(false)
	out := PauseWhen(scope, src, paused, func(a, b int) bool { return a == b })

	var seen []int
	out.Watch(scope, func(v int) { seen = append(seen, v) })

	src.Set(1)
	paused.Set(true)
	src.Set(2)
	src.Set(3)
	require.Equal(t, []int{0, 1}, seen, "held while paused")

	paused.Set(false)
	require.Equal(t, []int{0, 1, 3}, seen, "only the latest value is delivered on resume")

	paused.Set(true)
	paused.Set(false)
	require.Equal(t, []int{0, 1, 3}, seen, "nothing pending, nothing delivered")

	// a round trip back to the delivered value resumes without a duplicate
	paused.Set(true)
	src.Set(5)
	src.Set(3)
	paused.Set(false)
	require.Equal(t, []int{0, 1, 3}, seen, "no re-emission when the value is unchanged")
}

func TestMergeAndFilter(t *testing.T) {
	scope := NewScope()
	defer scope.End()

	a := NewEvent[int]()
	b := NewEvent[int]()
	merged := Merge(scope, a, b)
	evens := FilterEvent(scope, merged, func(v int) bool { return v%2 == 0 })

	var seen []int
	evens.Watch(scope, func(v int) { seen = append(seen, v) })

	a.Emit(1)
	b.Emit(2)
	a.Emit(4)
	require.Equal(t, []int{2, 4}, seen)
}
