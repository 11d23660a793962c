package waitqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnqueueStealRoundTrip(t *testing.T) {
	var list List
	require.True(t, list.IsEmpty())

	var a, b, c Node
	a.Bind("a")
	b.Bind("b")
	c.Bind("c")

	list.Enqueue(&a)
	list.Enqueue(&b)
	list.Enqueue(&c)
	require.False(t, list.IsEmpty())

	chain := list.Steal()
	require.True(t, list.IsEmpty(), "Steal must detach the whole list")

	var seen []string
	Walk(chain, func(n *Node) {
		v := n.Steal()
		seen = append(seen, v.(string))
	})

	// LIFO push order: most recently enqueued first.
	require.Equal(t, []string{"c", "b", "a"}, seen)
}

func TestStealIsOnlyHonoredOnce(t *testing.T) {
	var node Node
	node.Bind(42)

	first := node.Steal()
	require.Equal(t, 42, first)

	second := node.Steal()
	require.Nil(t, second, "a node's fiber handle must only ever be claimed by one winner")
}

func TestStealOnEmptyListReturnsNil(t *testing.T) {
	var list List
	require.Nil(t, list.Steal())
}

func TestConcurrentEnqueueLosesNoNode(t *testing.T) {
	var list List
	const n = 200

	nodes := make([]Node, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		nodes[i].Bind(i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			list.Enqueue(&nodes[i])
		}(i)
	}
	wg.Wait()

	count := 0
	Walk(list.Steal(), func(n *Node) {
		if n.Steal() != nil {
			count++
		}
	})
	require.Equal(t, n, count)
}
