package mpsc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDrainRestoresFIFOOrder(t *testing.T) {
	var q Queue
	var a, b, c Node
	a.Value, b.Value, c.Value = "a", "b", "c"

	q.Push(&a)
	q.Push(&b)
	q.Push(&c)

	var got []string
	Walk(q.Drain(), func(n *Node) {
		got = append(got, n.Value.(string))
	})
	require.Equal(t, []string{"a", "b", "c"}, got, "Drain must restore push order despite a LIFO stack")
}

func TestDrainOnEmptyQueueReturnsNil(t *testing.T) {
	var q Queue
	require.Nil(t, q.Drain())
}

func TestDrainAfterDrainIsEmpty(t *testing.T) {
	var q Queue
	var a Node
	q.Push(&a)
	require.NotNil(t, q.Drain())
	require.Nil(t, q.Drain())
}

func TestConcurrentPushSingleConsumerDrain(t *testing.T) {
	var q Queue
	const n = 500

	nodes := make([]Node, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		nodes[i].Value = i
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Push(&nodes[i])
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	Walk(q.Drain(), func(node *Node) {
		seen[node.Value.(int)] = true
	})
	require.Len(t, seen, n)
}
