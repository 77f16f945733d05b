package routing

import "math"

// MinHeap is a concrete-typed min-heap for the Dijkstra priority queue.
// Avoids interface boxing overhead of container/heap.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry.
type PQItem struct {
	Node uint32
	Dist uint32
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(node, dist uint32) {
	h.items = append(h.items, PQItem{node, dist})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *MinHeap) PeekDist() uint32 {
	if len(h.items) == 0 {
		return math.MaxUint32
	}
	return h.items[0].Dist
}

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].Dist >= h.items[parent].Dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left, right := 2*i+1, 2*i+2
		if left < n && h.items[left].Dist < h.items[smallest].Dist {
			smallest = left
		}
		if right < n && h.items[right].Dist < h.items[smallest].Dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// queryState holds per-query Dijkstra state. Only touched entries are
// reset between legs of a multi-stop query.
type queryState struct {
	dist    []uint32
	pred    []uint32
	touched []uint32
	pq      MinHeap
}

func newQueryState(n uint32) *queryState {
	dist := make([]uint32, n)
	pred := make([]uint32, n)
	for i := range dist {
		dist[i] = math.MaxUint32
		pred[i] = noNode
	}
	return &queryState{
		dist:    dist,
		pred:    pred,
		touched: make([]uint32, 0, 1024),
		pq:      MinHeap{items: make([]PQItem, 0, 256)},
	}
}

func (qs *queryState) reset() {
	for _, n := range qs.touched {
		qs.dist[n] = math.MaxUint32
		qs.pred[n] = noNode
	}
	qs.touched = qs.touched[:0]
	qs.pq.items = qs.pq.items[:0]
}

// relax records d as the distance to node if it improves on the current one.
func (qs *queryState) relax(node, d, from uint32) {
	if d >= qs.dist[node] {
		return
	}
	if qs.dist[node] == math.MaxUint32 {
		qs.touched = append(qs.touched, node)
	}
	qs.dist[node] = d
	qs.pred[node] = from
	qs.pq.Push(node, d)
}
