package sampling

// reservoirItem is one retained candidate row with its A-Res key.
type reservoirItem struct {
	candidate Candidate
	key       float64
}

// reservoirHeap is a bounded value-based min-heap ordered by key. The
// root holds the smallest key, so a full heap evicts its weakest
// candidate in O(log n) when a better one arrives. It does not
// implement container/heap to avoid interface overhead on the hot path.
type reservoirHeap struct {
	items []reservoirItem
}

func newReservoirHeap(capacity int) *reservoirHeap {
	return &reservoirHeap{items: make([]reservoirItem, 0, capacity)}
}

// pushBounded inserts an item, evicting the smallest key when the heap
// already holds capacity items. Items weaker than the current minimum
// are dropped.
func (h *reservoirHeap) pushBounded(item reservoirItem, capacity int) {
	if len(h.items) < capacity {
		h.items = append(h.items, item)
		h.siftUp(len(h.items) - 1)
		return
	}
	if item.key <= h.items[0].key {
		return
	}
	h.items[0] = item
	h.siftDown(0)
}

func (h *reservoirHeap) len() int { return len(h.items) }

func (h *reservoirHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[parent].key <= h.items[i].key {
			break
		}
		h.items[parent], h.items[i] = h.items[i], h.items[parent]
		i = parent
	}
}

func (h *reservoirHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		if l := 2*i + 1; l < n && h.items[l].key < h.items[smallest].key {
			smallest = l
		}
		if r := 2*i + 2; r < n && h.items[r].key < h.items[smallest].key {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
