package scheduler

import "github.com/soulbrowser/soulbrowser/internal/core"

// pqEntry is one eligible-to-run job: head of its mutex key's FIFO, key not
// busy. Ordered by (priority, enqueue sequence) so Critical-before-Standard-
// before-Background, FIFO within a priority tier.
type pqEntry struct {
	actionID core.ActionId
	priority Priority
	seq      uint64
	index    int
}

type jobHeap []*pqEntry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	entry := x.(*pqEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
