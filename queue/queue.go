package queue

import "container/heap"

// Compile time check to ensure DistanceQueue satisfies the heap interface.
var _ heap.Interface = (*DistanceQueue)(nil)

// Item is an entry in a distance-ordered queue.
type Item struct {
	Slot     uint32  // Slot identifies the graph node.
	Distance float32 // Distance is the priority of the item in the queue.

	index int // maintained by the heap.Interface methods
}

// DistanceQueue is a heap of items ordered by distance. A min queue pops the
// closest item first, a max queue the farthest. Max queues are the usual way
// to keep the best candidates seen so far: the top of the heap is the current
// worst result and is evicted on improvement.
type DistanceQueue struct {
	desc  bool
	items []*Item
}

// NewMin creates a queue that pops items in ascending distance order.
func NewMin() *DistanceQueue {
	return &DistanceQueue{desc: false}
}

// NewMax creates a queue that pops items in descending distance order.
func NewMax() *DistanceQueue {
	return &DistanceQueue{desc: true}
}

// Len returns the number of items in the queue.
func (q *DistanceQueue) Len() int { return len(q.items) }

// Less reports whether the item with index i should sort before the item with index j.
func (q *DistanceQueue) Less(i, j int) bool {
	if q.desc {
		return q.items[i].Distance > q.items[j].Distance
	}

	return q.items[i].Distance < q.items[j].Distance
}

// Swap swaps the items with indexes i and j.
func (q *DistanceQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index, q.items[j].index = i, j
}

// Push adds x to the queue. Use PushItem instead; this method is part of the
// heap.Interface contract.
func (q *DistanceQueue) Push(x any) {
	item, _ := x.(*Item)
	item.index = len(q.items)
	q.items = append(q.items, item)
}

// Pop removes and returns the last item. Use PopItem instead; this method is
// part of the heap.Interface contract.
func (q *DistanceQueue) Pop() any {
	old := q.items
	n := len(old)

	item := old[n-1]
	old[n-1] = nil
	item.index = -1

	q.items = old[:n-1]

	return item
}

// PushItem adds an item to the queue, restoring heap order.
func (q *DistanceQueue) PushItem(slot uint32, distance float32) {
	heap.Push(q, &Item{Slot: slot, Distance: distance})
}

// PopItem removes and returns the best item according to the queue order.
// It returns nil if the queue is empty.
func (q *DistanceQueue) PopItem() *Item {
	if len(q.items) == 0 {
		return nil
	}

	item, _ := heap.Pop(q).(*Item)

	return item
}

// Peek returns the best item without removing it, or nil if the queue is empty.
func (q *DistanceQueue) Peek() *Item {
	if len(q.items) == 0 {
		return nil
	}

	return q.items[0]
}

// Reset removes all items while keeping the allocated capacity.
func (q *DistanceQueue) Reset() {
	for i := range q.items {
		q.items[i] = nil
	}

	q.items = q.items[:0]
}
