package placement

import "fmt"

// request represents a single time slice of a batch asking for slots.
type request struct {
	slice int
	slots int
	jobs  []string
}

// nodeState represents a node of the pool during one batch.
type nodeState struct {
	// Physical index of the node, -1 until bound.
	index      int
	totalSlots int
	freeSlots  int
	// Slots each slice of the batch holds on this node, e.g. {0: 2, 3: 2}.
	sliceSlots map[int]int
	// Slots each job holds on this node, continuations included.
	// Note that sum of slots per slice must <= totalSlots.
	jobSlots map[string]int
}

// newNodeState creates an unbound node with slots free slots.
func newNodeState(slots int) *nodeState {
	return &nodeState{
		index:      -1,
		totalSlots: slots,
		freeSlots:  slots,
		sliceSlots: make(map[int]int),
		jobSlots:   make(map[string]int),
	}
}

// take gives n slots of the node to the request.
func (n *nodeState) take(r request, slots int) {
	n.freeSlots -= slots
	n.sliceSlots[r.slice] += slots
	for _, job := range r.jobs {
		n.jobSlots[job] += slots
	}
}

func (n *nodeState) String() string {
	return fmt.Sprintf("node(index=%d, slots=%d, free=%d, jobs=%v)", n.index, n.totalSlots, n.freeSlots, n.jobSlots)
}
