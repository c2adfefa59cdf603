package placement

import (
	"fmt"
	"sort"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"github.com/heyfey/munkres"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
)

// Placer binds the time slices of every batch of a plan to concrete GPU
// devices of a pool made of nodes with a fixed number of GPUs. Devices are
// numbered 0..MaxGpuNum-1, node after node.
type Placer struct {
	gpusPerNode int
}

// NewPlacer creates a placer for nodes of gpusPerNode GPUs. A non-positive
// value puts the whole pool on a single node.
func NewPlacer(gpusPerNode int) *Placer {
	return &Placer{gpusPerNode: gpusPerNode}
}

// Placement holds the devices of every slice of a plan.
type Placement struct {
	// batch -> slice -> device ids
	devices [][][]int

	// Reused is the number of slots that stay on the node the same job used
	// in the previous batch, e.g. a job resuming after a continuation.
	Reused int
	// CrossNode is the number of slices spanning more than one node.
	CrossNode int
}

// Devices returns the device ids bound to a slice, or nil for an unknown
// slice. It can be passed to plan.WriteReport.
func (pl *Placement) Devices(batch, slice int) []int {
	if batch < 0 || batch >= len(pl.devices) || slice < 0 || slice >= len(pl.devices[batch]) {
		return nil
	}
	return pl.devices[batch][slice]
}

// Place binds every batch of p. The slices of a batch are first packed onto
// nodes with best-fit, then the packed nodes are bound to the physical nodes
// so that jobs overlap the most with the previous batch.
func (p *Placer) Place(pl *plan.Plan) (*Placement, error) {
	if !pl.Valid() {
		return nil, fmt.Errorf("%w: placing an infeasible plan: %v", plan.ErrInvalidArgument, pl.Err)
	}
	klog.V(4).InfoS("Started placement", "batches", len(pl.Batches), "gpus", pl.MaxGpuNum, "gpusPerNode", p.gpusPerNode)
	timer := prometheus.NewTimer(placementAlgoDuration)
	defer timer.ObserveDuration()

	sizes := p.nodeSizes(pl.MaxGpuNum)
	offsets := make([]int, len(sizes))
	for i := 1; i < len(sizes); i++ {
		offsets[i] = offsets[i-1] + sizes[i-1]
	}

	res := &Placement{devices: make([][][]int, len(pl.Batches))}
	var prev []*nodeState
	for bi, b := range pl.Batches {
		nodeList := make([]*nodeState, len(sizes))
		for i, slots := range sizes {
			nodeList[i] = newNodeState(slots)
		}
		crossNode, err := bestFit(requestsOf(b), nodeList)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", bi, err)
		}
		res.CrossNode += crossNode

		if prev == nil {
			for i, node := range nodeList {
				node.index = i
			}
		} else {
			reused, err := bindNodes(nodeList, prev)
			if err != nil {
				return nil, fmt.Errorf("batch %d: %w", bi, err)
			}
			res.Reused += reused
		}

		physical := make([]*nodeState, len(nodeList))
		for _, node := range nodeList {
			physical[node.index] = node
		}
		res.devices[bi] = assignDevices(len(b.Slices), physical, offsets)
		klog.V(5).InfoS("Placed batch", "batch", bi, "nodes", physical, "devices", res.devices[bi])
		prev = physical
	}

	reusedSlotsGauge.Set(float64(res.Reused))
	crossNodeGauge.Set(float64(res.CrossNode))
	klog.V(4).InfoS("Finished placement", "reused", res.Reused, "crossNode", res.CrossNode)
	return res, nil
}

func (p *Placer) nodeSizes(gpus int) []int {
	if p.gpusPerNode <= 0 || p.gpusPerNode >= gpus {
		return []int{gpus}
	}
	sizes := []int{}
	for left := gpus; left > 0; left -= p.gpusPerNode {
		if left < p.gpusPerNode {
			sizes = append(sizes, left)
		} else {
			sizes = append(sizes, p.gpusPerNode)
		}
	}
	return sizes
}

func requestsOf(b *plan.Batch) []request {
	requests := make([]request, 0, len(b.Slices))
	for i, s := range b.Slices {
		r := request{slice: i, slots: s.GpuNum}
		for _, j := range s.Jobs {
			r.jobs = append(r.jobs, j.Name)
		}
		for _, j := range s.Backfill {
			r.jobs = append(r.jobs, j.Name)
		}
		requests = append(requests, r)
	}
	return requests
}

// bestFit sorts slices by number of slots requested in descending order, then
// binds slices to nodes using best-fit algorithm. A slice that fits no node
// is spread over the nodes with the most free slots. It returns the number of
// slices spanning more than one node.
func bestFit(requests []request, nodeList []*nodeState) (int, error) {
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].slots > requests[j].slots
	})

	crossNode := 0
	for _, r := range requests {
		requested := r.slots
		spanned := false
		for requested > 0 {
			bestIdx := -1
			maxIdx := 0
			for i, node := range nodeList {
				// find the bestfit
				if node.freeSlots >= requested {
					if bestIdx == -1 || nodeList[bestIdx].freeSlots > node.freeSlots {
						bestIdx = i
					}
				}
				// also find the node with max free slots
				if nodeList[maxIdx].freeSlots < node.freeSlots {
					maxIdx = i
				}
			}
			if bestIdx != -1 {
				nodeList[bestIdx].take(r, requested)
				requested = 0
				continue
			}
			free := nodeList[maxIdx].freeSlots
			if free == 0 {
				return 0, fmt.Errorf("%w: slice %d requests %d more slots than the pool has", plan.ErrInvalidArgument,
					r.slice, requested)
			}
			nodeList[maxIdx].take(r, free)
			requested -= free
			spanned = true
		}
		if spanned {
			crossNode++
		}
	}
	return crossNode, nil
}

// bindNodes binds each node in nodeList to one of the physical nodes of the
// previous batch, maximising the overlap of job slots. A node only binds to a
// physical node of the same size. It returns the total overlap.
func bindNodes(nodeList []*nodeState, prev []*nodeState) (int, error) {
	size := len(prev)
	// outweighs any overlap, so nodes always bind to nodes of their size
	sizeMatch := int64(1)
	for _, node := range prev {
		sizeMatch += int64(node.totalSlots)
	}

	scoringMatrix := make([]int64, 0, size*size)
	for _, node := range nodeList {
		scoringMatrix = append(scoringMatrix, scoreCandidates(node, prev, sizeMatch)...)
	}
	klog.V(5).InfoS("Scored all nodes", "scoringMatrix", scoringMatrix)

	m := munkres.NewMatrix(size)
	m.A = scoringMatrix
	result := munkres.ComputeMunkresMax(m)

	reused := 0
	bound := make([]bool, size)
	for _, rowCol := range result {
		node, candidate := nodeList[rowCol.Row], prev[rowCol.Col]
		if node.totalSlots != candidate.totalSlots || bound[rowCol.Col] {
			return 0, fmt.Errorf("%w: could not bind nodes of the batch", plan.ErrInvalidArgument)
		}
		bound[rowCol.Col] = true
		node.index = candidate.index
		reused += int(score(node, candidate))
	}
	for _, node := range nodeList {
		if node.index < 0 {
			return 0, fmt.Errorf("%w: could not bind nodes of the batch", plan.ErrInvalidArgument)
		}
	}
	return reused, nil
}

// scoreCandidates scores all the candidate nodes for a node.
func scoreCandidates(position *nodeState, candidateList []*nodeState, sizeMatch int64) []int64 {
	scores := make([]int64, len(candidateList))
	for i, candidate := range candidateList {
		scores[i] = score(position, candidate)
		if position.totalSlots == candidate.totalSlots {
			scores[i] += sizeMatch
		}
	}
	return scores
}

// score calculates overlap of job:slots in two nodes.
func score(position *nodeState, candidate *nodeState) int64 {
	score := 0
	for job, slots := range position.jobSlots {
		if candidate.jobSlots[job] <= slots {
			score += candidate.jobSlots[job]
		} else {
			score += slots
		}
	}
	return int64(score)
}

// assignDevices numbers the slots of every node, in physical order, and hands
// them to the slices of the node. A slice continuing from an earlier node
// comes first, so spread slices get consecutive devices.
func assignDevices(sliceCount int, physical []*nodeState, offsets []int) [][]int {
	devices := make([][]int, sliceCount)
	firstNode := make(map[int]int)
	for ni, node := range physical {
		slices := make([]int, 0, len(node.sliceSlots))
		for si := range node.sliceSlots {
			if _, ok := firstNode[si]; !ok {
				firstNode[si] = ni
			}
			slices = append(slices, si)
		}
		sort.Slice(slices, func(i, j int) bool {
			if firstNode[slices[i]] != firstNode[slices[j]] {
				return firstNode[slices[i]] < firstNode[slices[j]]
			}
			return slices[i] < slices[j]
		})

		next := offsets[ni]
		for _, si := range slices {
			for k := 0; k < node.sliceSlots[si]; k++ {
				devices[si] = append(devices[si], next)
				next++
			}
		}
	}
	return devices
}
