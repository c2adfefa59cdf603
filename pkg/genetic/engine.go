package genetic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/plan"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// Engine searches wave assignments of a fixed job set that minimize the total
// time of the decoded plan.
type Engine struct {
	cfg      Config
	jobNames []string
	gpuNum   int
	lookup   trainingjob.Lookup
	rng      *rand.Rand
}

// Generation holds the statistics of one generation, computed over the
// individuals that decoded to a plan.
type Generation struct {
	Index   int
	Best    float64
	Mean    float64
	StdDev  float64
	Invalid int
}

// Result is the outcome of a search.
type Result struct {
	Best *Individual
	// Best individual of the random initial population
	InitialBest *Individual
	// One entry for the initial population and one per generation
	History []Generation
}

// NewEngine creates an engine for jobNames on a pool of gpuNum GPUs. The
// lookup is shared by concurrent decodes and must be safe for concurrent
// reads; it is wrapped in a cache shared by the whole search.
func NewEngine(jobNames []string, gpuNum int, lookup trainingjob.Lookup, cfg Config) (*Engine, error) {
	if len(jobNames) == 0 {
		return nil, fmt.Errorf("%w: no jobs to schedule", ErrEmptyPopulation)
	}
	if gpuNum <= 0 {
		return nil, fmt.Errorf("%w: pool of %d GPUs", ErrEmptyPopulation, gpuNum)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		jobNames: append([]string(nil), jobNames...),
		gpuNum:   gpuNum,
		lookup:   trainingjob.NewSharedCache(lookup),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run evolves the population for the configured number of generations and
// returns the best individual found. Between generations the population is
// replaced elitistically, so the best total time never gets worse.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	pop, err := e.InitPopulation(ctx)
	if err != nil {
		return nil, err
	}
	sortPopulation(pop)

	res := &Result{
		InitialBest: pop[0].Clone(),
		History:     []Generation{summarize(0, pop)},
	}
	klog.V(4).InfoS("Initialized population", "size", len(pop), "jobs", len(e.jobNames), "gpus", e.gpuNum,
		"best", pop[0].Fitness)

	for gen := 1; gen <= e.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := e.Select(pop)
		e.Crossover(next)
		e.Mutate(next)
		if err := e.Evaluate(ctx, next); err != nil {
			return nil, err
		}
		pop = e.Admit(pop, next)

		stats := summarize(gen, pop)
		res.History = append(res.History, stats)
		generationsTotal.Inc()
		if !math.IsInf(stats.Best, 1) {
			bestTotalTime.Set(stats.Best)
		}
		klog.V(5).InfoS("Finished generation", "generation", gen, "best", stats.Best, "mean", stats.Mean,
			"stddev", stats.StdDev, "invalid", stats.Invalid)
	}

	res.Best = pop[0]
	klog.V(4).InfoS("Finished genetic search", "generations", e.cfg.Generations, "best", res.Best.Fitness,
		"initialBest", res.InitialBest.Fitness, "duration", time.Since(start))
	return res, nil
}

// InitPopulation creates and evaluates individuals with every wave drawn
// uniformly from 1..len(jobs) and, when shares evolve, every share drawn
// uniformly from 1..gpus.
func (e *Engine) InitPopulation(ctx context.Context) ([]*Individual, error) {
	n := len(e.jobNames)
	pop := make([]*Individual, e.cfg.PopulationSize)
	for i := range pop {
		ind := &Individual{Orders: make([]int, n), Fitness: math.Inf(1)}
		for k := range ind.Orders {
			ind.Orders[k] = e.rng.Intn(n) + 1
		}
		if e.cfg.EvolveShares {
			ind.Gpus = make([]int, n)
			for k := range ind.Gpus {
				ind.Gpus[k] = e.rng.Intn(e.gpuNum) + 1
			}
		}
		pop[i] = ind
	}
	if err := e.Evaluate(ctx, pop); err != nil {
		return nil, err
	}
	return pop, nil
}

// Evaluate decodes every individual without a plan, at most Workers at a
// time, and returns once all of them are scored. An individual referring to
// missing training data is scored +Inf; any other decode error aborts.
func (e *Engine) Evaluate(ctx context.Context, pop []*Individual) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workers())
	for _, ind := range pop {
		ind := ind
		if ind.Plan != nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return e.decode(ind)
		})
	}
	return g.Wait()
}

func (e *Engine) decode(ind *Individual) error {
	start := time.Now()
	defer func() {
		decodeDuration.Observe(time.Since(start).Seconds())
	}()

	opts := plan.Options{Backfill: e.cfg.Backfill}
	var (
		p   *plan.Plan
		err error
	)
	if ind.Gpus != nil {
		p, err = plan.BuildFromShares(e.jobNames, ind.Orders, ind.Gpus, e.gpuNum, e.lookup, opts)
	} else {
		p, err = plan.BuildFromOrders(e.jobNames, ind.Orders, e.gpuNum, e.lookup, opts)
	}
	if err != nil {
		if !errors.Is(err, trainingjob.ErrLookupMiss) {
			return err
		}
		invalidIndividualsTotal.Inc()
		klog.V(5).InfoS("Individual is invalid", "orders", ind.Orders, "gpus", ind.Gpus, "err", err)
		ind.Plan = plan.InvalidPlan(e.gpuNum, err)
		ind.Fitness = math.Inf(1)
		return nil
	}
	ind.Plan = p
	ind.Fitness = p.TotalTime
	return nil
}

// Select samples a new population of the same size with probability
// proportional to 1/total time. Every selected individual is a deep copy.
// When no weight is usable, e.g. every individual is invalid, it samples
// uniformly among the best individuals instead.
func (e *Engine) Select(pop []*Individual) []*Individual {
	selected := make([]*Individual, len(pop))
	if len(pop) == 0 {
		return selected
	}

	weights := make([]float64, len(pop))
	usable := true
	for i, ind := range pop {
		if !ind.Valid() {
			continue
		}
		if ind.Fitness <= 0 {
			usable = false
			break
		}
		weights[i] = 1 / ind.Fitness
	}
	total := floats.Sum(weights)
	if !usable || total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		best := bestIndices(pop)
		for i := range selected {
			selected[i] = pop[best[e.rng.Intn(len(best))]].Clone()
		}
		return selected
	}

	cumulative := make([]float64, len(weights))
	floats.CumSum(cumulative, weights)
	floats.Scale(1/total, cumulative)
	for i := range selected {
		r := e.rng.Float64()
		k := sort.Search(len(cumulative), func(j int) bool { return cumulative[j] > r })
		if k == len(cumulative) {
			k--
		}
		for k > 0 && weights[k] == 0 {
			k--
		}
		selected[i] = pop[k].Clone()
	}
	return selected
}

// Crossover pairs the individuals through a random permutation and swaps the
// gene tails of every couple after a random cut in [1, len(jobs)-1]. Shares
// are cut independently of orders.
func (e *Engine) Crossover(pop []*Individual) {
	n := len(e.jobNames)
	if n < 2 {
		return
	}
	perm := e.rng.Perm(len(pop))
	for k := 0; k+1 < len(perm); k += 2 {
		a, b := pop[perm[k]], pop[perm[k+1]]
		swapTails(a.Orders, b.Orders, e.rng.Intn(n-1)+1)
		if a.Gpus != nil && b.Gpus != nil {
			swapTails(a.Gpus, b.Gpus, e.rng.Intn(n-1)+1)
		}
		a.invalidate()
		b.invalidate()
	}
}

// Mutate replaces one random gene of every individual with a different legal
// value. Shares, when present, mutate one gene as well.
func (e *Engine) Mutate(pop []*Individual) {
	n := len(e.jobNames)
	for _, ind := range pop {
		changed := false
		if n > 1 {
			k := e.rng.Intn(n)
			ind.Orders[k] = differentValue(e.rng, ind.Orders[k], n)
			changed = true
		}
		if ind.Gpus != nil && e.gpuNum > 1 {
			k := e.rng.Intn(n)
			ind.Gpus[k] = differentValue(e.rng, ind.Gpus[k], e.gpuNum)
			changed = true
		}
		if changed {
			ind.invalidate()
		}
	}
}

// Admit merges the previous and the new population and keeps the best
// PopulationSize individuals, ordered by fitness.
func (e *Engine) Admit(prev, next []*Individual) []*Individual {
	merged := make([]*Individual, 0, len(prev)+len(next))
	merged = append(merged, prev...)
	merged = append(merged, next...)
	sortPopulation(merged)
	if len(merged) > e.cfg.PopulationSize {
		merged = merged[:e.cfg.PopulationSize]
	}
	return merged
}

func sortPopulation(pop []*Individual) {
	sort.SliceStable(pop, func(i, j int) bool {
		return pop[i].Fitness < pop[j].Fitness
	})
}

func bestIndices(pop []*Individual) []int {
	best := []int{}
	for i, ind := range pop {
		switch {
		case len(best) == 0 || ind.Fitness < pop[best[0]].Fitness:
			best = []int{i}
		case ind.Fitness == pop[best[0]].Fitness:
			best = append(best, i)
		}
	}
	return best
}

func swapTails(a, b []int, cut int) {
	for i := cut; i < len(a) && i < len(b); i++ {
		a[i], b[i] = b[i], a[i]
	}
}

// differentValue draws uniformly from 1..max without cur.
func differentValue(rng *rand.Rand, cur, max int) int {
	v := rng.Intn(max-1) + 1
	if v >= cur {
		v++
	}
	return v
}

func summarize(index int, pop []*Individual) Generation {
	g := Generation{Index: index, Best: math.Inf(1), Mean: math.Inf(1)}
	finite := []float64{}
	for _, ind := range pop {
		if ind.Valid() {
			finite = append(finite, ind.Fitness)
		} else {
			g.Invalid++
		}
	}
	if len(finite) == 0 {
		return g
	}
	g.Best = floats.Min(finite)
	if len(finite) == 1 {
		g.Mean = finite[0]
		return g
	}
	g.Mean, g.StdDev = stat.MeanStdDev(finite, nil)
	return g
}
