// Package affinity pins worker threads to the cores of their NUMA nodes.
//
// Binding is best effort. Callers must lock the goroutine to its OS thread
// (runtime.LockOSThread) before calling Bind, otherwise the mask applies to
// whatever thread the scheduler happens to run the goroutine on.
package affinity

import (
	"errors"
	"runtime"
)

// ErrEmptyCPUSet is returned when no core can be derived for a worker.
var ErrEmptyCPUSet = errors.New("no cpus derived for worker")

// CPUSet returns the cores worker may run on.
//
// Cores are split evenly across nodes (numCPU / len(nodes) per node) and,
// within each node's block, a core is assigned to the worker when
// core % len(nodes) == worker % len(nodes).
func CPUSet(worker int, nodes []int, numCPU int) []int {
	if len(nodes) == 0 || numCPU <= 0 || worker < 0 {
		return nil
	}
	perNode := numCPU / len(nodes)
	lane := worker % len(nodes)

	var cpus []int
	for _, node := range nodes {
		start := node * perNode
		end := min((node+1)*perNode, numCPU)
		for c := start; c < end; c++ {
			if c%len(nodes) == lane {
				cpus = append(cpus, c)
			}
		}
	}
	return cpus
}

// Bind restricts the calling OS thread to the cores derived for worker.
func Bind(worker int, nodes []int) error {
	cpus := CPUSet(worker, nodes, runtime.NumCPU())
	if len(cpus) == 0 {
		return ErrEmptyCPUSet
	}
	return bind(cpus)
}

// Supported reports whether the platform honours Bind.
func Supported() bool {
	return supported
}
