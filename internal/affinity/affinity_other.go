//go:build !linux

package affinity

const supported = false

// bind is a no-op off Linux.
func bind([]int) error { return nil }

// Current is not available off Linux.
func Current() ([]int, error) { return nil, nil }
