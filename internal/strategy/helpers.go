package strategy

import "sort"

// crossedOnLastBar reports whether the fast series crossed the slow one
// between the previous and the latest bar, in either direction. The
// series are tail-aligned first.
func crossedOnLastBar(fast, slow []float64) bool {
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}
	if n < 2 {
		return false
	}
	fast = fast[len(fast)-n:]
	slow = slow[len(slow)-n:]

	cur, prev := n-1, n-2
	return (fast[cur] > slow[cur] && fast[prev] <= slow[prev]) ||
		(fast[cur] < slow[cur] && fast[prev] >= slow[prev])
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func min5(n int) int {
	if n > 5 {
		return 5
	}
	return n
}

// passedReasons lists the passed confirmation names in stable order.
func passedReasons(conf Confirmations) []string {
	var reasons []string
	for name, ok := range conf {
		if ok {
			reasons = append(reasons, name)
		}
	}
	sort.Strings(reasons)
	return reasons
}
