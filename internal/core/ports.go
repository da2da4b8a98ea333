package core

import "fmt"

// PortRange is an inclusive span of host ports reserved for one port family
// (game, RCON or query).
type PortRange struct {
	Start int
	End   int
}

// Contains reports whether port falls inside the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.Start && port <= r.End
}

// FreePort returns the lowest port in the range not present in used.
// Allocation is first-fit ascending so released ports are reused before the
// range grows upward.
func FreePort(r PortRange, used map[int]struct{}) (int, error) {
	for p := r.Start; p <= r.End; p++ {
		if _, taken := used[p]; !taken {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free port in range %d-%d: %w", r.Start, r.End, ErrResourceExhausted)
}
