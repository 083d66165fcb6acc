package fdlimit

import "math"

// DefaultLimit is returned when the platform limit cannot be determined.
const DefaultLimit = 1024

// Limit returns the number of file descriptors the process may hold open.
// The result is always positive.
func Limit() int {
	n, err := platformLimit()
	if err != nil || n <= 0 {
		return DefaultLimit
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
