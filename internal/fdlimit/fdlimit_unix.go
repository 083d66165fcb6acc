//go:build unix && !hurd

package fdlimit

import "golang.org/x/sys/unix"

func platformLimit() (uint64, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, err
	}
	// Cur is int64 on freebsd and dragonfly.
	return uint64(rl.Cur), nil
}
