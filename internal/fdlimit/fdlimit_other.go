//go:build (!unix || hurd) && !windows

package fdlimit

func platformLimit() (uint64, error) {
	return DefaultLimit, nil
}
