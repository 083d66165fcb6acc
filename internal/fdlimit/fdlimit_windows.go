//go:build windows

package fdlimit

import "golang.org/x/sys/windows"

var procGetMaxStdio = windows.NewLazySystemDLL("msvcrt.dll").NewProc("_getmaxstdio")

func platformLimit() (uint64, error) {
	if err := procGetMaxStdio.Find(); err != nil {
		return 0, err
	}
	r1, _, _ := procGetMaxStdio.Call()
	return uint64(int32(r1)), nil
}
