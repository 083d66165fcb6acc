// Package fdlimit reports the process file-descriptor limit.
//
// The lookup is platform specific and selected at build time:
//
//   - unix (linux, darwin, the BSDs, solaris, aix): soft RLIMIT_NOFILE via
//     getrlimit(2)
//   - windows: the C runtime stdio limit (_getmaxstdio in msvcrt)
//   - everything else: a conservative default
//
// Callers use [Limit] and never branch on the platform themselves.
package fdlimit
