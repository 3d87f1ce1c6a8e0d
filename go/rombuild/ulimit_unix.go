//go:build !windows

package rombuild

import "syscall"

// raiseNoFile raises RLIMIT_NOFILE's soft limit to want, capped at the
// hard limit, which is left untouched (spec §4.7 step 7).
func raiseNoFile(want uint64) error {
	var rlim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim); err != nil {
		return err
	}
	if rlim.Cur >= want {
		return nil
	}
	soft := want
	if rlim.Max != 0 && soft > rlim.Max {
		soft = rlim.Max
	}
	rlim.Cur = soft
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rlim)
}
