//go:build darwin || linux

package local

import "golang.org/x/sys/unix"

func osUmask(mask int) int {
	return unix.Umask(mask)
}
