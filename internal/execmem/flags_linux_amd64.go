//go:build linux && amd64

package execmem

import "golang.org/x/sys/unix"

const lowMappingFlag = unix.MAP_32BIT
