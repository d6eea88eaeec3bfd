//go:build linux && !amd64

package execmem

const lowMappingFlag = 0
