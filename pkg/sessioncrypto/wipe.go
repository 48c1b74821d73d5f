package sessioncrypto

import "runtime"

// wipe zeroes the buffer in place. Best-effort: the noinline directive and
// KeepAlive reduce the chance of the compiler eliding the writes.
//
//go:noinline
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
