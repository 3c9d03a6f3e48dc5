//go:build !unix

package channel

import "syscall"

func controlReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
