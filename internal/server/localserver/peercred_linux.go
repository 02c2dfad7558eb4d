//go:build linux

package localserver

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/russellb/corosync/internal/ipc"
)

// peerCredentials reads SO_PEERCRED from a connected Unix socket.
func peerCredentials(c *net.UnixConn) (ipc.Credentials, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return ipc.Credentials{}, err
	}

	var (
		cred    *unix.Ucred
		credErr error
	)
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return ipc.Credentials{}, err
	}
	if credErr != nil {
		return ipc.Credentials{}, fmt.Errorf("SO_PEERCRED: %w", credErr)
	}
	return ipc.Credentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}
