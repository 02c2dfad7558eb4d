//go:build !linux

package localserver

import (
	"errors"
	"net"

	"github.com/russellb/corosync/internal/ipc"
)

func peerCredentials(*net.UnixConn) (ipc.Credentials, error) {
	return ipc.Credentials{}, errors.New("peer credentials not supported on this platform")
}
