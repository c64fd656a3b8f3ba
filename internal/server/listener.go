package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/coreos/go-systemd/v22/activation"
)

// Listen returns the server's TCP listener. A socket inherited from the
// process supervisor (systemd socket activation or a hot-reload handoff)
// takes precedence; otherwise a fresh socket is bound on [bind]:port.
func Listen(bind string, port int) (net.Listener, error) {
	inherited, err := activation.Listeners()
	if err != nil {
		return nil, fmt.Errorf("checking inherited sockets: %w", err)
	}
	if len(inherited) > 0 {
		return inherited[0], nil
	}

	addr := net.JoinHostPort(bind, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", addr, err)
	}
	return ln, nil
}
