package twitch_widget

import (
	"fmt"
	"net"
)

const (
	firstDynamicPort = 49215
	lastDynamicPort  = 65535
)

func getFreeLocalPort() (int, error) {
	return findFreePort(firstDynamicPort, lastDynamicPort)
}

func findFreePort(from, to int) (int, error) {
	for port := from; port <= to; port++ {
		host := fmt.Sprintf("localhost:%d", port)
		Log.Debugf("Trying %s", host)
		ln, err := net.Listen("tcp", host)
		if err != nil {
			Log.Debugf("Can't listen on port %d: %s", port, err)
			continue
		}
		_ = ln.Close()
		return port, nil
	}
	return 0, ErrNoFreePort
}
