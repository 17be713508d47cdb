package config

import (
	"os"
	"sync"
)

const dockerHostGateway = "host.docker.internal"

var (
	dockerOnce   sync.Once
	inDocker     bool
	dockerMarker = "/.dockerenv"
)

// IsRunningInDocker reports whether the process runs inside a Docker
// container, detected by /.dockerenv. The result is cached.
func IsRunningInDocker() bool {
	dockerOnce.Do(func() {
		_, err := os.Stat(dockerMarker)
		inDocker = err == nil
	})
	return inDocker
}

// ResolveHostForDocker rewrites loopback source hosts to the Docker host
// gateway when running in a container, so a line database on the host
// machine stays reachable. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, docker bool) string {
	if !docker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostGateway
	}
	return host
}
