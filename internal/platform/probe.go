package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"

	"github.com/ushadow-io/ushadow/internal/clusters"
)

// ProbeResult is the reachability of one docker host.
type ProbeResult struct {
	Name       string        `json:"name"`
	Host       string        `json:"host"`
	Reachable  bool          `json:"reachable"`
	APIVersion string        `json:"api_version,omitempty"`
	OSType     string        `json:"os_type,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
	Error      string        `json:"error,omitempty"`
}

// ProbeDockerHost pings the Engine API of h.  Failures are reported in the
// result, not as an error, so callers can list every host's state.
func ProbeDockerHost(ctx context.Context, h clusters.DockerHost) ProbeResult {
	res := ProbeResult{Name: h.Name, Host: h.Host}

	cli, err := client.NewClientWithOpts(client.WithHost(h.Host), client.WithAPIVersionNegotiation())
	if err != nil {
		res.Error = fmt.Sprintf("client: %v", err)
		return res
	}
	defer cli.Close()

	start := time.Now()
	ping, err := cli.Ping(ctx)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Reachable = true
	res.APIVersion = ping.APIVersion
	res.OSType = ping.OSType
	return res
}
