package testsim

import (
	"context"
	"net"

	"github.com/shrtyk/raft-router/api"
	"github.com/shrtyk/raft-router/pkg/transport"
	"google.golang.org/grpc"
)

// ServeGRPC exposes leader-info over gRPC for every replica and returns the
// dial target of each, keyed by the replica's endpoint. Answers follow the
// same cluster state as the HTTP endpoints and count as probes.
func (c *Cluster) ServeGRPC() map[api.Endpoint]string {
	c.t.Helper()

	targets := make(map[api.Endpoint]string, len(c.replicas))
	for i, r := range c.replicas {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			c.t.Fatalf("listen: %v", err)
		}

		s := grpc.NewServer()
		idx := i
		transport.RegisterLeaderInfoServer(s, transport.LeaderInfoFunc(func(context.Context) (api.ProbeResult, error) {
			return c.LeaderProbe(idx), nil
		}))
		go func() {
			_ = s.Serve(lis)
		}()
		c.t.Cleanup(s.Stop)

		targets[r.Endpoint()] = lis.Addr().String()
	}
	return targets
}
