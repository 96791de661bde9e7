package grpcremote

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rkhandel/distgraph/internal/topology"
	"github.com/rkhandel/distgraph/internal/transport"
)

// Closer releases whatever NewTransport started: the coordinator's listener
// on pid 0, and this process's client connection.
type Closer struct {
	grpcServer *grpc.Server
	conn       *grpc.ClientConn
}

func (c *Closer) Close() error {
	if c.grpcServer != nil {
		c.grpcServer.GracefulStop()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// NewTransport dials the cluster's collective coordinator and returns a
// transport.Transport backed by it. Host 0 also hosts the coordinator: every
// process, including pid 0, connects to it as a client.
func NewTransport(ctx context.Context, env *topology.ClusterEnv) (transport.Transport, *Closer, error) {
	closer := &Closer{}
	numProcs := len(env.Hosts)

	if env.SelfPid == 0 {
		lis, err := net.Listen("tcp", env.Hosts[0])
		if err != nil {
			return nil, nil, fmt.Errorf("grpcremote: coordinator listen on %s: %w", env.Hosts[0], err)
		}
		srv := grpc.NewServer()
		srv.RegisterService(&serviceDesc, &server{coord: newCoordinator(numProcs)})
		closer.grpcServer = srv
		go func() {
			_ = srv.Serve(lis)
		}()
	}

	conn, err := grpc.NewClient(
		env.Hosts[0],
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("grpcremote: dial coordinator at %s: %w", env.Hosts[0], err)
	}
	closer.conn = conn

	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Stream",
		ServerStreams: true,
		ClientStreams: true,
	}, "/distgraph.grpcremote.Collective/Stream")
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("grpcremote: open collective stream: %w", err)
	}

	tr := &remoteTransport{
		pid:      env.SelfPid,
		numProcs: numProcs,
		stream:   stream,
		calls:    make(map[string]int),
	}
	return tr, closer, nil
}
