package grpcremote

import (
	"io"

	"google.golang.org/grpc"
)

// collectiveServer is the interface grpc.Server.RegisterService checks the
// registered implementation against. Hand-written in place of a
// protoc-generated *_grpc.pb.go.
type collectiveServer interface {
	Stream(stream grpc.ServerStream) error
}

// serviceDesc is a hand-written grpc.ServiceDesc exposing one bidirectional
// streaming method, "Stream", that multiplexes every Envelope this transport
// sends. No protoc-generated code backs this service.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "distgraph.grpcremote.Collective",
	HandlerType: (*collectiveServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       _Collective_Stream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "internal/transport/grpcremote/service.go",
}

func _Collective_Stream_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(collectiveServer).Stream(stream)
}

// server implements collectiveServer by dispatching each incoming Envelope
// to the shared coordinator, one goroutine per connected process's stream.
type server struct {
	coord *coordinator
}

func (s *server) Stream(stream grpc.ServerStream) error {
	for {
		var req Envelope
		if err := stream.RecvMsg(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		resp, err := s.coord.dispatch(stream.Context(), &req)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(resp); err != nil {
			return err
		}
	}
}
