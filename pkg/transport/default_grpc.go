package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/shrtyk/raft-router/api"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	LeaderInfoServiceName = "raftrouter.v1.LeaderInfo"
	leaderInfoMethod      = "/" + LeaderInfoServiceName + "/GetLeaderInfo"

	fieldIsLeader       = "isLeader"
	fieldLeaderEndpoint = "leaderEndpoint"
)

// LeaderInfoServer is implemented by replicas exposing leader-info over gRPC.
// The response mirrors the JSON body of GET /leader-info.
type LeaderInfoServer interface {
	GetLeaderInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// LeaderInfoFunc adapts a function reporting leadership to LeaderInfoServer.
type LeaderInfoFunc func(ctx context.Context) (api.ProbeResult, error)

func (f LeaderInfoFunc) GetLeaderInfo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := f(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeLeaderInfo(res), nil
}

// EncodeLeaderInfo converts a probe result into its gRPC wire form.
func EncodeLeaderInfo(res api.ProbeResult) *structpb.Struct {
	hint := structpb.NewNullValue()
	if res.LeaderHint != "" {
		hint = structpb.NewStringValue(res.LeaderHint)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldIsLeader:       structpb.NewBoolValue(res.IsLeader),
		fieldLeaderEndpoint: hint,
	}}
}

// DecodeLeaderInfoStruct is the gRPC counterpart of DecodeLeaderInfo.
func DecodeLeaderInfoStruct(s *structpb.Struct) (api.ProbeResult, error) {
	if s == nil {
		return api.ProbeResult{}, fmt.Errorf("empty leader info")
	}
	v, ok := s.GetFields()[fieldIsLeader]
	if !ok {
		return api.ProbeResult{}, fmt.Errorf("missing %s field", fieldIsLeader)
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return api.ProbeResult{}, fmt.Errorf("%s is not a bool", fieldIsLeader)
	}

	res := api.ProbeResult{IsLeader: b.BoolValue}
	if res.IsLeader {
		return res, nil
	}
	switch h := s.GetFields()[fieldLeaderEndpoint].GetKind().(type) {
	case nil, *structpb.Value_NullValue:
	case *structpb.Value_StringValue:
		res.LeaderHint = h.StringValue
	default:
		return api.ProbeResult{}, fmt.Errorf("%s is not a string", fieldLeaderEndpoint)
	}
	return res, nil
}

func leaderInfoHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LeaderInfoServer).GetLeaderInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: leaderInfoMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LeaderInfoServer).GetLeaderInfo(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var leaderInfoServiceDesc = grpc.ServiceDesc{
	ServiceName: LeaderInfoServiceName,
	HandlerType: (*LeaderInfoServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetLeaderInfo",
			Handler:    leaderInfoHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftrouter/v1/leader_info",
}

// RegisterLeaderInfoServer registers srv on s.
func RegisterLeaderInfoServer(s grpc.ServiceRegistrar, srv LeaderInfoServer) {
	s.RegisterService(&leaderInfoServiceDesc, srv)
}

var _ api.Prober = (*GRPCProber)(nil)

// GRPCProber asks replicas for leader info over gRPC.
// Connections are created once, for the endpoints it was built with.
type GRPCProber struct {
	requestTimeout time.Duration
	conns          map[api.Endpoint]*grpc.ClientConn
	closeFunc      func() error
	closeOnce      sync.Once
}

// NewGRPCProber connects to targets, keyed by the endpoint each gRPC target
// serves. An empty target is derived from the endpoint with GRPCTarget.
func NewGRPCProber(
	reqTimeout time.Duration,
	endpoints []api.Endpoint,
	targets map[api.Endpoint]string,
	opts ...grpc.DialOption,
) (*GRPCProber, error) {
	addrs := make([]string, len(endpoints))
	for i, ep := range endpoints {
		addr := targets[ep]
		if addr == "" {
			addr = GRPCTarget(ep)
		}
		addrs[i] = addr
	}

	conns, closeFunc, err := SetupConnections(addrs, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc prober: %w", err)
	}

	p := &GRPCProber{
		requestTimeout: reqTimeout,
		conns:          make(map[api.Endpoint]*grpc.ClientConn, len(endpoints)),
		closeFunc:      closeFunc,
	}
	for i, ep := range endpoints {
		p.conns[ep] = conns[i]
	}
	return p, nil
}

func (p *GRPCProber) Probe(ctx context.Context, ep api.Endpoint) (api.ProbeResult, error) {
	conn, ok := p.conns[ep]
	if !ok {
		return api.ProbeResult{}, probeErr(ep, api.ErrUnreachable, fmt.Errorf("no connection for endpoint"))
	}

	if p.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.requestTimeout)
		defer cancel()
	}

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, leaderInfoMethod, &emptypb.Empty{}, out); err != nil {
		return api.ProbeResult{}, probeErr(ep, api.ErrUnreachable, err)
	}

	res, err := DecodeLeaderInfoStruct(out)
	if err != nil {
		return api.ProbeResult{}, probeErr(ep, api.ErrMalformedResponse, err)
	}
	return res, nil
}

// Close releases every connection. It is safe to call more than once.
func (p *GRPCProber) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.closeFunc()
	})
	return err
}

// GRPCTarget turns an endpoint address into a gRPC dial target by dropping
// the scheme and path: "http://10.0.0.1:9000/blog" becomes "10.0.0.1:9000".
func GRPCTarget(ep api.Endpoint) string {
	u, err := url.Parse(string(ep))
	if err != nil || u.Host == "" {
		return string(ep)
	}
	return u.Host
}
