package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const GatewayServiceName = "tapchain.gateway.v1.GatewayService"

const (
	// GatewayServiceSnapshotProcedure returns the full View as a Struct.
	GatewayServiceSnapshotProcedure = "/" + GatewayServiceName + "/Snapshot"
	// GatewayServiceLeaderboardProcedure returns {"entries": [...]}.
	GatewayServiceLeaderboardProcedure = "/" + GatewayServiceName + "/Leaderboard"
)

type gatewayServer struct {
	service *Service
}

// NewGatewayServiceHandler builds the connect handler for the gateway's
// read-only RPCs. Messages are well-known types, so no generated code is needed.
func NewGatewayServiceHandler(s *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	srv := &gatewayServer{service: s}
	snapshot := connect.NewUnaryHandler(GatewayServiceSnapshotProcedure, srv.Snapshot, opts...)
	leaderboard := connect.NewUnaryHandler(GatewayServiceLeaderboardProcedure, srv.Leaderboard, opts...)

	return "/" + GatewayServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GatewayServiceSnapshotProcedure:
			snapshot.ServeHTTP(w, r)
		case GatewayServiceLeaderboardProcedure:
			leaderboard.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (g *gatewayServer) Snapshot(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	out, err := toStruct(g.service.View())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (g *gatewayServer) Leaderboard(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	out, err := toStruct(map[string]any{"entries": g.service.chain.Leaderboard()})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return structpb.NewStruct(fields)
}
