package handler

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Admin service procedures.
const (
	AdminServiceName        = "corosync.admin.v1.AdminService"
	AdminGetStatusProcedure = "/" + AdminServiceName + "/GetStatus"
)

// NewAdminHandler returns the mount path and handler of the connect admin
// service.
func NewAdminHandler(h *Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	getStatus := connect.NewUnaryHandler(
		AdminGetStatusProcedure,
		h.getStatus,
		opts...,
	)

	mux := http.NewServeMux()
	mux.Handle(AdminGetStatusProcedure, getStatus)
	return "/" + AdminServiceName + "/", mux
}

func (h *Handler) getStatus(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	st, err := h.currentStatus(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	v := h.view(st)

	members := make([]any, 0, len(v.Members))
	for _, m := range v.Members {
		members = append(members, map[string]any{
			"nodeid": m.NodeID,
			"name":   m.Name,
			"addr":   m.Addr,
		})
	}
	directives := make(map[string]any, len(v.Directives))
	for svc, d := range v.Directives {
		directives[svc] = d
	}

	out, err := structpb.NewStruct(map[string]any{
		"version":      v.Version,
		"uptime":       v.Uptime,
		"nodeid":       v.NodeID,
		"ring_seq":     v.RingSeq,
		"quorate":      v.Quorate,
		"syncing":      v.Syncing,
		"queue_level":  v.QueueLevel,
		"connections":  v.Connections,
		"members":      members,
		"flow_control": directives,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// NewAdminClient creates a client for the GetStatus procedure.
func NewAdminClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[emptypb.Empty, structpb.Struct] {
	return connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+AdminGetStatusProcedure, opts...)
}
