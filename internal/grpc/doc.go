// Package grpc serves the dsfd control plane over gRPC.
//
// Package structure:
//
//	grpc/
//	├── client/             - rpc.RPC implementation used by the dsf CLI
//	├── control/            - Control service descriptor and status mapping
//	├── middleware/         - Stream interceptors (request id, logging, recovery, rate limiting)
//	├── control_service.go  - Exec stream: decode, dispatch, answer, audit
//	├── metrics.go          - Per-kind request metrics
//	└── server.go           - Listeners, metrics endpoint, graceful stop
//
// One Exec stream multiplexes many requests. Each frame is a JSON envelope
// carrying a req_id; responses may arrive in any order and are matched by
// the client's correlation table.
package grpc
