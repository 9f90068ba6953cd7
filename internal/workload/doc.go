// Package workload turns configured workloads into runner workloads.
//
// Five kinds are supported:
//   - http sends one request per invocation and fails on error statuses or
//     unmet response expectations
//   - websocket dials, sends the payload and waits for one reply
//   - grpc makes a unary call described by a .proto file over a shared
//     connection; close it with [GRPC.Close] when done
//   - exec runs a command per invocation and fails on a non-zero exit
//   - sleep waits for a fixed time, which is useful to calibrate the harness
//
// Use [New] to build a workload from its configuration. Pass [WithTracing]
// to run each invocation inside an OpenTelemetry span.
package workload
