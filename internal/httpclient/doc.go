// Package httpclient builds requests and clients for HTTP workloads.
//
// A [RequestBuilder] is created once per workload from its configuration and
// then builds an identical request for every invocation. The body is a
// [Payload] loaded once, so file bodies are not re-read while measuring:
//
//	builder, err := httpclient.NewRequestBuilder(workloadCfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// [NewClient] returns a client tuned for many concurrent keep-alive
// connections to the same host.
package httpclient
