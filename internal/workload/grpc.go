package workload

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/httpclient"
)

// GRPC makes one unary call per invocation over a connection shared by all
// workers. The request is the JSON payload decoded against the method's
// input type.
type GRPC struct {
	conn       *grpc.ClientConn
	method     *desc.MethodDescriptor
	fullMethod string
	payload    []byte
	md         metadata.MD
	timeout    time.Duration
	expect     expectations
	inject     httpclient.HeaderInjector
}

// NewGRPC parses cfg.ProtoFile, resolves the method and opens the client
// connection. The caller must Close the workload.
func NewGRPC(cfg config.WorkloadConfig) (*GRPC, error) {
	method, err := loadMethodDescriptor(cfg.ProtoFile, cfg.Service, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("load proto descriptor: %w", err)
	}
	payload, err := httpclient.LoadPayload(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := buildDynamicRequest(method, payload.Bytes()); err != nil {
		return nil, fmt.Errorf("grpc request payload: %w", err)
	}
	conn, err := dialGRPC(cfg.URL, cfg.TLS, cfg.Insecure)
	if err != nil {
		return nil, fmt.Errorf("grpc connect: %w", err)
	}

	return &GRPC{
		conn:       conn,
		method:     method,
		fullMethod: "/" + method.GetService().GetFullyQualifiedName() + "/" + method.GetName(),
		payload:    payload.Bytes(),
		md:         metadata.New(cfg.Headers),
		timeout:    cfg.Timeout,
		expect:     newExpectations(cfg.ExpectJSON),
	}, nil
}

// WithHeaderInjector applies inject to the outgoing metadata of every call.
func (g *GRPC) WithHeaderInjector(inject httpclient.HeaderInjector) *GRPC {
	g.inject = inject
	return g
}

// FullMethod is the method path the workload invokes, e.g. "/pkg.Svc/Call".
func (g *GRPC) FullMethod() string { return g.fullMethod }

func (g *GRPC) Do(ctx context.Context) error {
	req, err := buildDynamicRequest(g.method, g.payload)
	if err != nil {
		return fmt.Errorf("grpc request payload: %w", err)
	}
	resp := dynamic.NewMessage(g.method.GetOutputType())

	md := g.md.Copy()
	if g.inject != nil {
		carrier := http.Header{}
		g.inject(ctx, carrier)
		for k, v := range carrier {
			md.Append(k, v...)
		}
	}
	if len(md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, md)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.conn.Invoke(ctx, g.fullMethod, protoadapt.MessageV2Of(req), protoadapt.MessageV2Of(resp)); err != nil {
		st := status.Convert(err)
		return &RPCError{Code: st.Code(), Message: st.Message()}
	}

	if len(g.expect) == 0 {
		return nil
	}
	body, err := resp.MarshalJSON()
	if err != nil {
		return fmt.Errorf("grpc response: %w", err)
	}
	return g.expect.check(body)
}

// Close releases the client connection.
func (g *GRPC) Close() error {
	return g.conn.Close()
}

func dialGRPC(target string, useTLS, skipVerify bool) (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	switch {
	case useTLS && skipVerify:
		creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
	case useTLS:
		creds = credentials.NewClientTLSFromCert(nil, "")
	default:
		creds = insecure.NewCredentials()
	}
	// NewClient connects lazily; the first call dials.
	return grpc.NewClient(target, grpc.WithTransportCredentials(creds))
}

func loadMethodDescriptor(protoPath, service, rpc string) (*desc.MethodDescriptor, error) {
	protoPath = strings.TrimSpace(protoPath)
	if protoPath == "" {
		return nil, fmt.Errorf("grpc proto_file is required")
	}
	parser := protoparse.Parser{
		ImportPaths: []string{filepath.Dir(protoPath)},
	}
	files, err := parser.ParseFiles(filepath.Base(protoPath))
	if err != nil {
		return nil, err
	}
	service = strings.TrimSpace(service)
	rpc = strings.TrimSpace(rpc)
	for _, file := range files {
		for _, svc := range file.GetServices() {
			if !matchesServiceName(svc, service) {
				continue
			}
			if method := svc.FindMethodByName(rpc); method != nil {
				if method.IsClientStreaming() || method.IsServerStreaming() {
					return nil, fmt.Errorf("method %s is streaming; only unary calls are supported", rpc)
				}
				return method, nil
			}
		}
	}
	return nil, fmt.Errorf("method %s not found in service %s", rpc, service)
}

func matchesServiceName(svc *desc.ServiceDescriptor, name string) bool {
	if name == "" {
		return false
	}
	if svc.GetFullyQualifiedName() == name {
		return true
	}
	return svc.GetName() == name || strings.HasSuffix(name, "."+svc.GetName())
}

func buildDynamicRequest(method *desc.MethodDescriptor, payload []byte) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(method.GetInputType())
	body := strings.TrimSpace(string(payload))
	if body == "" {
		body = "{}"
	}
	if err := msg.UnmarshalJSON([]byte(body)); err != nil {
		return nil, err
	}
	return msg, nil
}
