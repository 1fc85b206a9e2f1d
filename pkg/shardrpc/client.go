package shardrpc

import (
	"context"
	"fmt"

	"github.com/hpckit/pannier/pkg/wire"
	"google.golang.org/grpc"
)

// connection returns a cached client connection for the shard, dialing on
// first use. Connections are shared by every collection in the process.
func (f *Fabric) connection(shard int) (*grpc.ClientConn, error) {
	endpoint, err := f.dir.Endpoint(shard)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[endpoint]
	if !ok {
		opts := []grpc.DialOption{
			grpc.WithInsecure(),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName)),
		}
		conn, err = grpc.Dial(endpoint, opts...)
		if err != nil {
			return nil, fmt.Errorf("shardrpc: dial %s: %w", endpoint, err)
		}
		f.conns[endpoint] = conn
	}
	return conn, nil
}

// Call invokes a named handler on the given shard and blocks until the
// response arrives or the transport fails. Transport and handler failures
// surface as errors; application-level misses are encoded in the returned
// body by the handler itself.
func (f *Fabric) Call(ctx context.Context, shard int, name string, body []byte) ([]byte, error) {
	conn, err := f.connection(shard)
	if err != nil {
		return nil, err
	}
	if f.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.callTimeout)
		defer cancel()
	}
	req := &Request{Name: name, Body: body}
	resp := &Response{}
	if err := conn.Invoke(ctx, invokeMethod, req, resp); err != nil {
		return nil, fmt.Errorf("shardrpc: call %s on shard %d: %w", name, shard, err)
	}
	f.metrics.LogRequest(directionCall, name)
	return resp.Body, nil
}

// CallResult is the outcome of an asynchronous call.
type CallResult struct {
	Body []byte
	Err  error
}

// AsyncCall invokes a named handler on the given shard without blocking. The
// returned channel receives exactly one result.
func (f *Fabric) AsyncCall(ctx context.Context, shard int, name string, body []byte) <-chan CallResult {
	ch := make(chan CallResult, 1)
	go func() {
		body, err := f.Call(ctx, shard, name, body)
		ch <- CallResult{Body: body, Err: err}
	}()
	return ch
}
