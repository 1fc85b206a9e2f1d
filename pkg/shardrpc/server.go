package shardrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hpckit/pannier/pkg/wire"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Request is the wire frame for a fabric call: a handler name plus the
// encoded argument tuple.
type Request struct {
	Name string
	Body []byte
}

// EncodeWire implements wire.Record.
func (r *Request) EncodeWire(e *wire.Encoder) {
	e.PutString(r.Name)
	e.PutBytes(r.Body)
}

// DecodeWire implements wire.Record.
func (r *Request) DecodeWire(d *wire.Decoder) error {
	var err error
	if r.Name, err = d.String(); err != nil {
		return err
	}
	r.Body, err = d.Bytes()
	return err
}

// Response is the wire frame for a fabric result.
type Response struct {
	Body []byte
}

// EncodeWire implements wire.Record.
func (r *Response) EncodeWire(e *wire.Encoder) {
	e.PutBytes(r.Body)
}

// DecodeWire implements wire.Record.
func (r *Response) DecodeWire(d *wire.Decoder) error {
	var err error
	r.Body, err = d.Bytes()
	return err
}

const invokeMethod = "/pannier.Fabric/Invoke"

// fabricService is the server-side interface for the hand-rolled service
// descriptor below. All collections multiplex over this single method; the
// handler name inside the request selects the operation.
type fabricService interface {
	Dispatch(ctx context.Context, req *Request) (*Response, error)
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(fabricService).Dispatch(ctx, in)
}

var fabricServiceDesc = grpc.ServiceDesc{
	ServiceName: "pannier.Fabric",
	HandlerType: (*fabricService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pannier/shardrpc",
}

// Fabric is the per-process RPC runtime: the shard directory, the handler
// registry, the gRPC server for the local shard (servers only) and a cache
// of client connections to peer shards. One fabric serves every collection
// in the job; see Init and Process for the process-wide instance.
type Fabric struct {
	dir     *Directory
	reg     *registry
	metrics Sink
	log     *logrus.Entry

	server   *grpc.Server
	listener net.Listener

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn

	callTimeout  time.Duration
	shutdownOnce sync.Once
}

// NewFabric creates a fabric from the given parameters. Servers start
// listening on base+localShard immediately; handler binding may happen
// afterwards because the bootstrap barrier keeps clients from calling before
// construction completes. Most processes want Init instead and should only
// use NewFabric directly when hosting several fabrics (tests do).
func NewFabric(p Parameters) (*Fabric, error) {
	dir, err := newDirectory(p)
	if err != nil {
		return nil, err
	}
	f := &Fabric{
		dir:         dir,
		reg:         newRegistry(),
		metrics:     NewSinkFromString(p.Metrics, fmt.Sprintf("shard%d", p.LocalShard)),
		log:         logrus.WithField("shard", p.LocalShard),
		conns:       make(map[string]*grpc.ClientConn),
		callTimeout: p.CallTimeout,
	}
	if dir.IsServer() {
		listener, err := net.Listen("tcp", dir.ListenAddress())
		if err != nil {
			return nil, fmt.Errorf("shardrpc: listen on %s: %w", dir.ListenAddress(), err)
		}
		f.listener = listener
		f.server = grpc.NewServer()
		f.server.RegisterService(&fabricServiceDesc, f)
		go func() {
			if err := f.server.Serve(listener); err != nil {
				f.log.WithError(err).Debug("Fabric server stopped")
			}
		}()
		f.log.WithField("address", listener.Addr().String()).Info("Fabric serving")
	}
	return f, nil
}

// Directory returns the fabric's shard directory.
func (f *Fabric) Directory() *Directory {
	return f.dir
}

// NumShards returns the fixed shard count for the job.
func (f *Fabric) NumShards() int {
	return f.dir.NumShards()
}

// Bind registers a named handler. Names are unique per process; binding the
// same name twice returns ErrDuplicateHandler.
func (f *Fabric) Bind(name string, h Handler) error {
	if err := f.reg.bind(name, h); err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}
	f.log.WithField("handler", name).Debug("Bound handler")
	return nil
}

// Unbind removes a named handler. Unbinding an unknown name is a no-op.
func (f *Fabric) Unbind(name string) {
	f.reg.unbind(name)
}

// Dispatch runs a request against the local registry. It is exported only
// through the gRPC service descriptor.
func (f *Fabric) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	h, ok := f.reg.lookup(req.Name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "%v: %q", ErrNotBound, req.Name)
	}
	body, err := h(ctx, req.Body)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "handler %q: %v", req.Name, err)
	}
	f.metrics.LogRequest(directionServe, req.Name)
	return &Response{Body: body}, nil
}

// LogLocal records a local fast-path invocation in the metrics sink.
func (f *Fabric) LogLocal(name string) {
	f.metrics.LogRequest(directionLocal, name)
}

// LogFanout records a fan-out operation in the metrics sink.
func (f *Fabric) LogFanout(name string) {
	f.metrics.LogFanout(name)
}

// Shutdown stops the server (if any) and closes all client connections. The
// fabric cannot be reused afterwards.
func (f *Fabric) Shutdown() {
	f.shutdownOnce.Do(func() {
		if f.server != nil {
			f.server.Stop()
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for ep, conn := range f.conns {
			conn.Close()
			delete(f.conns, ep)
		}
	})
}

var (
	procMu sync.Mutex
	proc   *Fabric
)

// Init creates the process-wide fabric. It must be called exactly once per
// job, before any collection is constructed; a second call is a
// configuration error. All collections multiplex over this one service so a
// job never opens more than one listening port per process.
func Init(p Parameters) (*Fabric, error) {
	procMu.Lock()
	defer procMu.Unlock()
	if proc != nil {
		return nil, fmt.Errorf("shardrpc: process fabric already initialised")
	}
	f, err := NewFabric(p)
	if err != nil {
		return nil, err
	}
	proc = f
	return f, nil
}

// Process returns the process-wide fabric, or nil if Init has not run.
func Process() *Fabric {
	procMu.Lock()
	defer procMu.Unlock()
	return proc
}

// ShutdownProcess tears down the process-wide fabric. Intended for process
// exit paths and tests.
func ShutdownProcess() {
	procMu.Lock()
	defer procMu.Unlock()
	if proc != nil {
		proc.Shutdown()
		proc = nil
	}
}
