package shardrpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/hpckit/pannier/pkg/wire"
	"github.com/lab5e/gotoolbox/netutils"
	"github.com/stretchr/testify/require"
)

// freeBasePort reserves n consecutive TCP ports and returns the first.
func freeBasePort(t *testing.T, n int) int {
	t.Helper()
	for attempt := 0; attempt < 20; attempt++ {
		base, err := netutils.FreeTCPPort()
		require.NoError(t, err)
		listeners := make([]net.Listener, 0, n)
		ok := true
		for i := 0; i < n; i++ {
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", base+i))
			if err != nil {
				ok = false
				break
			}
			listeners = append(listeners, ln)
		}
		for _, ln := range listeners {
			ln.Close()
		}
		if ok {
			return base
		}
	}
	t.Fatal("no consecutive free ports found")
	return 0
}

func localParams(base, numShards, localShard int, isServer bool) Parameters {
	servers := make([]string, numShards)
	for i := range servers {
		servers[i] = "127.0.0.1"
	}
	return Parameters{
		Servers:    servers,
		BasePort:   base,
		LocalShard: localShard,
		IsServer:   isServer,
	}
}

func TestParametersValidate(t *testing.T) {
	assert := require.New(t)

	_, err := newDirectory(Parameters{BasePort: 9600})
	assert.Error(err, "empty server list must fail")

	_, err = newDirectory(localParams(9600, 2, 2, true))
	assert.Error(err, "local shard outside range must fail")

	_, err = newDirectory(localParams(0, 2, 0, true))
	assert.Error(err, "base port 0 must fail")

	_, err = newDirectory(localParams(65535, 2, 0, true))
	assert.Error(err, "port range overflow must fail")
}

func TestDirectoryEndpoint(t *testing.T) {
	assert := require.New(t)

	p := Parameters{
		Servers:    []string{"node0", "node1", "node2"},
		BasePort:   9600,
		LocalShard: 1,
		IsServer:   true,
	}
	d, err := newDirectory(p)
	assert.NoError(err)
	assert.Equal(3, d.NumShards())
	assert.Equal(1, d.LocalShard())
	assert.True(d.IsServer())

	ep, err := d.Endpoint(0)
	assert.NoError(err)
	assert.Equal("node0:9600", ep)
	ep, err = d.Endpoint(2)
	assert.NoError(err)
	assert.Equal("node2:9602", ep)

	_, err = d.Endpoint(3)
	assert.Error(err)
	_, err = d.Endpoint(-1)
	assert.Error(err)

	assert.Equal(":9601", d.ListenAddress())
}

func TestFabricEchoRoundTrip(t *testing.T) {
	assert := require.New(t)

	base := freeBasePort(t, 1)
	f, err := NewFabric(localParams(base, 1, 0, true))
	assert.NoError(err)
	defer f.Shutdown()

	assert.NoError(f.Bind("echo", func(_ context.Context, body []byte) ([]byte, error) {
		return body, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in := []byte{1, 2, 3, 4, 5}
	out, err := f.Call(ctx, 0, "echo", in)
	assert.NoError(err)
	assert.Equal(in, out)

	// Empty bodies round-trip too.
	out, err = f.Call(ctx, 0, "echo", nil)
	assert.NoError(err)
	assert.Len(out, 0)
}

func TestFabricUnknownHandler(t *testing.T) {
	assert := require.New(t)

	base := freeBasePort(t, 1)
	f, err := NewFabric(localParams(base, 1, 0, true))
	assert.NoError(err)
	defer f.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = f.Call(ctx, 0, "nope", nil)
	assert.Error(err, "unbound handler must surface a call failure")
	assert.Contains(err.Error(), ErrNotBound.Error())
}

func TestFabricDuplicateBind(t *testing.T) {
	assert := require.New(t)

	base := freeBasePort(t, 1)
	f, err := NewFabric(localParams(base, 1, 0, true))
	assert.NoError(err)
	defer f.Shutdown()

	h := func(_ context.Context, body []byte) ([]byte, error) { return body, nil }
	assert.NoError(f.Bind("dup", h))
	assert.ErrorIs(f.Bind("dup", h), ErrDuplicateHandler)

	// Unbind then bind is fine: this is what collection teardown relies on.
	f.Unbind("dup")
	assert.NoError(f.Bind("dup", h))
}

func TestFabricCrossShardCall(t *testing.T) {
	assert := require.New(t)

	base := freeBasePort(t, 2)
	f0, err := NewFabric(localParams(base, 2, 0, true))
	assert.NoError(err)
	defer f0.Shutdown()
	f1, err := NewFabric(localParams(base, 2, 1, true))
	assert.NoError(err)
	defer f1.Shutdown()

	for shard, f := range []*Fabric{f0, f1} {
		shard := shard
		assert.NoError(f.Bind("whoami", func(_ context.Context, _ []byte) ([]byte, error) {
			return []byte{byte(shard)}, nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := f0.Call(ctx, 1, "whoami", nil)
	assert.NoError(err)
	assert.Equal([]byte{1}, out)

	out, err = f1.Call(ctx, 0, "whoami", nil)
	assert.NoError(err)
	assert.Equal([]byte{0}, out)
}

func TestFabricAsyncCall(t *testing.T) {
	assert := require.New(t)

	base := freeBasePort(t, 1)
	f, err := NewFabric(localParams(base, 1, 0, true))
	assert.NoError(err)
	defer f.Shutdown()

	assert.NoError(f.Bind("double", func(_ context.Context, body []byte) ([]byte, error) {
		out := make([]byte, len(body))
		for i, b := range body {
			out[i] = b * 2
		}
		return out, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := <-f.AsyncCall(ctx, 0, "double", []byte{1, 2, 3})
	assert.NoError(res.Err)
	assert.Equal([]byte{2, 4, 6}, res.Body)
}

func TestFabricHandlerError(t *testing.T) {
	assert := require.New(t)

	base := freeBasePort(t, 1)
	f, err := NewFabric(localParams(base, 1, 0, true))
	assert.NoError(err)
	defer f.Shutdown()

	assert.NoError(f.Bind("boom", func(_ context.Context, _ []byte) ([]byte, error) {
		return nil, fmt.Errorf("broken comparator")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = f.Call(ctx, 0, "boom", nil)
	assert.Error(err)
	assert.Contains(err.Error(), "broken comparator")
}

func TestRequestResponseRoundTrip(t *testing.T) {
	assert := require.New(t)

	req := &Request{Name: "coll_Put", Body: []byte{9, 9}}
	e := wire.NewEncoder()
	req.EncodeWire(e)
	var decoded Request
	assert.NoError(decoded.DecodeWire(wire.NewDecoder(e.Bytes())))
	assert.Equal(*req, decoded)

	resp := &Response{Body: []byte("result")}
	e = wire.NewEncoder()
	resp.EncodeWire(e)
	var decodedResp Response
	assert.NoError(decodedResp.DecodeWire(wire.NewDecoder(e.Bytes())))
	assert.Equal(*resp, decodedResp)
}
