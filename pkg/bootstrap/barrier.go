package bootstrap

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// tcpBarrier is a generation-counted collective barrier with rank 0 as the
// coordinator. Every round, ranks 1..size-1 connect, send the generation
// number and block until the coordinator has seen all of them and writes the
// release. Barrier is not safe for concurrent use within one participant;
// collective calls are issued from a single goroutine per rank.
type tcpBarrier struct {
	rank     int
	size     int
	endpoint string
	ln       net.Listener
	gen      uint64
}

func newTCPBarrier(rank, size int, endpoint string) (*tcpBarrier, error) {
	b := &tcpBarrier{rank: rank, size: size, endpoint: endpoint}
	if rank == 0 && size > 1 {
		_, port, err := net.SplitHostPort(endpoint)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: barrier endpoint %q: %w", endpoint, err)
		}
		ln, err := net.Listen("tcp", ":"+port)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: barrier listen: %w", err)
		}
		b.ln = ln
	}
	return b, nil
}

func (b *tcpBarrier) Await(ctx context.Context) error {
	b.gen++
	if b.size == 1 {
		return nil
	}
	if b.rank == 0 {
		return b.coordinate(ctx)
	}
	return b.enter(ctx)
}

// coordinate collects one connection per peer rank, then releases them all.
func (b *tcpBarrier) coordinate(ctx context.Context) error {
	tcpLn := b.ln.(*net.TCPListener)
	conns := make([]net.Conn, 0, b.size-1)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for len(conns) < b.size-1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		tcpLn.SetDeadline(time.Now().Add(200 * time.Millisecond))
		conn, err := tcpLn.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("bootstrap: barrier accept: %w", err)
		}
		gen, err := readGen(conn)
		if err != nil {
			conn.Close()
			return err
		}
		if gen != b.gen {
			conn.Close()
			return fmt.Errorf("bootstrap: barrier generation mismatch: peer %d, local %d", gen, b.gen)
		}
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		if err := writeGen(conn, b.gen); err != nil {
			return err
		}
	}
	return nil
}

// enter connects to the coordinator, retrying while it is still coming up,
// and blocks until the release arrives.
func (b *tcpBarrier) enter(ctx context.Context) error {
	var conn net.Conn
	for {
		var err error
		conn, err = net.DialTimeout("tcp", b.endpoint, time.Second)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := writeGen(conn, b.gen); err != nil {
		return err
	}
	gen, err := readGen(conn)
	if err != nil {
		return err
	}
	if gen != b.gen {
		return fmt.Errorf("bootstrap: barrier generation mismatch: coordinator %d, local %d", gen, b.gen)
	}
	return nil
}

func (b *tcpBarrier) Close() {
	if b.ln != nil {
		b.ln.Close()
	}
}

func readGen(conn net.Conn) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return 0, fmt.Errorf("bootstrap: barrier read: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func writeGen(conn net.Conn, gen uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], gen)
	if _, err := conn.Write(buf[:]); err != nil {
		return fmt.Errorf("bootstrap: barrier write: %w", err)
	}
	return nil
}
