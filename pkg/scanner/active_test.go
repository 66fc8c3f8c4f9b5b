package scanner

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPortsFindsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s := NewPortScanner(500*time.Millisecond, 10)
	open := s.ScanPorts(context.Background(), "127.0.0.1", []int{port})
	assert.Equal(t, []int{port}, open)
}

func TestScanPortsClosedPort(t *testing.T) {
	// Grab a port and release it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	s := NewPortScanner(300*time.Millisecond, 10)
	open := s.ScanPorts(context.Background(), "127.0.0.1", []int{port})
	assert.Empty(t, open)
}

func TestScanPortsSortedDeduplicated(t *testing.T) {
	listen := func() (int, func()) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				conn.Close()
			}
		}()
		_, portStr, _ := net.SplitHostPort(ln.Addr().String())
		p, _ := strconv.Atoi(portStr)
		return p, func() { ln.Close() }
	}

	p1, stop1 := listen()
	defer stop1()
	p2, stop2 := listen()
	defer stop2()

	s := NewPortScanner(500*time.Millisecond, 5)
	open := s.ScanPorts(context.Background(), "127.0.0.1", []int{p2, p1, p2, p1})

	want := []int{p1, p2}
	if p2 < p1 {
		want = []int{p2, p1}
	}
	assert.Equal(t, want, open)
}

func TestScanPortsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewPortScanner(200*time.Millisecond, 5)
	open := s.ScanPorts(ctx, "127.0.0.1", []int{1, 2, 3})
	assert.Empty(t, open)
}

func TestScanPortsDefaultsApplied(t *testing.T) {
	s := NewPortScanner(0, 0)
	assert.Equal(t, defaultPortTimeout, s.Timeout)
	assert.Equal(t, defaultPortWorkers, s.Workers)
}

func TestDefaultPortsCoverClassificationSignals(t *testing.T) {
	want := []int{22, 80, 443, 3389, 445, 161, 9100, 554, 1883, 548, 631, 1900, 5353, 8008, 62078}
	set := map[int]struct{}{}
	for _, p := range DefaultPorts {
		set[p] = struct{}{}
	}
	for _, p := range want {
		_, ok := set[p]
		assert.True(t, ok, "port %d missing from default list", p)
	}
}
