//go:build linux

// Command fiberecho is a minimal echo server demonstrating the public
// surface end to end: start the loop, spawn an accept fiber, spawn one
// echo fiber per accepted connection, shut down on SIGINT/SIGTERM.
package main

import (
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"fiberio"
	"fiberio/pkg/rtlog"
)

func main() {
	addr := flag.String("addr", ":9000", "address to listen on")
	workers := flag.Int("workers", 0, "worker count (0 = number of CPUs)")
	flag.Parse()

	var opts []fiberio.Option
	if *workers > 0 {
		opts = append(opts, fiberio.WithWorkers(*workers))
	}

	rt, err := fiberio.StartLoop(opts...)
	if err != nil {
		rtlog.L().Fatal().Err(err).Msg("failed to start loop")
	}

	lfd, sa, err := listenTCP(*addr)
	if err != nil {
		rtlog.L().Fatal().Err(err).Msg("failed to bind listener")
	}
	rtlog.L().Info().Interface("addr", sa).Msg("fiberecho listening")

	rt.Spawn(func(f *fiberio.Fiber) {
		acceptLoop(rt, f, lfd)
	})

	go func() {
		for {
			time.Sleep(30 * time.Second)
			rtlog.L().Info().Interface("stats", rt.Stats()).Msg("periodic stats")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	<-sigCh

	// Close through the runtime so the parked accept fiber is woken and
	// sees EBADF. StopLoop returns once every echo connection has closed.
	rt.Spawn(func(f *fiberio.Fiber) { _, _ = f.Close(rt, lfd) })
	if err := rt.StopLoop(); err != nil {
		rtlog.L().Error().Err(err).Msg("stop loop")
	}
}

func acceptLoop(rt *fiberio.Runtime, f *fiberio.Fiber, lfd int) {
	for {
		cfd, _, err := f.Accept(rt, lfd)
		if err != nil {
			if err == unix.EBADF {
				return
			}
			rtlog.L().Warn().Err(err).Msg("accept failed")
			continue
		}
		rt.Spawn(func(ef *fiberio.Fiber) {
			echoLoop(rt, ef, cfd)
		})
	}
}

func echoLoop(rt *fiberio.Runtime, f *fiberio.Fiber, cfd int) {
	defer func() { _, _ = f.Close(rt, cfd) }()

	buf := make([]byte, 4096)
	for {
		n, err := f.Read(rt, cfd, buf)
		if err != nil || n == 0 {
			return
		}
		if _, err := f.Write(rt, cfd, buf[:n]); err != nil {
			return
		}
	}
}

func listenTCP(addr string) (int, unix.Sockaddr, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return -1, nil, err
	}

	sa, err := parseAddr(addr)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		return -1, nil, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		return -1, nil, err
	}
	return fd, sa, nil
}

// parseAddr accepts the ":port" shape used by the flag default; a real CLI
// would use net.ResolveTCPAddr, but this binary stays on raw unix sockaddrs
// throughout to exercise the same syscalls the interceptor wraps.
func parseAddr(addr string) (*unix.SockaddrInet4, error) {
	port := 9000
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			p, err := strconv.Atoi(addr[i+1:])
			if err != nil {
				return nil, unix.EINVAL
			}
			port = p
			break
		}
	}
	sa := &unix.SockaddrInet4{Port: port}
	return sa, nil
}
