//go:build linux || darwin

package coroutine

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"

	"github.com/hwj0017/coroutine/internal/reactor"
)

func resolveSockaddr(address string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, 0, err
	}
	port, err := net.LookupPort("tcp", portStr)
	if err != nil {
		return nil, 0, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, 0, err
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			sa := &unix.SockaddrInet4{Port: port}
			copy(sa.Addr[:], ip4)
			return sa, unix.AF_INET, nil
		}
	}
	for _, ip := range ips {
		if ip16 := ip.To16(); ip16 != nil {
			sa := &unix.SockaddrInet6{Port: port}
			copy(sa.Addr[:], ip16)
			return sa, unix.AF_INET6, nil
		}
	}
	return nil, 0, errors.New("coroutine: no usable address for " + address)
}

// Connect opens a non-blocking TCP connection to address, suspending the
// calling task until the connection completes (or fails), per spec.md
// §4.3's connect operation.
func Connect(sched *Scheduler, network, address string) (*Conn, error) {
	if sched.reactor == nil {
		return nil, ErrIOUnsupported
	}
	sa, family, err := resolveSockaddr(address)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	c := &Conn{fd: fd, r: sched.reactor}
	err = unix.Connect(fd, sa)
	if err == nil {
		return c, nil
	}
	if err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, err
	}
	if werr := waitFor(c.r, fd, reactor.Write); werr != nil {
		unix.Close(fd)
		return nil, werr
	}
	if serr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr == nil && serr != 0 {
		unix.Close(fd)
		return nil, unix.Errno(serr)
	}
	return c, nil
}

// Listen opens a non-blocking TCP listening socket bound to address.
func Listen(sched *Scheduler, network, address string) (*Listener, error) {
	if sched.reactor == nil {
		return nil, ErrIOUnsupported
	}
	sa, family, err := resolveSockaddr(address)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Listener{fd: fd, r: sched.reactor}, nil
}

// Accept blocks the calling task until an inbound connection arrives, per
// spec.md §4.3's accept operation.
func (l *Listener) Accept() (*Conn, error) {
	for {
		nfd, _, err := unix.Accept(l.fd)
		if err == nil {
			_ = unix.SetNonblock(nfd, true)
			return &Conn{fd: nfd, r: l.r}, nil
		}
		if err == unix.EAGAIN {
			if werr := waitFor(l.r, l.fd, reactor.Read); werr != nil {
				return nil, werr
			}
			continue
		}
		return nil, err
	}
}

// Close releases the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// Read suspends the calling task until fd is readable, then performs a
// single non-blocking read, per spec.md §4.3's read operation.
func (c *Conn) Read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, buf)
		if err == nil {
			return n, nil
		}
		if err == unix.EAGAIN {
			if werr := waitFor(c.r, c.fd, reactor.Read); werr != nil {
				return 0, werr
			}
			continue
		}
		return 0, err
	}
}

// Write suspends the calling task as needed until all of buf has been
// written, per spec.md §4.3's write operation.
func (c *Conn) Write(buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := unix.Write(c.fd, buf[written:])
		if err == nil {
			written += n
			continue
		}
		if err == unix.EAGAIN {
			if werr := waitFor(c.r, c.fd, reactor.Write); werr != nil {
				return written, werr
			}
			continue
		}
		return written, err
	}
	return written, nil
}

// Close releases the connection's socket.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}
