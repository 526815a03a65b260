//go:build !linux && !darwin

package coroutine

// Connect, Listen, and the fd-backed Conn/Listener methods are unsupported
// on this platform: internal/reactor falls back to reactor_other.go's
// fallbackPoller, which rejects every fd registration. Channel, Mutex,
// Delay, and Yield remain fully functional.

func Connect(sched *Scheduler, network, address string) (*Conn, error) {
	return nil, ErrIOUnsupported
}

func Listen(sched *Scheduler, network, address string) (*Listener, error) {
	return nil, ErrIOUnsupported
}

func (l *Listener) Accept() (*Conn, error) { return nil, ErrIOUnsupported }

func (l *Listener) Close() error { return nil }

func (c *Conn) Read(buf []byte) (int, error) { return 0, ErrIOUnsupported }

func (c *Conn) Write(buf []byte) (int, error) { return 0, ErrIOUnsupported }

func (c *Conn) Close() error { return nil }
