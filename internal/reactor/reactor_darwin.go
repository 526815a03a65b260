//go:build darwin

package reactor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// kqueuePoller adapts eventloop/poller_darwin.go's FastPoller: same
// kqueue/kevent shape and dynamic-growth registration slice, with poll()
// returning a batch of Completions instead of invoking an inline callback,
// and wake() implemented as a user-filter kevent (EVFILT_USER) rather than
// a self-pipe, since kqueue supports software-triggered events natively.
type kqueuePoller struct {
	kq       int
	eventBuf [256]unix.Kevent_t

	mu  sync.RWMutex
	fds []fdEntry

	closed atomic.Bool
}

type fdEntry struct {
	data   any
	events Event
	active bool
}

const wakeIdent = 0xC0FFEE

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	p := &kqueuePoller{kq: kq, fds: make([]fdEntry, 1024)}

	_, err = unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		unix.Close(kq)
		return nil, err
	}
	return p, nil
}

func (p *kqueuePoller) register(fd int, ev Event, data any) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if fd < 0 {
		return ErrNotRegistered
	}

	p.mu.Lock()
	if fd >= len(p.fds) {
		grown := make([]fdEntry, fd*2+1)
		copy(grown, p.fds)
		p.fds = grown
	}
	if p.fds[fd].active {
		p.mu.Unlock()
		return ErrAlreadyRegistered
	}
	p.fds[fd] = fdEntry{data: data, events: ev, active: true}
	p.mu.Unlock()

	kevs := eventToKevents(fd, ev, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevs) > 0 {
		if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
			p.mu.Lock()
			p.fds[fd] = fdEntry{}
			p.mu.Unlock()
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) modify(fd int, ev Event) error {
	if fd < 0 {
		return ErrNotRegistered
	}
	p.mu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.mu.Unlock()
		return ErrNotRegistered
	}
	old := p.fds[fd].events
	p.fds[fd].events = ev
	p.mu.Unlock()

	if removed := old &^ ev; removed != 0 {
		unix.Kevent(p.kq, eventToKevents(fd, removed, unix.EV_DELETE), nil, nil)
	}
	if added := ev &^ old; added != 0 {
		if _, err := unix.Kevent(p.kq, eventToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) unregister(fd int) error {
	if fd < 0 {
		return ErrNotRegistered
	}
	p.mu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.mu.Unlock()
		return ErrNotRegistered
	}
	ev := p.fds[fd].events
	p.fds[fd] = fdEntry{}
	p.mu.Unlock()

	unix.Kevent(p.kq, eventToKevents(fd, ev, unix.EV_DELETE), nil, nil)
	return nil
}

func (p *kqueuePoller) poll(timeoutMs int) ([]Completion, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMs / 1000), Nsec: int64((timeoutMs % 1000) * 1_000_000)}
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Completion, 0, n)
	for i := 0; i < n; i++ {
		kev := &p.eventBuf[i]
		if kev.Ident == wakeIdent {
			continue
		}
		fd := int(kev.Ident)
		p.mu.RLock()
		var e fdEntry
		if fd < len(p.fds) {
			e = p.fds[fd]
		}
		p.mu.RUnlock()
		if !e.active {
			continue
		}
		out = append(out, Completion{Data: e.data, Events: keventToEvent(kev)})
	}
	return out, nil
}

func (p *kqueuePoller) wake() error {
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return err
}

func (p *kqueuePoller) close() error {
	p.closed.Store(true)
	return unix.Close(p.kq)
}

func eventToKevents(fd int, ev Event, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if ev&Read != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if ev&Write != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func keventToEvent(kev *unix.Kevent_t) Event {
	var ev Event
	switch kev.Filter {
	case unix.EVFILT_READ:
		ev |= Read
	case unix.EVFILT_WRITE:
		ev |= Write
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		ev |= errorEvent
	}
	if kev.Flags&unix.EV_EOF != 0 {
		ev |= hangupEvent
	}
	return ev
}
