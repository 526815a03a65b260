package coroutine

import (
	"context"
	"time"

	"github.com/joeycumines/go-longpoll"
)

// BridgeChannel is a supplemental, non-core helper (SPEC_FULL.md's Domain
// Stack: "upper layers... inject external events without spinning their
// own polling goroutine per source"). It adapts an existing native Go
// channel into a sequence of spawned tasks, one burst of values at a time,
// using github.com/joeycumines/go-longpoll's bounded/partial-timeout batch
// semantics to decide how many buffered values to drain before handing the
// batch to handler.
//
// BridgeChannel blocks until ctx is cancelled or ch is closed and fully
// drained, at which point it returns. It is meant to be run from its own
// goroutine, not from inside a task.
func BridgeChannel[T any](ctx context.Context, sched *Scheduler, cfg *longpoll.ChannelConfig, ch <-chan T, handler func(batch []T)) error {
	for {
		var batch []T
		err := longpoll.Channel(ctx, cfg, ch, func(v T) error {
			batch = append(batch, v)
			return nil
		})
		if len(batch) > 0 {
			Spawn(sched, func() struct{} {
				handler(batch)
				return struct{}{}
			})
		}
		if err != nil {
			return err
		}
	}
}

// defaultBridgeConfig matches longpoll's own documented defaults, stated
// explicitly here so callers can see the bridge's batching behavior
// without reading go-longpoll's source.
var defaultBridgeConfig = &longpoll.ChannelConfig{
	MaxSize:        16,
	MinSize:        4,
	PartialTimeout: 50 * time.Millisecond,
}
