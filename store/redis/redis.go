// Package redis shares settings between processes through Redis. Commits run as
// one MULTI/EXEC transaction that also PUBLISHes every changed key, and each
// Store listens on the same channel, so a write from any replica reaches the
// subscribers of every other replica (and its own, asynchronously).
package redis

import (
	"context"
	"errors"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/prefs/store"
)

var ErrNilClient = errors.New("redis store: nil client")

const defaultChannel = "prefs:changes"

type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	channel     string
	closeClient bool

	watchers store.Watchers

	ps        *goredis.PubSub
	stop      context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ store.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // prepended to every key, e.g. "app:prod:"
	Channel     string // change channel; "" => "prefs:changes"
	CloseClient bool   // set true only if this store exclusively owns the client
}

// New subscribes to the change channel and waits for Redis to confirm the
// subscription, so no commit made after New returns can be missed.
func New(ctx context.Context, cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ch := cfg.Channel
	if ch == "" {
		ch = defaultChannel
	}
	r := &Redis{
		rdb:         cfg.Client,
		prefix:      cfg.Prefix,
		channel:     ch,
		closeClient: cfg.CloseClient,
	}

	ps := r.rdb.Subscribe(ctx, ch)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	r.ps = ps

	loopCtx, cancel := context.WithCancel(context.Background())
	r.stop = cancel
	r.wg.Add(1)
	go r.listen(loopCtx)
	return r, nil
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

// Commit writes muts and publishes their keys in a single MULTI/EXEC.
func (r *Redis) Commit(ctx context.Context, muts []store.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, m := range muts {
			if m.Delete {
				p.Del(ctx, r.key(m.Key))
			} else {
				p.Set(ctx, r.key(m.Key), m.Value, 0)
			}
		}
		for _, k := range store.ChangedKeys(muts) {
			p.Publish(ctx, r.channel, r.key(k))
		}
		return nil
	})
	return err
}

func (r *Redis) Subscribe(fn func(key string)) func() { return r.watchers.Add(fn) }

// listen forwards published keys to watchers. go-redis reconnects and
// resubscribes on its own; the channel only closes with the PubSub.
func (r *Redis) listen(ctx context.Context) {
	defer r.wg.Done()
	ch := r.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			k, ok := strings.CutPrefix(msg.Payload, r.prefix)
			if !ok {
				// another app sharing the channel
				continue
			}
			r.watchers.Notify(k)
		}
	}
}

// Close stops the listener and releases the client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.stop()
		if r.ps != nil {
			_ = r.ps.Close()
		}
		r.wg.Wait()
		if r.closeClient {
			if cerr := r.rdb.Close(); cerr != nil && !errors.Is(cerr, goredis.ErrClosed) {
				err = cerr
			}
		}
	})
	return err
}
