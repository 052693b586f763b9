package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/store"
)

const channel = "olympics_changes"

// encodeChange renders a change as "table|op|room_id".
func encodeChange(c store.Change) string {
	return string(c.Table) + "|" + string(c.Op) + "|" + c.RoomID
}

func decodeChange(payload string) (store.Change, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return store.Change{}, fmt.Errorf("malformed change payload %q", payload)
	}
	return store.Change{Table: store.Table(parts[0]), Op: store.Op(parts[1]), RoomID: parts[2]}, nil
}

type subKey struct {
	table  store.Table
	roomID string
}

type notifier struct {
	pool *pgxpool.Pool
	log  *zap.Logger

	mu   sync.Mutex
	subs map[subKey]map[int]func(store.Change)
	next int
}

func newNotifier(pool *pgxpool.Pool, log *zap.Logger) *notifier {
	return &notifier{
		pool: pool,
		log:  log,
		subs: make(map[subKey]map[int]func(store.Change)),
	}
}

func (n *notifier) subscribe(ctx context.Context, table store.Table, roomID string, fn func(store.Change)) func() {
	key := subKey{table: table, roomID: roomID}

	n.mu.Lock()
	n.next++
	id := n.next
	if n.subs[key] == nil {
		n.subs[key] = make(map[int]func(store.Change))
	}
	n.subs[key][id] = fn
	n.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[key], id)
			if len(n.subs[key]) == 0 {
				delete(n.subs, key)
			}
			n.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return cancel
}

func (n *notifier) dispatch(c store.Change) {
	n.mu.Lock()
	fns := make([]func(store.Change), 0, len(n.subs[subKey{c.Table, c.RoomID}]))
	for _, fn := range n.subs[subKey{c.Table, c.RoomID}] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	// Callbacks may block on a full lobby inbox; the LISTEN loop must not.
	for _, fn := range fns {
		go fn(c)
	}
}

// listen holds one pooled connection in LISTEN mode and reconnects with a
// fixed backoff until ctx ends.
func (n *notifier) listen(ctx context.Context) error {
	for {
		err := n.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		n.log.Warn("notification listener stopped, reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (n *notifier) listenOnce(ctx context.Context) error {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	n.log.Info("listening for changes", zap.String("channel", channel))

	for {
		msg, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wait: %w", err)
		}
		c, err := decodeChange(msg.Payload)
		if err != nil {
			n.log.Warn("dropping notification", zap.Error(err))
			continue
		}
		n.dispatch(c)
	}
}
