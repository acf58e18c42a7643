// Package bridge connects to a local wallet-provider bridge over websocket
// and adapts its status events to the wallet.ConnectionSource contract.
package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/michigantokenizers/skl-client/wallet"
)

const writeTimeout = 3 * time.Second

// statusEvent is the wire format the bridge endpoint emits.
type statusEvent struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	AccountID string `json:"accountId"`
}

// request is the wire format for messages sent to the bridge endpoint.
type request struct {
	Type string `json:"type"`
}

var _ wallet.ConnectionSource = (*Bridge)(nil)

// Bridge is a websocket-backed wallet connection source. The read loop runs
// until the connection closes; a clean close is delivered to observers as a
// final disconnected snapshot.
type Bridge struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu        sync.Mutex
	callbacks []func(wallet.Snapshot)
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to the bridge endpoint and starts consuming status events.
func Dial(ctx context.Context, url string, logger zerolog.Logger) (*Bridge, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[bridge.Dial] connect to wallet bridge")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		conn:   conn,
		log:    logger,
		ctx:    loopCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *Bridge) OnStatusChange(cb func(wallet.Snapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, cb)
}

// Disconnect asks the provider to drop the wallet connection. The resulting
// disconnected event comes back through the read loop.
func (b *Bridge) Disconnect(ctx context.Context) error {
	payload, err := json.Marshal(request{Type: "disconnect"})
	if err != nil {
		return errors.Wrap(err, "[Bridge.Disconnect] encode request")
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := b.conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return errors.Wrap(err, "[Bridge.Disconnect] write request")
	}
	return nil
}

// Close tears down the websocket connection. Observers receive a final
// disconnected snapshot.
func (b *Bridge) Close() error {
	b.cancel()
	err := b.conn.Close(websocket.StatusNormalClosure, "bye")
	<-b.done
	if err != nil && websocket.CloseStatus(err) == -1 {
		return errors.Wrap(err, "[Bridge.Close]")
	}
	return nil
}

func (b *Bridge) readLoop() {
	defer close(b.done)
	// Whatever ends the loop, observers must learn the wallet is gone.
	defer b.dispatch(wallet.Snapshot{})

	for {
		_, data, err := b.conn.Read(b.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				b.log.Debug().Msg("wallet bridge closed")
			default:
				if b.ctx.Err() == nil {
					b.log.Warn().Err(err).Msg("wallet bridge read failed")
				}
			}
			return
		}

		var ev statusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			b.log.Warn().Err(err).Msg("wallet bridge sent bad json")
			continue
		}
		if ev.Type != "status" {
			continue
		}

		snap := wallet.Snapshot{Connected: ev.Connected}
		if ev.Connected {
			snap.AccountID = ev.AccountID
		}
		b.dispatch(snap)
	}
}

func (b *Bridge) dispatch(snap wallet.Snapshot) {
	b.mu.Lock()
	if !snap.Connected {
		if b.closed {
			b.mu.Unlock()
			return
		}
		b.closed = true
	} else {
		b.closed = false
	}
	cbs := make([]func(wallet.Snapshot), len(b.callbacks))
	copy(cbs, b.callbacks)
	b.mu.Unlock()

	for _, cb := range cbs {
		cb(snap)
	}
}
