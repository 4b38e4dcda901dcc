// Package app assembles the client runtime: transport session, dispatcher,
// store, presence, call manager, REST client, and the local archive, built
// from one Config and torn down in reverse order.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/campushub/realtime/internal/call"
	"github.com/campushub/realtime/internal/config"
	"github.com/campushub/realtime/internal/dispatch"
	"github.com/campushub/realtime/internal/history"
	"github.com/campushub/realtime/internal/presence"
	"github.com/campushub/realtime/internal/rest"
	"github.com/campushub/realtime/internal/store"
	"github.com/campushub/realtime/internal/transport"
	"github.com/campushub/realtime/internal/util"
)

// Client is the assembled realtime client.
type Client struct {
	cfg config.Config

	session  *transport.Session
	store    *store.Store
	tracker  *presence.Tracker
	notifier *presence.Notifier
	calls    *call.Manager
	rest     *rest.Client
	archive  *history.Archive

	dispatcher   *dispatch.Dispatcher
	cancelFrames func()
	done         chan struct{}
}

// New builds a client from cfg. Nothing connects until Start.
func New(cfg config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session, err := transport.New(transport.Config{
		BaseURL:        cfg.Server.BaseURL,
		UserID:         cfg.Identity.UserID,
		ReconnectDelay: time.Duration(cfg.Realtime.ReconnectSec) * time.Second,
		Path:           cfg.Server.SocketPath,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	archive, err := history.Open(cfg.Paths.DataDir)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		session: session,
		store:   store.New(cfg.Identity.UserID, cfg.Realtime.ScopeCap),
		tracker: presence.NewTracker(time.Duration(cfg.Realtime.TypingTTLSec) * time.Second),
		rest:    rest.New(cfg.Server.BaseURL, cfg.Identity.UserID),
		archive: archive,
		done:    make(chan struct{}),
	}
	c.notifier = presence.NewNotifier(session, time.Duration(cfg.Realtime.StopTypingDelaySec)*time.Second)
	c.calls = call.New(call.Config{
		Signaler:   session,
		SelfID:     cfg.Identity.UserID,
		SelfName:   cfg.Identity.DisplayName,
		NewLink:    call.Factory(cfg.Call.StunURLs),
		EndedDelay: time.Duration(cfg.Call.EndedDisplaySec) * time.Second,
	})
	c.dispatcher = dispatch.New(dispatch.Config{
		SelfID:   cfg.Identity.UserID,
		Store:    c.store,
		Presence: c.tracker,
		Calls:    c.calls,
		Overview: c.rest,
		Archive:  c.archive,
	})
	return c, nil
}

// Start connects the realtime channel and loads the initial overview. The
// overview fetch is best effort; the socket reconnect loop owns liveness.
func (c *Client) Start(ctx context.Context) error {
	frames, cancel := c.session.Subscribe()
	c.cancelFrames = cancel
	go func() {
		defer close(c.done)
		c.dispatcher.Run(frames)
	}()
	c.session.Start()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, util.DefaultFetchTimeout)
	defer fetchCancel()
	rows, err := c.rest.Overview(fetchCtx)
	if err != nil {
		log.Printf("APP: initial overview fetch failed: %v", err)
		return nil
	}
	c.store.SetSummaries(rows)
	log.Printf("APP: loaded %d conversations", len(rows))
	return nil
}

// Close tears the client down: call first (signals the peer while the socket
// may still be up), then typing, transport, and finally the archive.
func (c *Client) Close() {
	c.calls.Close()
	c.notifier.Close()
	c.tracker.Close()
	started := c.cancelFrames != nil
	if started {
		c.cancelFrames()
	}
	c.session.Close()
	if started {
		select {
		case <-c.done:
		case <-time.After(util.ShortTimeout):
			log.Printf("APP: dispatcher did not drain in time")
		}
	}
	if err := c.archive.Close(); err != nil {
		log.Printf("APP: archive close: %v", err)
	}
}

// ApplyTunables applies the live-reloadable settings from a changed config
// file. Identity, server, and storage changes take effect on restart only.
func (c *Client) ApplyTunables(next config.Config) {
	c.tracker.SetTTL(time.Duration(next.Realtime.TypingTTLSec) * time.Second)
	c.notifier.SetDelay(time.Duration(next.Realtime.StopTypingDelaySec) * time.Second)
	if next.Identity != c.cfg.Identity || next.Server != c.cfg.Server || next.Paths != c.cfg.Paths {
		log.Printf("APP: identity/server/storage changes need a restart")
	}
}

// Store exposes the message store for reads and event subscriptions.
func (c *Client) Store() *store.Store { return c.store }

// Presence exposes the presence/typing tracker.
func (c *Client) Presence() *presence.Tracker { return c.tracker }

// Calls exposes the call manager for state reads and event subscriptions.
func (c *Client) Calls() *call.Manager { return c.calls }

// Session exposes the transport session (status snapshots).
func (c *Client) Session() *transport.Session { return c.session }
