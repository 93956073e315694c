package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/filetransfer"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/orchestrator"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/pion/webrtc/v4"
)

// call ties one room membership together: relay link, orchestrator, local
// media and the inbound file receiver.
type call struct {
	room   string
	cfg    *config.Config
	client *signaling.Client
	orch   *orchestrator.Orchestrator
	media  media.Capability
	source *media.FileSource
	logger *slog.Logger

	view *presenter

	// remote is the participant the receiver's state belongs to.
	remote   string
	receiver *filetransfer.Receiver
	incoming map[string]int

	playOnce sync.Once
}

func newCall(room string, flags *callFlags, view *presenter) (*call, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}

	capability, source, err := flags.openMedia()
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}

	api, err := peer.NewAPI()
	if err != nil {
		return nil, fmt.Errorf("create webrtc api: %w", err)
	}
	iceConfig := peer.NewConfiguration(cfg)

	client := signaling.NewClient(signaling.Options{
		URL:               cfg.RelayURL,
		Codec:             cfg.Codec,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		Logger:            logging.For("signaling"),
	})

	orch := orchestrator.New(orchestrator.Options{
		NewConnection: func() (peer.Connection, error) {
			return peer.NewPionConnection(api, iceConfig)
		},
		Signaler:    client,
		LocalTracks: capability.Tracks(),
		Logger:      logging.For("orchestrator"),
	})

	c := &call{
		room:     room,
		cfg:      cfg,
		client:   client,
		orch:     orch,
		media:    capability,
		source:   source,
		logger:   logging.For("call"),
		view:     view,
		incoming: make(map[string]int),
	}
	c.receiver = filetransfer.NewReceiver(c.onReceive, logging.For("receiver"))
	return c, nil
}

// connect dials the relay and joins the room.
func (c *call) connect(ctx context.Context) error {
	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	err := c.client.Connect(ctx)
	stopSpinner()
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}

	if err := c.client.JoinRoom(c.room); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	ui.RenderSessionInfo(ui.SessionInfo{
		RoomID:  c.room,
		LocalID: c.client.LocalID(),
		Relay:   c.cfg.RelayURL,
		Video:   c.trackLabel(webrtc.RTPCodecTypeVideo),
		Audio:   c.trackLabel(webrtc.RTPCodecTypeAudio),
	})
	return nil
}

func (c *call) trackLabel(kind webrtc.RTPCodecType) string {
	for _, t := range c.media.Tracks() {
		if t.Kind() == kind {
			return t.ID()
		}
	}
	return ""
}

// run routes orchestrator events until ctx is done, the relay is gone,
// handle asks to stop, or finished delivers.
func (c *call) run(ctx context.Context, handle func(orchestrator.Event) error, finished <-chan error) error {
	runErr := make(chan error, 1)
	go func() { runErr <- c.orch.Run(ctx, c.client.Events()) }()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-runErr:
			if err == nil {
				err = c.client.Err()
			}
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case err := <-finished:
			return err

		case ev := <-c.orch.Events():
			c.observe(ctx, ev)
			if handle == nil {
				continue
			}
			if err := handle(ev); err != nil {
				return err
			}
		}
	}
}

// observe reports what every call shows, whatever its command.
func (c *call) observe(ctx context.Context, ev orchestrator.Event) {
	switch e := ev.(type) {
	case orchestrator.Connected:
		if e.Reconnected {
			c.resetTransfers()
			c.view.status(ui.IconConnect, "Reconnected to relay as "+e.LocalID)
		}

	case orchestrator.Disconnected:
		c.view.status(ui.IconWarning, "Relay link lost, reconnecting...")

	case orchestrator.RelayError:
		c.view.status(ui.IconError, "Relay error: "+e.Message)

	case orchestrator.SessionStarted:
		c.resetTransfers()
		c.remote = e.RemoteID
		c.view.status(ui.IconPeer, fmt.Sprintf("Negotiating with %s (%s)", e.RemoteID, e.Role))

	case orchestrator.StateChanged:
		c.view.status(ui.IconCall, fmt.Sprintf("Call with %s: %s", e.RemoteID, e.State))
		if e.State == peer.StateConnected {
			c.startMedia(ctx)
		}

	case orchestrator.StreamUpdated:
		if e.Stream.Empty() {
			c.view.status(ui.IconInfo, "No media from "+e.RemoteID)
			return
		}
		c.view.status(ui.IconVideo, fmt.Sprintf("Receiving %d audio and %d video tracks from %s",
			e.Stream.Count(webrtc.RTPCodecTypeAudio), e.Stream.Count(webrtc.RTPCodecTypeVideo), e.RemoteID))

	case orchestrator.TransportChanged:
		if e.State == webrtc.PeerConnectionStateNew {
			return
		}
		icon := ui.IconConnect
		switch e.State {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			icon = ui.IconWarning
		}
		c.view.status(icon, fmt.Sprintf("Connection with %s: %s", e.RemoteID, e.State))

	case orchestrator.PeerLeft:
		if e.ID == c.remote {
			c.resetTransfers()
			c.remote = ""
		}
		c.view.status(ui.IconWaiting, e.ID+" left the room")

	case orchestrator.NegotiationFailed:
		c.logger.Warn("negotiation failed", "error", e.Err)
		c.view.status(ui.IconWarning, e.Err.Error())

	case orchestrator.DataReceived:
		if e.RemoteID == c.remote {
			c.receiver.Handle(e.Data, e.IsString)
		}
	}
}

// resetTransfers drops the inbound file of the session that just ended.
func (c *call) resetTransfers() {
	c.receiver.Reset()
	clear(c.incoming)
}

func (c *call) startMedia(ctx context.Context) {
	if c.source == nil {
		return
	}
	c.playOnce.Do(func() {
		go func() {
			if err := c.source.Play(ctx); err != nil {
				c.logger.Error("media playback stopped", "error", err)
			}
		}()
	})
}

func (c *call) onReceive(ev filetransfer.Event) {
	switch e := ev.(type) {
	case filetransfer.Started:
		c.incoming[e.Metadata.Name] = c.view.transfers(ui.ModeReceive).AddFile(e.Metadata.Name, e.Metadata.Size)

	case filetransfer.ReceiveProgress:
		if id, ok := c.incoming[e.Name]; ok {
			c.view.transfers(ui.ModeReceive).UpdateProgress(id, e.Received)
		}

	case filetransfer.Discarded:
		if id, ok := c.incoming[e.Name]; ok {
			c.view.transfers(ui.ModeReceive).MarkFailed(id, "transfer interrupted")
			delete(c.incoming, e.Name)
		}

	case filetransfer.Completed:
		id, ok := c.incoming[e.File.Name]
		delete(c.incoming, e.File.Name)

		path, err := filetransfer.Save(c.cfg.OutputDir, e.File)
		if err != nil {
			c.logger.Error("save received file", "file", e.File.Name, "error", err)
			if ok {
				c.view.transfers(ui.ModeReceive).MarkFailed(id, err.Error())
			}
			return
		}
		c.logger.Info("file received", "file", e.File.Name, "path", path)
		if ok {
			c.view.transfers(ui.ModeReceive).MarkComplete(id)
		}
	}
}

func (c *call) close() {
	c.orch.Close()
	c.client.Close()
	c.view.stop()
}
