package cmd

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/BioHazard786/Warpcall/internal/filetransfer"
	"github.com/BioHazard786/Warpcall/internal/orchestrator"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	notesMetadata = `{"type":"file-metadata","name":"notes.txt","size":10,"mimeType":"text/plain","timestamp":1}`
	fileEnd       = `{"type":"file-end"}`
)

// testContext stands in for t.Context (Go 1.24+): a context canceled when
// the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// receiverCall builds a call whose receiver reports into events instead of
// the transfer view.
func receiverCall(events *[]filetransfer.Event) *call {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &call{
		view:     newPresenter(func() {}),
		logger:   logger,
		incoming: make(map[string]int),
	}
	c.receiver = filetransfer.NewReceiver(func(ev filetransfer.Event) {
		*events = append(*events, ev)
	}, logger)
	return c
}

func discarded(events []filetransfer.Event) []filetransfer.Discarded {
	var out []filetransfer.Discarded
	for _, ev := range events {
		if d, ok := ev.(filetransfer.Discarded); ok {
			out = append(out, d)
		}
	}
	return out
}

func completed(events []filetransfer.Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(filetransfer.Completed); ok {
			n++
		}
	}
	return n
}

func TestPartialFileDroppedWhenPeerLeaves(t *testing.T) {
	var events []filetransfer.Event
	c := receiverCall(&events)

	c.observe(testContext(t), orchestrator.SessionStarted{RemoteID: "bob", Role: peer.Responder})
	c.observe(testContext(t), orchestrator.DataReceived{RemoteID: "bob", Data: []byte(notesMetadata), IsString: true})
	c.observe(testContext(t), orchestrator.DataReceived{RemoteID: "bob", Data: []byte("hello")})
	c.observe(testContext(t), orchestrator.PeerLeft{ID: "bob"})

	require.Len(t, discarded(events), 1)
	assert.Equal(t, filetransfer.Discarded{Name: "notes.txt", Received: 5}, discarded(events)[0])

	// A late end marker cannot complete the departed peer's file.
	c.observe(testContext(t), orchestrator.DataReceived{RemoteID: "bob", Data: []byte(fileEnd), IsString: true})
	assert.Zero(t, completed(events))
}

func TestPartialFileDroppedWhenSessionReplaced(t *testing.T) {
	var events []filetransfer.Event
	c := receiverCall(&events)

	c.observe(testContext(t), orchestrator.SessionStarted{RemoteID: "bob", Role: peer.Responder})
	c.observe(testContext(t), orchestrator.DataReceived{RemoteID: "bob", Data: []byte(notesMetadata), IsString: true})
	c.observe(testContext(t), orchestrator.DataReceived{RemoteID: "bob", Data: []byte("hel")})

	c.observe(testContext(t), orchestrator.SessionStarted{RemoteID: "carol", Role: peer.Responder})
	require.Len(t, discarded(events), 1)

	c.observe(testContext(t), orchestrator.DataReceived{RemoteID: "carol", Data: []byte(fileEnd), IsString: true})
	assert.Zero(t, completed(events))
}

func TestPeerLeftForOtherRemoteKeepsTransfer(t *testing.T) {
	var events []filetransfer.Event
	c := receiverCall(&events)

	c.observe(testContext(t), orchestrator.SessionStarted{RemoteID: "bob", Role: peer.Responder})
	c.observe(testContext(t), orchestrator.DataReceived{RemoteID: "bob", Data: []byte(notesMetadata), IsString: true})
	c.observe(testContext(t), orchestrator.PeerLeft{ID: "carol"})

	assert.Empty(t, discarded(events))
}
