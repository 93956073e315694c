package filetransfer

import (
	"bytes"
	"log/slog"
)

// Event is reported by a Receiver.
type Event interface {
	isEvent()
}

// Started is reported when a file-metadata message arrives.
type Started struct {
	Metadata Metadata
}

// ReceiveProgress follows every binary chunk of an announced file.
type ReceiveProgress struct {
	Name     string
	Received int64
	Total    int64
}

// Fraction is Received/Total, clamped to [0, 1].
func (p ReceiveProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	return min(float64(p.Received)/float64(p.Total), 1)
}

// Discarded is reported when new metadata replaces an unfinished file.
type Discarded struct {
	Name     string
	Received int64
}

// Completed carries a reassembled file.
type Completed struct {
	File File
}

// File is a received artifact with the metadata it was announced with.
type File struct {
	Name      string
	Size      int64
	MimeType  string
	Timestamp int64
	Data      []byte
}

func (Started) isEvent()         {}
func (ReceiveProgress) isEvent() {}
func (Discarded) isEvent()       {}
func (Completed) isEvent()       {}

// Receiver reassembles one inbound file at a time from data channel
// messages. It is not safe for concurrent use; feed it from the channel's
// message callback, which delivers in order.
type Receiver struct {
	emit   func(Event)
	logger *slog.Logger

	meta     *Metadata
	chunks   [][]byte
	received int64
}

func NewReceiver(emit func(Event), logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &Receiver{emit: emit, logger: logger}
}

// Handle consumes one data channel message. Malformed or unknown control
// messages are dropped.
func (r *Receiver) Handle(data []byte, isString bool) {
	if !isString {
		r.appendChunk(data)
		return
	}

	kind, meta, err := parseControl(data)
	if err != nil {
		r.logger.Debug("dropping control message", "error", err)
		return
	}

	switch kind {
	case MessageTypeFileMetadata:
		r.begin(meta)
	case MessageTypeFileEnd:
		r.finish()
	}
}

func (r *Receiver) begin(meta *Metadata) {
	if r.meta != nil {
		r.logger.Info("discarding unfinished file", "name", r.meta.Name, "received", r.received)
		r.emit(Discarded{Name: r.meta.Name, Received: r.received})
	}

	r.meta = meta
	r.chunks = nil
	r.received = 0
	r.emit(Started{Metadata: *meta})
}

// appendChunk buffers a chunk. Chunks are buffered even without metadata,
// but progress is only reported for an announced file.
// Reset drops whatever is buffered. A file that was announced but not
// finished is reported as Discarded.
func (r *Receiver) Reset() {
	if r.meta != nil {
		r.logger.Info("discarding unfinished file", "name", r.meta.Name, "received", r.received)
		r.emit(Discarded{Name: r.meta.Name, Received: r.received})
	}
	r.meta = nil
	r.chunks = nil
	r.received = 0
}

func (r *Receiver) appendChunk(data []byte) {
	r.chunks = append(r.chunks, bytes.Clone(data))
	r.received += int64(len(data))

	if r.meta == nil {
		return
	}
	r.emit(ReceiveProgress{Name: r.meta.Name, Received: r.received, Total: r.meta.Size})
}

func (r *Receiver) finish() {
	if r.meta == nil {
		r.logger.Debug("dropping file-end without metadata")
		return
	}

	file := File{
		Name:      r.meta.Name,
		Size:      r.meta.Size,
		MimeType:  r.meta.MimeType,
		Timestamp: r.meta.Timestamp,
		Data:      bytes.Join(r.chunks, nil),
	}
	if int64(len(file.Data)) != file.Size {
		r.logger.Warn("received size differs from announced size", "name", file.Name, "announced", file.Size, "received", len(file.Data))
	}

	r.meta = nil
	r.chunks = nil
	r.received = 0

	r.emit(Completed{File: file})
}
