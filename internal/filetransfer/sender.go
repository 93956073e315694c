package filetransfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/BioHazard786/Warpcall/internal/files"
)

// Channel is the data channel a transfer runs on. *peer.Session satisfies
// it.
type Channel interface {
	Send(data []byte) error
	SendText(text string) error
}

// SendProgress is reported after every chunk.
type SendProgress struct {
	Name           string
	BytesSent      int64
	Total          int64
	ChunkIndex     int
	TotalChunks    int
	BytesPerSecond float64
}

// Fraction is BytesSent/Total, clamped to [0, 1]. Empty files are done.
func (p SendProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	return min(float64(p.BytesSent)/float64(p.Total), 1)
}

// Sender pushes files over a Channel without acknowledgments or flow
// control. The channel's buffered amount is never consulted.
type Sender struct {
	channel Channel
	logger  *slog.Logger
	now     func() time.Time
}

func NewSender(channel Channel, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{channel: channel, logger: logger, now: time.Now}
}

// SendFile sends a validated file from disk.
func (s *Sender) SendFile(ctx context.Context, info files.FileInfo, onProgress func(SendProgress)) error {
	f, err := os.Open(info.Path)
	if err != nil {
		return NewFileError("open", info.Name, err)
	}
	defer f.Close()

	return s.Send(ctx, NewMetadata(info.Name, info.Size, info.Type), f, onProgress)
}

// Send emits the metadata, the content of r in chunks of at most ChunkSize,
// and the end marker. Any failed send aborts the transfer for good.
func (s *Sender) Send(ctx context.Context, meta Metadata, r io.Reader, onProgress func(SendProgress)) error {
	meta.Type = MessageTypeFileMetadata

	text, err := encodeMetadata(meta)
	if err != nil {
		return NewFileError("encode metadata", meta.Name, err)
	}
	if err := s.channel.SendText(text); err != nil {
		return NewFileError("send metadata", meta.Name, wrapCause(ErrControlSend, err))
	}

	s.logger.Debug("sending file", "name", meta.Name, "size", meta.Size, "mime", meta.MimeType)

	// Never send more than was announced, even if the source grew.
	r = io.LimitReader(r, meta.Size)

	start := s.now()
	buf := make([]byte, ChunkSize)
	progress := SendProgress{Name: meta.Name, Total: meta.Size, TotalChunks: ChunkCount(meta.Size)}

	for {
		if err := ctx.Err(); err != nil {
			return NewFileError("send", meta.Name, wrapCause(ErrTransferAborted, err))
		}

		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if err := s.channel.Send(buf[:n]); err != nil {
				s.logger.Warn("chunk send failed", "name", meta.Name, "chunk", progress.ChunkIndex+1, "error", err)
				return NewFileError("send chunk", meta.Name, wrapCause(ErrChunkSend, err))
			}

			progress.BytesSent += int64(n)
			progress.ChunkIndex++
			if elapsed := s.now().Sub(start).Seconds(); elapsed > 0 {
				progress.BytesPerSecond = float64(progress.BytesSent) / elapsed
			}
			if onProgress != nil {
				onProgress(progress)
			}

			runtime.Gosched()
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return NewFileError("read", meta.Name, readErr)
		}
	}

	if err := s.channel.SendText(encodeEnd()); err != nil {
		return NewFileError("send end", meta.Name, wrapCause(ErrControlSend, err))
	}

	s.logger.Debug("file sent", "name", meta.Name, "chunks", progress.ChunkIndex, "bytes", progress.BytesSent)
	return nil
}
