package media

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeIVF writes a minimal IVF file with the given FourCC and frames.
func writeIVF(t *testing.T, fourCC string, frames ...[]byte) string {
	t.Helper()
	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:12], fourCC)
	binary.LittleEndian.PutUint16(header[12:], 64)
	binary.LittleEndian.PutUint16(header[14:], 48)
	binary.LittleEndian.PutUint32(header[16:], 1000)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(len(frames)))

	data := header
	for i, frame := range frames {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		data = append(data, fh...)
		data = append(data, frame...)
	}

	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenVideoCodecs(t *testing.T) {
	cases := map[string]string{
		"VP80": webrtc.MimeTypeVP8,
		"VP90": webrtc.MimeTypeVP9,
		"AV01": webrtc.MimeTypeAV1,
	}
	for fourCC, mimeType := range cases {
		t.Run(fourCC, func(t *testing.T) {
			src, err := Open(writeIVF(t, fourCC), "", quietLogger())
			require.NoError(t, err)

			tracks := src.Tracks()
			require.Len(t, tracks, 1)
			assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[0].Kind())
			assert.Equal(t, StreamID, tracks[0].StreamID())
			assert.Equal(t, mimeType, tracks[0].(*webrtc.TrackLocalStaticSample).Codec().MimeType)
		})
	}
}

func TestOpenRejectsUnknownCodec(t *testing.T) {
	_, err := Open(writeIVF(t, "H264"), "", quietLogger())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ivf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an ivf file, just some text"), 0o644))

	_, err := Open(path, "", quietLogger())
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Open("", path, quietLogger())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.ivf"), "", quietLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file modes")
	}
	path := writeIVF(t, "VP80")
	require.NoError(t, os.Chmod(path, 0))

	_, err := Open(path, "", quietLogger())
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestPlayStopsAtEOF(t *testing.T) {
	src, err := Open(writeIVF(t, "VP80", []byte{1, 2, 3}, []byte{4, 5}), "", quietLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- src.Play(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("playback did not finish")
	}
}

func TestPlayStopsOnCancel(t *testing.T) {
	frames := make([][]byte, 500)
	for i := range frames {
		frames[i] = []byte{byte(i)}
	}
	src, err := Open(writeIVF(t, "VP80", frames...), "", quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, src.Play(ctx))
}

func TestEnableSwitches(t *testing.T) {
	src, err := Open(writeIVF(t, "VP80"), "", quietLogger())
	require.NoError(t, err)

	assert.True(t, src.Enabled(webrtc.RTPCodecTypeVideo))
	assert.True(t, src.Enabled(webrtc.RTPCodecTypeAudio))

	src.SetEnabled(webrtc.RTPCodecTypeVideo, false)
	assert.False(t, src.Enabled(webrtc.RTPCodecTypeVideo))
	assert.True(t, src.Enabled(webrtc.RTPCodecTypeAudio))
}

func TestNone(t *testing.T) {
	var c Capability = None{}
	assert.Empty(t, c.Tracks())
	c.SetEnabled(webrtc.RTPCodecTypeAudio, true)
	assert.False(t, c.Enabled(webrtc.RTPCodecTypeAudio))
}
