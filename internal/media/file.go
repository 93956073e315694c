package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"golang.org/x/sync/errgroup"
)

// oggPageDuration is the pacing for Opus pages.
const oggPageDuration = 20 * time.Millisecond

// FileSource plays an IVF video file and an Ogg/Opus audio file into local
// sample tracks. Either path may be empty.
type FileSource struct {
	videoPath string
	audioPath string

	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample

	switches *switches
	logger   *slog.Logger
}

// Open checks that the files can be read and creates their tracks. A file
// that exists but cannot be read yields ErrAccessDenied.
func Open(videoPath, audioPath string, logger *slog.Logger) (*FileSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileSource{
		videoPath: videoPath,
		audioPath: audioPath,
		switches:  newSwitches(),
		logger:    logger,
	}

	if videoPath != "" {
		mimeType, err := probeIVF(videoPath)
		if err != nil {
			return nil, err
		}
		s.video, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mimeType}, "video", StreamID)
		if err != nil {
			return nil, err
		}
	}

	if audioPath != "" {
		if err := probeOgg(audioPath); err != nil {
			return nil, err
		}
		var err error
		s.audio, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", StreamID)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *FileSource) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	return tracks
}

func (s *FileSource) SetEnabled(kind webrtc.RTPCodecType, enabled bool) {
	s.switches.set(kind, enabled)
}

func (s *FileSource) Enabled(kind webrtc.RTPCodecType) bool {
	return s.switches.get(kind)
}

// Play streams both files until they end or ctx is done.
func (s *FileSource) Play(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.video != nil {
		g.Go(func() error { return s.playVideo(ctx) })
	}
	if s.audio != nil {
		g.Go(func() error { return s.playAudio(ctx) })
	}
	return g.Wait()
}

func (s *FileSource) playVideo(ctx context.Context) error {
	file, err := openMedia(s.videoPath)
	if err != nil {
		return err
	}
	defer file.Close()

	ivf, header, err := ivfreader.NewWith(file)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupported, s.videoPath, err)
	}

	frameDuration := frameInterval(header)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			s.logger.Info("video file finished", "path", s.videoPath)
			return nil
		}
		if err != nil {
			return err
		}

		if s.Enabled(webrtc.RTPCodecTypeVideo) {
			if err := s.video.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *FileSource) playAudio(ctx context.Context) error {
	file, err := openMedia(s.audioPath)
	if err != nil {
		return err
	}
	defer file.Close()

	ogg, _, err := oggreader.NewWith(file)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupported, s.audioPath, err)
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			s.logger.Info("audio file finished", "path", s.audioPath)
			return nil
		}
		if err != nil {
			return err
		}

		// Opus always runs at 48 kHz.
		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(samples) * time.Second / 48000

		if s.Enabled(webrtc.RTPCodecTypeAudio) {
			if err := s.audio.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func openMedia(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrPermission) {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, path)
	}
	return file, err
}

// probeIVF reads the IVF header and maps its FourCC to a codec.
func probeIVF(path string) (string, error) {
	file, err := openMedia(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	_, header, err := ivfreader.NewWith(file)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnsupported, path, err)
	}

	switch header.FourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("%w: %s: codec %q", ErrUnsupported, path, header.FourCC)
}

func probeOgg(path string) error {
	file, err := openMedia(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, _, err := oggreader.NewWith(file); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupported, path, err)
	}
	return nil
}

func frameInterval(header *ivfreader.IVFFileHeader) time.Duration {
	if header.TimebaseDenominator == 0 || header.TimebaseNumerator == 0 {
		return time.Second / 30
	}
	return time.Duration(header.TimebaseNumerator) * time.Second / time.Duration(header.TimebaseDenominator)
}
