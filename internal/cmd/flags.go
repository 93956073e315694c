package cmd

import (
	"fmt"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"
)

// callFlags are shared by every command that joins a room.
type callFlags struct {
	relayURL   string
	stun       string
	turn       string
	turnUser   string
	turnPass   string
	forceRelay bool
	codec      string
	outputDir  string

	video     string
	audio     string
	noMedia   bool
	mute      bool
	hideVideo bool
}

func (f *callFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.relayURL, "relay-url", "", "Signaling relay websocket URL")
	flags.StringVarP(&f.stun, "stun", "s", "", "Custom STUN server")
	flags.StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	flags.StringVarP(&f.turnUser, "turn-user", "u", "", "TURN username")
	flags.StringVarP(&f.turnPass, "turn-pass", "p", "", "TURN password")
	flags.BoolVarP(&f.forceRelay, "force-relay", "r", false, "Only use TURN relayed candidates")
	flags.StringVar(&f.codec, "codec", "", "Signaling codec (json or msgpack)")
	flags.StringVarP(&f.outputDir, "dir", "d", "", "Directory for received files")
	flags.StringVar(&f.video, "video", "", "IVF file (VP8, VP9 or AV1) to stream as video")
	flags.StringVar(&f.audio, "audio", "", "Ogg/Opus file to stream as audio")
	flags.BoolVar(&f.noMedia, "no-media", false, "Join without local audio or video")
	flags.BoolVar(&f.mute, "mute", false, "Negotiate audio but start muted")
	flags.BoolVar(&f.hideVideo, "hide-video", false, "Negotiate video but start with it paused")
}

func (f *callFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		RelayURL:   f.relayURL,
		Codec:      f.codec,
		STUNServer: f.stun,
		TURNServer: f.turn,
		TURNUser:   f.turnUser,
		TURNPass:   f.turnPass,
		ForceRelay: f.forceRelay,
		OutputDir:  f.outputDir,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openMedia returns the local media for the call. The source is nil when
// there is nothing to play.
func (f *callFlags) openMedia() (media.Capability, *media.FileSource, error) {
	if f.noMedia || (f.video == "" && f.audio == "") {
		return media.None{}, nil, nil
	}
	source, err := media.Open(f.video, f.audio, logging.For("media"))
	if err != nil {
		return nil, nil, err
	}
	source.SetEnabled(webrtc.RTPCodecTypeAudio, !f.mute)
	source.SetEnabled(webrtc.RTPCodecTypeVideo, !f.hideVideo)
	return source, source, nil
}
