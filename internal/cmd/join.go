package cmd

import (
	"context"

	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/spf13/cobra"
)

var joinFlags callFlags

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a room and stay in the call",
	Long: `Join a room, negotiate a call with the other participant and keep it up
until interrupted. Files sent by the other side are saved to --dir.

Examples:
  warpcall join standup
  warpcall join standup --video cam.ivf --audio mic.ogg
  warpcall join standup --no-media --dir ./downloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0])
	},
}

func joinRoom(ctx context.Context, room string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := newPresenter(cancel)
	c, err := newCall(room, &joinFlags, view)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.connect(ctx); err != nil {
		return err
	}
	view.status(ui.IconWaiting, "Waiting for participants, press Ctrl+C to leave")

	return c.run(ctx, nil, nil)
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinFlags.register(joinCmd)
}
