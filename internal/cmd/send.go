package cmd

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/Warpcall/internal/filetransfer"
	"github.com/BioHazard786/Warpcall/internal/files"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/orchestrator"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/BioHazard786/Warpcall/internal/utils"
	"github.com/spf13/cobra"
)

const (
	drainPoll    = 50 * time.Millisecond
	drainTimeout = 30 * time.Second
)

var sendFlags callFlags

var sendCmd = &cobra.Command{
	Use:     "send <room> <files...>",
	Aliases: []string{"s"},
	Short:   "Join a room and send files to the other participant",
	Long: `Join a room like join does. As soon as the data channel to the other
participant opens, every file is sent in order and the command exits.

Examples:
  warpcall send standup notes.txt slides.pdf
  warpcall send standup --no-media --relay-url wss://relay.example.com/ws report.pdf`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFiles(cmd.Context(), args[0], args[1:])
	},
}

func sendFiles(ctx context.Context, room string, paths []string) error {
	fileInfos, err := files.ValidateFiles(paths)
	if err != nil {
		return err
	}
	displayFileTable(fileInfos)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := newPresenter(cancel)
	c, err := newCall(room, &sendFlags, view)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.connect(ctx); err != nil {
		return err
	}
	view.status(ui.IconWaiting, "Waiting for a participant to send to...")

	var (
		started   bool
		completed atomic.Bool
		startTime time.Time
	)
	finished := make(chan error, 1)

	handle := func(ev orchestrator.Event) error {
		opened, ok := ev.(orchestrator.ChannelOpened)
		if !ok || started {
			return nil
		}
		started = true
		startTime = time.Now()

		tui := view.transfers(ui.ModeSend)
		ids := make([]int, len(fileInfos))
		for i, f := range fileInfos {
			ids[i] = tui.AddFile(f.Name, f.Size)
		}
		tui.SetState("Sending to " + opened.RemoteID)

		go func() {
			err := sendAll(ctx, c.orch, tui, fileInfos, ids)
			if err == nil {
				err = waitDrained(ctx, c.orch)
			}
			if err == nil {
				completed.Store(true)
			}
			finished <- err
		}()
		return nil
	}

	if err := c.run(ctx, handle, finished); err != nil {
		return err
	}
	if !completed.Load() {
		return nil
	}

	view.stop()
	elapsed := time.Since(startTime)
	total := files.GetTotalSize(fileInfos)
	fmt.Println()
	ui.RenderTransferSummary("📊 Transfer Summary", ui.TransferSummary{
		Status:    ui.IconSuccess + " Complete",
		Files:     len(fileInfos),
		TotalSize: utils.FormatSize(total),
		Duration:  utils.FormatTimeDuration(elapsed),
		Speed:     utils.FormatSpeed(float64(total) / max(elapsed.Seconds(), 0.001)),
	})
	return nil
}

// sendAll sends every file in order and stops at the first failure.
func sendAll(ctx context.Context, channel filetransfer.Channel, tui *ui.TransferUI, fileInfos []files.FileInfo, ids []int) error {
	sender := filetransfer.NewSender(channel, logging.For("sender"))
	for i, info := range fileInfos {
		err := sender.SendFile(ctx, info, func(p filetransfer.SendProgress) {
			tui.UpdateProgress(ids[i], p.BytesSent)
		})
		if err != nil {
			tui.MarkFailed(ids[i], err.Error())
			return err
		}
		tui.MarkComplete(ids[i])
	}
	return nil
}

type buffered interface {
	BufferedAmount() uint64
}

// waitDrained blocks until the data channel has handed every queued byte
// to the transport, so exiting does not cut the last file short.
func waitDrained(ctx context.Context, channel buffered) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	timeout := time.After(drainTimeout)

	for channel.BufferedAmount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("data channel did not drain within %s", drainTimeout)
		case <-ticker.C:
		}
	}
	return nil
}

func displayFileTable(fileInfos []files.FileInfo) {
	items := make([]ui.FileTableItem, len(fileInfos))
	for i, f := range fileInfos {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Type}
	}
	fmt.Println()
	ui.RenderFileTable(items)
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendFlags.register(sendCmd)
}
