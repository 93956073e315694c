package cmd

import "github.com/BioHazard786/Warpcall/internal/ui"

// presenter prints status lines until a transfer view takes over the
// terminal, then routes status into that view.
type presenter struct {
	cancel func()
	tui    *ui.TransferUI
}

func newPresenter(cancel func()) *presenter {
	return &presenter{cancel: cancel}
}

func (p *presenter) status(icon, msg string) {
	if p.tui != nil {
		p.tui.SetState(msg)
		return
	}
	ui.PrintStatus(icon, msg)
}

// transfers starts the transfer view on first use.
func (p *presenter) transfers(mode ui.TransferMode) *ui.TransferUI {
	if p.tui == nil {
		p.tui = ui.NewTransferUI(mode, p.cancel)
		p.tui.Start()
	}
	return p.tui
}

func (p *presenter) stop() {
	if p.tui != nil {
		p.tui.Stop()
	}
}
