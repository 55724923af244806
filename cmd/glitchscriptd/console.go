package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"glitchscript/internal/config"
	"glitchscript/internal/manager"
	"glitchscript/internal/manager/store"
)

var consoleRefresh time.Duration

// consoleCmd opens a live operator console against the configured store:
// a periodically refreshed table of worker-pool stats (spec §4.6 stats) and
// the count of scripts in error. It shows no diagnostics or log tail.
// Grounded on the teacher's tview/tcell
// components (internal/tui/components/status.go's TextView-plus-refresh
// shape) generalized from a MUD status bar to a slot table.
func consoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Operator console: live worker pool stats table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole()
		},
	}
	cmd.Flags().DurationVar(&consoleRefresh, "refresh", time.Second, "table refresh interval")
	return cmd
}

func runConsole() error {
	cfg, err := config.Load(newViper())
	if err != nil {
		return fmt.Errorf("glitchscriptd: load config: %w", err)
	}
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("glitchscriptd: open store %s: %w", cfg.DatabasePath, err)
	}
	defer db.Close()

	mgr := manager.New(db)
	mgr.Start()
	defer mgr.Stop()

	app := tview.NewApplication()
	table := tview.NewTable().SetBorders(false)
	table.SetBorder(true).SetTitle(" glitchscriptd console ")
	renderSlotTable(table, mgr)

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(consoleRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.QueueUpdateDraw(func() { renderSlotTable(table, mgr) })
			case <-stop:
				return
			}
		}
	}()

	table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q') {
			app.Stop()
			return nil
		}
		return event
	})

	if err := app.SetRoot(table, true).Run(); err != nil {
		close(stop)
		return fmt.Errorf("glitchscriptd: console: %w", err)
	}
	close(stop)
	return nil
}

func renderSlotTable(table *tview.Table, mgr *manager.Manager) {
	headers := []string{"Metric", "Value"}
	for col, h := range headers {
		table.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false))
	}
	stats := mgr.PoolStats()
	rows := [][2]string{
		{"Slot count", fmt.Sprintf("%d", stats.SlotCount)},
		{"Active slots", fmt.Sprintf("%d", stats.ActiveSlots)},
		{"Scripts placed", fmt.Sprintf("%d", stats.PlacedCount)},
		{"Queue depth", fmt.Sprintf("%d", stats.QueueDepth)},
		{"Scripts in error", fmt.Sprintf("%d", mgr.ScriptsInError())},
	}
	for i, row := range rows {
		table.SetCell(i+1, 0, tview.NewTableCell(row[0]))
		table.SetCell(i+1, 1, tview.NewTableCell(row[1]))
	}
}
