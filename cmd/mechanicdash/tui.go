package main

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shaunagostinho/mechanic-dash/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Show the gauges in the terminal",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("tui needs an interactive terminal; use serve instead")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	// Console log lines would tear the display.
	if out := a.cfg.Logging.Output; out == "" || out == "stdout" || out == "stderr" {
		a.log.SetOutput(io.Discard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	a.attachRedis(ctx, &wg)
	a.start(ctx, &wg)

	p := tea.NewProgram(tui.New(a.cluster, a.machine, a.cfg.Title), tea.WithAltScreen())
	_, err = p.Run()

	cancel()
	wg.Wait()
	return err
}
