package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the ActionBridge banner to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	lines := []struct {
		text  string
		color string
	}{
		{"    _        _   _              ____       _     _            ", "#38bdf8"},
		{"   / \\   ___| |_(_) ___  _ __  | __ ) _ __(_) __| | __ _  ___ ", "#22d3ee"},
		{"  / _ \\ / __| __| |/ _ \\| '_ \\ |  _ \\| '__| |/ _` |/ _` |/ _ \\", "#2dd4bf"},
		{" / ___ \\ (__| |_| | (_) | | | || |_) | |  | | (_| | (_| |  __/", "#34d399"},
		{"/_/   \\_\\___|\\__|_|\\___/|_| |_||____/|_|  |_|\\__,_|\\__, |\\___|", "#4ade80"},
		{"                                                    |___/     ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, out.String("  "+version).Faint())
	}
	fmt.Fprintln(w)
}
