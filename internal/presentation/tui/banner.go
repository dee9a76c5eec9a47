package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner shown when a listener starts
// in an interactive terminal.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Emerald-to-sky gradient.
	s1 := termenv.String("   __  __               _           _     ____         _         ").Foreground(p.Color("#34d399"))
	s2 := termenv.String("  |  \\/  |  __ _  _ __ | | __  ___ | |_  / ___|  __ _ | |_   ___ ").Foreground(p.Color("#2dd4bf"))
	s3 := termenv.String("  | |\\/| | / _` || '__|| |/ / / _ \\| __|| |  _  / _` || __| / _ \\").Foreground(p.Color("#22d3ee"))
	s4 := termenv.String("  | |  | || (_| || |   |   < |  __/| |_ | |_| || (_| || |_ |  __/").Foreground(p.Color("#38bdf8"))
	s5 := termenv.String("  |_|  |_| \\__,_||_|   |_|\\_\\ \\___| \\__| \\____| \\__,_| \\__| \\___|").Foreground(p.Color("#60a5fa"))
	tag := termenv.String(fmt.Sprintf("  market data gateway %s", version)).Faint()

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(tag)
	fmt.Println()
}
