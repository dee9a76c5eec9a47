package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the health endpoints of a running deployment",
	Long: `Checks the health endpoints of the gateway's two listeners and the
bridge. Exits non-zero when any probe fails, so it can back a container
healthcheck.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _, err := setup(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")

		targets := []struct {
			name string
			url  string
		}{
			{"tool", fmt.Sprintf("http://%s:%d/healthz", probeHost(cfg.MCPHost), cfg.MCPPort)},
			{"execution", fmt.Sprintf("http://%s:%d/healthz", probeHost(cfg.WebsiteHost), cfg.WebsitePort)},
			{"bridge", fmt.Sprintf("http://%s:%d/healthz", probeHost(cfg.BridgeHost), cfg.BridgePort)},
		}

		httpClient := &http.Client{Timeout: timeout}
		failed := false
		for _, target := range targets {
			status := "OK"
			resp, err := httpClient.Get(target.url)
			switch {
			case err != nil:
				status = fmt.Sprintf("FAIL (%v)", err)
				failed = true
			case resp.StatusCode != http.StatusOK:
				status = fmt.Sprintf("FAIL (status %d)", resp.StatusCode)
				failed = true
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
			fmt.Printf("%-10s %-42s %s\n", target.name, target.url, status)
		}

		if failed {
			os.Exit(1)
		}
	},
}

// probeHost maps wildcard listen hosts to a dialable loopback address.
func probeHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().Duration("timeout", 2*time.Second, "Per-probe timeout")
}
