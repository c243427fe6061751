package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wirelink-dev/wirelink/internal/sink"
)

// console renders client callbacks to stdout, standing in for the
// control-panel UI the client normally drives.
type console struct {
	verbose bool
}

func newConsole(verbose bool) *console {
	return &console{verbose: verbose}
}

func (c *console) UpdateConnection(u sink.ConnectionUpdate) {
	if u.Error != "" {
		fmt.Printf("[CONNECTION] phase=%s attempt=%d health=%d error=%s\n",
			u.Phase, u.Attempt, u.HealthScore, u.Error)
		return
	}
	fmt.Printf("[CONNECTION] phase=%s attempt=%d health=%d latency_ema=%.1fms\n",
		u.Phase, u.Attempt, u.HealthScore, u.LatencyEMA)
}

func (c *console) UpdateGit(data json.RawMessage)        { c.printState("git", data) }
func (c *console) UpdateFileSystem(data json.RawMessage) { c.printState("fileSystem", data) }
func (c *console) UpdatePrompt(data json.RawMessage)     { c.printState("prompt", data) }
func (c *console) UpdateConfig(data json.RawMessage)     { c.printState("config", data) }

func (c *console) printState(domain string, data json.RawMessage) {
	if c.verbose {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			fmt.Printf("[STATE] %s %s\n", domain, buf.String())
			return
		}
	}
	fmt.Printf("[STATE] %s update (%d bytes)\n", domain, len(data))
}

func (c *console) Success(title, message string) {
	fmt.Printf("[NOTICE] %s: %s\n", title, message)
}

func (c *console) Warning(title, message string) {
	fmt.Printf("[WARNING] %s: %s\n", title, message)
}

func (c *console) Error(title, message string) {
	fmt.Printf("[ERROR] %s: %s\n", title, message)
}

func (c *console) Report(rec sink.Record) {
	fmt.Printf("[REPORT] %s category=%s message=%s\n", rec.Type, rec.Category, rec.Message)
}
