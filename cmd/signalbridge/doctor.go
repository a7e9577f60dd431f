package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"signalbridge/internal/config"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your signalbridge installation",
		Long: `Verifies that the configuration, the signal-cli binary, and the
agent endpoint are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("signalbridge doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'signalbridge init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. signal-cli binary on PATH
			if path, err := exec.LookPath(cfg.Signal.CLIPath); err != nil {
				printFail("signal-cli", fmt.Sprintf("%s not found on PATH", cfg.Signal.CLIPath))
				failed++
			} else {
				printPass("signal-cli", path)
				passed++
			}

			// 4. ffmpeg on PATH (only needed for voice note transcoding)
			if path, err := exec.LookPath("ffmpeg"); err != nil {
				printWarn("ffmpeg", "not found on PATH; voice notes in unsupported formats cannot be transcribed")
				warned++
			} else {
				printPass("ffmpeg", path)
				passed++
			}

			// 5. Attachments directory
			if info, err := os.Stat(cfg.Signal.AttachmentsDir); err != nil {
				printWarn("Attachments dir", fmt.Sprintf("not found: %s (created by signal-cli on first attachment)", cfg.Signal.AttachmentsDir))
				warned++
			} else if !info.IsDir() {
				printFail("Attachments dir", fmt.Sprintf("not a directory: %s", cfg.Signal.AttachmentsDir))
				failed++
			} else {
				printPass("Attachments dir", cfg.Signal.AttachmentsDir)
				passed++
			}

			// 6. Agent endpoint reachable
			if err := checkAgent(cfg.Agent.URL); err != nil {
				printWarn("Agent endpoint", fmt.Sprintf("%s: %v", cfg.Agent.URL, err))
				warned++
			} else {
				printPass("Agent endpoint", cfg.Agent.URL)
				passed++
			}

			// 7. Daemon HTTP port available
			if err := checkAddr(cfg.Signal.HTTPAddr); err != nil {
				printWarn("Daemon port", fmt.Sprintf("%s may be in use: %v", cfg.Signal.HTTPAddr, err))
				warned++
			} else {
				printPass("Daemon port", cfg.Signal.HTTPAddr+" available")
				passed++
			}

			// 8. Gateway port available
			if cfg.Gateway.Enabled {
				addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
				if err := checkAddr(addr); err != nil {
					printWarn("Gateway port", fmt.Sprintf("%s may be in use: %v", addr, err))
					warned++
				} else {
					printPass("Gateway port", addr+" available")
					passed++
				}
			}

			// 9. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running signalbridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nsignalbridge should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! signalbridge is ready to run.\n")
			}
			return nil
		},
	}
}

// checkAgent probes the agent endpoint. Any HTTP answer counts as
// reachable; the agent may reject a GET on its chat endpoint.
func checkAgent(url string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
