package commands

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/proxy"
)

// NewProxyCmd manages the optional streaming reverse proxy (C9 §4.10)
// that deduplicates accumulated policy-injection blocks before they
// reach the model.
func NewProxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Start, stop, and inspect the policy-injection deduplicating reverse proxy",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newProxyStartCmd())
	cmd.AddCommand(newProxyStopCmd())
	cmd.AddCommand(newProxyStatusCmd())
	cmd.AddCommand(newProxyStatsCmd())
	cmd.AddCommand(newProxyLogCmd())
	namespaceIndex(cmd)
	return cmd
}

const defaultProxyUpstream = "https://api.anthropic.com"

func proxyPidFile(cc *commandContext) (string, error) {
	dir, err := cc.Env.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "proxy.pid"), nil
}

func proxyAddrForPort(port int) string {
	if port == 0 {
		return proxy.DefaultAddr
	}
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func newProxyStartCmd() *cobra.Command {
	var daemon bool
	var port int
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the reverse proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			pidFile, err := proxyPidFile(cc)
			if err != nil {
				return cmdErr(err)
			}
			if isPidAlive(pidFile) {
				return cmdErr(fmt.Errorf("proxy start: already running (pid file %s)", pidFile))
			}

			if daemon {
				dir, err := cc.Env.ConfigDir()
				if err != nil {
					return cmdErr(err)
				}
				logPath := filepath.Join(dir, "proxy.log")
				childArgs := []string{"proxy", "start", "--port", strconv.Itoa(port)}
				pid, err := reexecDetached(childArgs, logPath)
				if err != nil {
					return cmdErr(err)
				}
				return output.PrintSuccess(map[string]any{"pid": pid, "addr": proxyAddrForPort(port), "log": logPath})
			}

			upstream, err := url.Parse(defaultProxyUpstream)
			if err != nil {
				return cmdErr(err)
			}
			srv, err := proxy.NewServer(upstream, cc.Env.ProxyCaptureDir, cc.Env.AgentAPILogPath(), cc.Events, otel.Meter("macf-proxy"))
			if err != nil {
				return cmdErr(err)
			}
			if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
				return cmdErr(err)
			}
			defer os.Remove(pidFile)

			return srv.Start(proxyAddrForPort(port))
		},
	}
	cmd.Flags().BoolVar(&daemon, "daemon", false, "detach into the background")
	cmd.Flags().IntVar(&port, "port", 0, "TCP port to listen on (default 8019)")
	return cmd
}

func isPidAlive(pidFile string) bool {
	b, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func newProxyStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running reverse proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			pidFile, err := proxyPidFile(cc)
			if err != nil {
				return cmdErr(err)
			}
			b, err := os.ReadFile(pidFile)
			if err != nil {
				return cmdErr(fmt.Errorf("proxy stop: not running (%w)", err))
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
			if err != nil {
				return cmdErr(fmt.Errorf("proxy stop: malformed pid file %s", pidFile))
			}
			if proc, err := os.FindProcess(pid); err == nil {
				_ = proc.Signal(syscall.SIGTERM)
			}
			_ = os.Remove(pidFile)
			return output.PrintSuccess(map[string]int{"stopped_pid": pid})
		},
	}
}

func newProxyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the reverse proxy is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			pidFile, err := proxyPidFile(cc)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(map[string]bool{"running": isPidAlive(pidFile)})
		},
	}
}

func newProxyStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count captured request/response pairs under MACF_PROXY_CAPTURE_DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if cc.Env.ProxyCaptureDir == "" {
				return output.PrintSuccess(map[string]any{"capture_enabled": false})
			}
			entries, err := os.ReadDir(cc.Env.ProxyCaptureDir)
			if err != nil {
				return output.PrintSuccess(map[string]any{"capture_enabled": true, "captured_files": 0})
			}
			return output.PrintSuccess(map[string]any{"capture_enabled": true, "captured_files": len(entries)})
		},
	}
}

func newProxyLogCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the tail of the daemonized proxy's log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			dir, err := cc.Env.ConfigDir()
			if err != nil {
				return cmdErr(err)
			}
			b, err := os.ReadFile(filepath.Join(dir, "proxy.log"))
			if err != nil {
				return output.PrintSuccess(map[string]string{"text": ""})
			}
			all := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
			if len(all) > lines {
				all = all[len(all)-lines:]
			}
			return output.PrintSuccess(map[string]string{"text": strings.Join(all, "\n")})
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing log lines to print")
	return cmd
}
