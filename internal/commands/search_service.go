package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/searchd"
)

// NewSearchServiceCmd manages the warm search daemon (C8 §4.9): a
// long-lived process holding the policy index and embedding cache open
// so hook-path queries don't pay SQLite-open and JIT-warmup cost on
// every invocation.
func NewSearchServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search-service",
		Short: "Start, stop, and inspect the warm search daemon",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newSearchServiceStartCmd())
	cmd.AddCommand(newSearchServiceStopCmd())
	cmd.AddCommand(newSearchServiceStatusCmd())
	namespaceIndex(cmd)
	return cmd
}

func searchServicePidFile(cc *commandContext) (string, error) {
	dir, err := cc.Env.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "searchd.pid"), nil
}

func newSearchServiceStartCmd() *cobra.Command {
	var daemon bool
	var port int
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the warm search daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			pidFile, err := searchServicePidFile(cc)
			if err != nil {
				return cmdErr(err)
			}
			if !searchd.StalePID(pidFile) {
				if _, err := os.Stat(pidFile); err == nil {
					return cmdErr(fmt.Errorf("search-service start: already running (pid file %s)", pidFile))
				}
			}

			if daemon {
				dir, err := cc.Env.ConfigDir()
				if err != nil {
					return cmdErr(err)
				}
				logPath := filepath.Join(dir, "searchd.log")
				childArgs := []string{"search-service", "start", "--port", strconv.Itoa(port)}
				pid, err := reexecDetached(childArgs, logPath)
				if err != nil {
					return cmdErr(err)
				}
				return output.PrintSuccess(map[string]any{"pid": pid, "port": port, "log": logPath})
			}

			idx, err := openPolicyIndex(cc)
			if err != nil {
				return cmdErr(err)
			}
			defer idx.Close()

			reg := searchd.NewRegistry()
			reg.Register(searchd.NewPolicyRetriever(idx, cc.Manifest))

			d := searchd.NewDaemon(port, pidFile, reg)
			if err := d.WritePID(); err != nil {
				return cmdErr(err)
			}
			defer d.RemovePID()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := reg.WarmupAll(ctx); err != nil {
				return cmdErr(err)
			}
			return d.ListenAndServe(ctx)
		},
	}
	cmd.Flags().BoolVar(&daemon, "daemon", false, "detach into the background")
	cmd.Flags().IntVar(&port, "port", searchd.DefaultPort, "TCP port to listen on")
	return cmd
}

func newSearchServiceStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running warm search daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			pidFile, err := searchServicePidFile(cc)
			if err != nil {
				return cmdErr(err)
			}
			b, err := os.ReadFile(pidFile)
			if err != nil {
				return cmdErr(fmt.Errorf("search-service stop: not running (%w)", err))
			}
			pid, err := strconv.Atoi(string(b))
			if err != nil {
				return cmdErr(fmt.Errorf("search-service stop: malformed pid file %s", pidFile))
			}
			proc, err := os.FindProcess(pid)
			if err == nil {
				_ = proc.Signal(syscall.SIGTERM)
			}
			_ = os.Remove(pidFile)
			return output.PrintSuccess(map[string]int{"stopped_pid": pid})
		},
	}
}

func newSearchServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the warm search daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			pidFile, err := searchServicePidFile(cc)
			if err != nil {
				return cmdErr(err)
			}
			if _, err := os.Stat(pidFile); err != nil {
				return output.PrintSuccess(map[string]bool{"running": false})
			}
			running := !searchd.StalePID(pidFile)
			return output.PrintSuccess(map[string]bool{"running": running})
		},
	}
}
