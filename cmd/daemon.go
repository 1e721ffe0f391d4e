package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/cli"
	"github.com/theirongolddev/ccdash/internal/config"
	"github.com/theirongolddev/ccdash/internal/daemon"
	"github.com/theirongolddev/ccdash/internal/logger"
	"github.com/theirongolddev/ccdash/internal/pipeline"
)

type daemonRuntimeState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	ClaudeDir string    `json:"claude_dir"`
}

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonWatch        bool
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Serve the cache over HTTP and keep it fresh in the background",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	defaults := config.DefaultConfig().Daemon
	defaultPID := filepath.Join(config.CacheDir(), "ccdashd.pid")
	defaultLog := filepath.Join(config.CacheDir(), "ccdashd.log")

	pf := daemonCmd.PersistentFlags()
	pf.StringVar(&flagDaemonAddr, "addr", defaults.Addr, "HTTP listen address")
	pf.StringVar(&flagDaemonPIDFile, "pid-file", defaultPID, "PID file path")
	pf.StringVar(&flagDaemonLogFile, "log-file", defaultLog, "JSON log file (always used in detached mode)")

	f := daemonCmd.Flags()
	f.DurationVar(&flagDaemonInterval, "interval", time.Duration(defaults.PollSeconds)*time.Second, "Staleness check interval")
	f.BoolVar(&flagDaemonWatch, "watch", defaults.Watch, "Rebuild when session logs change")
	f.IntVar(&flagDaemonEventsBuffer, "events-buffer", defaults.EventsBuffer, "Max in-memory events retained")
	f.BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	f.BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = f.MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	applyDaemonFlags(cmd)

	if flagDaemonDetach {
		return startDaemonDetached()
	}

	return runDaemonForeground(cmd)
}

// applyDaemonFlags lets explicit flags override the [daemon] config section.
func applyDaemonFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Daemon.Addr = flagDaemonAddr
	}
	if flags.Changed("interval") {
		cfg.Daemon.PollSeconds = int(flagDaemonInterval / time.Second)
	}
	if flags.Changed("watch") {
		cfg.Daemon.Watch = flagDaemonWatch
	}
	if flags.Changed("events-buffer") {
		cfg.Daemon.EventsBuffer = flagDaemonEventsBuffer
	}
}

func startDaemonDetached() error {
	if err := ensureDaemonNotRunning(flagDaemonPIDFile); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := filterDetachArg(os.Args[1:])
	args = append(args, "--child")

	if err := os.MkdirAll(filepath.Dir(flagDaemonPIDFile), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}

	cmd := exec.Command(exe, args...) //nolint:gosec // exe/args come from current process invocation
	cmd.Stdin = nil
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", flagDaemonPIDFile)
	fmt.Printf("  API: http://%s/v1/status\n", cfg.Daemon.Addr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return nil
}

// daemonLogger writes to stderr and, for a detached child or an explicit
// --log-file, JSON lines to the log file as well.
func daemonLogger(cmd *cobra.Command) (*slog.Logger, func(), error) {
	console := newLogger(slog.LevelInfo)
	if !flagDaemonChild && !cmd.Flags().Changed("log-file") {
		return console, func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create daemon log directory: %w", err)
	}
	//nolint:gosec // daemon log path is configured by the local user
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open daemon log file: %w", err)
	}
	file := logger.New(logger.WithJSON(true), logger.WithDebug(cfg.Log.Debug), logger.WithWriter(logf))
	if flagDaemonChild {
		return file, func() { _ = logf.Close() }, nil
	}
	return logger.Multi(console, file), func() { _ = logf.Close() }, nil
}

func runDaemonForeground(cmd *cobra.Command) error {
	if err := ensureDaemonNotRunning(flagDaemonPIDFile); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(flagDaemonPIDFile), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}

	log, closeLog, err := daemonLogger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := openApp(log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	pid := os.Getpid()
	if err := writePID(flagDaemonPIDFile, pid); err != nil {
		return err
	}
	defer func() { _ = os.Remove(flagDaemonPIDFile) }()

	state := daemonRuntimeState{
		PID:       pid,
		Addr:      cfg.Daemon.Addr,
		StartedAt: time.Now(),
		ClaudeDir: cfg.ClaudeDir(),
	}
	_ = writeState(statePath(flagDaemonPIDFile), state)
	defer func() { _ = os.Remove(statePath(flagDaemonPIDFile)) }()

	coord := pipeline.NewCoordinator(a.rebuilder, pipeline.CoordinatorOptions{
		Freshness: cfg.Freshness(),
		Logger:    log,
	})
	svc := daemon.New(daemon.Config{
		Addr:         cfg.Daemon.Addr,
		PollInterval: cfg.PollInterval(),
		EventsBuffer: cfg.Daemon.EventsBuffer,
		Watch:        cfg.Daemon.Watch,
		WatchDir:     cfg.ClaudeDir(),
		Debounce:     cfg.Debounce(),
	}, a.store, coord, log)

	if !flagDaemonChild {
		fmt.Printf("  ccdash daemon listening on http://%s\n", cfg.Daemon.Addr)
		fmt.Printf("  Indexing %s, checking every %s\n", cfg.ClaudeDir(), cfg.PollInterval())
		fmt.Printf("  Stop with: ccdash daemon stop --pid-file %s\n", flagDaemonPIDFile)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	pid, err := readPID(flagDaemonPIDFile)
	if err != nil {
		fmt.Printf("  Daemon: not running (pid file not found)\n")
		return nil
	}

	alive := processAlive(pid)
	if !alive {
		fmt.Printf("  Daemon: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	addr := cfg.Daemon.Addr
	if cmd.Flags().Changed("addr") {
		addr = flagDaemonAddr
	}
	if st, err := readState(statePath(flagDaemonPIDFile)); err == nil && st.Addr != "" {
		addr = st.Addr
	}

	fmt.Printf("  Daemon PID: %d\n", pid)
	fmt.Printf("  Address: http://%s\n", addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status") //nolint:noctx // short status probe
	if err != nil {
		fmt.Printf("  API status: unreachable (%v)\n", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("  API status: HTTP %d\n", resp.StatusCode)
		return nil
	}

	var st daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Printf("  API status: malformed response (%v)\n", err)
		return nil
	}

	rb := st.Rebuild
	fmt.Printf("  Up since: %s\n", st.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("  Watching: %v\n", st.Watching)
	fmt.Printf("  Last rebuild: %s\n", cli.FormatAgo(rb.LastSuccess))
	fmt.Printf("  Rebuilds: %d (%d failed)\n", rb.Runs, rb.Failures)
	fmt.Printf("  Sessions cached: %d\n", rb.LastStats.TotalCached)
	if rb.Running {
		fmt.Printf("  Rebuild in progress\n")
	}
	if rb.LastError != "" {
		fmt.Printf("  Last error: %s\n", rb.LastError)
	}
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	pid, err := readPID(flagDaemonPIDFile)
	if err != nil {
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			_ = os.Remove(flagDaemonPIDFile)
			_ = os.Remove(statePath(flagDaemonPIDFile))
			fmt.Printf("  Stopped daemon (pid %d)\n", pid)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}

	return fmt.Errorf("daemon (pid %d) did not exit in time", pid)
}

func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func ensureDaemonNotRunning(pidFile string) error {
	pid, err := readPID(pidFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if processAlive(pid) {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	_ = os.Remove(pidFile)
	_ = os.Remove(statePath(pidFile))
	return nil
}

func writePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

func readPID(path string) (int, error) {
	//nolint:gosec // daemon pid path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", path)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func statePath(pidFile string) string {
	return pidFile + ".json"
}

func writeState(path string, st daemonRuntimeState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func readState(path string) (daemonRuntimeState, error) {
	var st daemonRuntimeState
	//nolint:gosec // daemon state path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, err
	}
	return st, nil
}
