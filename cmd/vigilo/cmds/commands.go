// Package cmds implements the vigilo command line interface.
package cmds

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/cosiner/argv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vigilo/vigilo/pkg/config"
	"github.com/vigilo/vigilo/pkg/logflags"
	"github.com/vigilo/vigilo/pkg/stub"
	"github.com/vigilo/vigilo/pkg/target/native"
	"github.com/vigilo/vigilo/pkg/version"
)

var (
	// addr is the debugger listen address.
	addr string
	// log enables logging.
	log       bool
	logOutput string
	logDest   string
	// lldbMode selects the LLDB dialect instead of the GDB one.
	lldbMode bool
	// launchCmd is an alternative to positional arguments: a single
	// string split the way a shell would.
	launchCmd string

	conf *config.Config
)

// New returns the root command for the vigilo binary.
func New(c *config.Config) *cobra.Command {
	conf = c

	rootCommand := &cobra.Command{
		Use:   "vigilo",
		Short: "Vigilo is a GDB/LLDB remote debug stub.",
		Long: `Vigilo exposes a local process to a GDB or LLDB front-end over the
GDB Remote Serial Protocol. It launches or attaches to the inferior and
serves one debugger connection at a time.`,
	}
	listenDefault := "localhost:0"
	if c.Listen != "" {
		listenDefault = c.Listen
	}
	rootCommand.PersistentFlags().StringVarP(&addr, "listen", "l", listenDefault, "Debug stub listen address.")
	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug stub logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (stub,rspwire,inferior).")
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor.")
	rootCommand.PersistentFlags().BoolVarP(&lldbMode, "lldb", "", false, "Speak the LLDB dialect of the protocol.")

	execCommand := &cobra.Command{
		Use:   "exec <path> [args...]",
		Short: "Launch a program and serve a debug session for it.",
		Long: `Launches the given program, stopped at entry, and waits for a debugger
to connect. Alternatively the whole command line can be passed as one
string with --cmd.`,
		Run: execCmd,
	}
	execCommand.Flags().StringVarP(&launchCmd, "cmd", "", "", "Full launch command line as a single string.")
	rootCommand.AddCommand(execCommand)

	attachCommand := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach to a running process and serve a debug session for it.",
		Run:   attachCmd,
	}
	rootCommand.AddCommand(attachCommand)

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Vigilo Debug Stub\n%s\n", version.DefaultVersion)
		},
	}
	// none of the root flags applies to version
	versionCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		cmd.InheritedFlags().VisitAll(func(flag *pflag.Flag) {
			flag.Hidden = true
		})
		cmd.Parent().HelpFunc()(cmd, args)
	})
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func execCmd(cmd *cobra.Command, args []string) {
	if launchCmd != "" {
		if len(args) > 0 {
			fmt.Fprintln(os.Stderr, "--cmd and positional arguments are mutually exclusive")
			os.Exit(1)
		}
		parsed, err := argv.Argv(launchCmd,
			func(s string) (string, error) {
				return "", fmt.Errorf("backtick not supported in %q", s)
			},
			nil)
		if err != nil || len(parsed) != 1 {
			fmt.Fprintf(os.Stderr, "invalid launch command: %v\n", err)
			os.Exit(1)
		}
		args = parsed[0]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "you must provide a path to a program")
		os.Exit(1)
	}

	os.Exit(serve(func(ses *stub.DebugSession) error {
		return ses.LaunchProcess(args)
	}))
}

func attachCmd(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "you must provide a PID")
		os.Exit(1)
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid pid: %s\n", args[0])
		os.Exit(1)
	}

	os.Exit(serve(func(ses *stub.DebugSession) error {
		return ses.AttachProcess(pid)
	}))
}

func serve(acquire func(*stub.DebugSession) error) int {
	if log && logOutput == "" {
		logOutput = conf.LogOutput
	}
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logflags.Close()

	ses := stub.NewDebugSession(native.Launch, native.Attach)
	ses.SetEnvironment(environBlock())

	if err := acquire(ses); err != nil {
		fmt.Fprintf(os.Stderr, "cannot acquire inferior: %v\n", err)
		return 1
	}
	defer ses.Release()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "couldn't start listener: %v\n", err)
		return 1
	}

	mode := stub.ModeGDB
	if lldbMode {
		mode = stub.ModeLLDB
	}

	fmt.Printf("Listening at %s in %s mode\n", listener.Addr(), mode)
	server := stub.NewServer(listener, ses, mode)
	if err := server.Run(); err != nil && !errors.Is(err, net.ErrClosed) {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// environBlock renders the configured environment additions as KEY=VALUE
// entries.
func environBlock() []string {
	env := make([]string, 0, len(conf.Environment))
	for key, value := range conf.Environment {
		env = append(env, key+"="+value)
	}
	return env
}
