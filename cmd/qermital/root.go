package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/qermital"
	"pkt.systems/qermital/core"
	"pkt.systems/qermital/internal/appconfig"
	"pkt.systems/qermital/internal/envcheck"
	"pkt.systems/qermital/internal/instance"
	"pkt.systems/qermital/internal/settings"
	"pkt.systems/qermital/internal/surface"
	"pkt.systems/qermital/internal/terminal"
	"pkt.systems/qermital/internal/terminal/ptyshell"
	"pkt.systems/qermital/internal/terminal/xterm"
	"pkt.systems/qermital/internal/version"
	"pkt.systems/qermital/schema"
)

type rootOptions struct {
	cfgPath     string
	writeConfig bool
	newInstance bool
	folder      string
	command     string
	tray        bool
	double      bool
	max         bool
	noConsole   bool
}

func newRootCmd() *cobra.Command {
	var opts rootOptions
	root := &cobra.Command{
		Use:           "qermital",
		Short:         "Tabbed dual-pane terminal window with a single-instance handoff",
		Args:          cobra.NoArgs,
		Version:       version.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.writeConfig {
				path, err := appconfig.WriteDefault(opts.cfgPath, false)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			}
			return run(cmd.Context(), opts, os.Stdin, cmd.OutOrStdout())
		},
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	flags := root.Flags()
	flags.BoolVarP(&opts.newInstance, "new", "n", false, "start a separate instance instead of handing off to the running one")
	flags.StringVarP(&opts.folder, "folder", "f", "", "initial directory for the terminal")
	flags.StringVarP(&opts.command, "command", "c", "", "command to execute on startup")
	flags.BoolVarP(&opts.tray, "tray", "t", false, "start hidden")
	flags.BoolVarP(&opts.double, "double", "d", false, "open the secondary pane shortly after startup")
	flags.BoolVarP(&opts.max, "max", "m", false, "start maximized")
	flags.StringVar(&opts.cfgPath, "config", "", "config file path")
	flags.BoolVar(&opts.writeConfig, "write-config", false, "write the default config file and exit")
	flags.BoolVar(&opts.noConsole, "no-console", false, "do not read commands from stdin")
	root.MarkFlagsMutuallyExclusive("tray", "max")
	return root
}

func (o rootOptions) mode() schema.WindowMode {
	switch {
	case o.tray:
		return schema.WindowHidden
	case o.max:
		return schema.WindowMaximized
	default:
		return schema.WindowNormal
	}
}

func run(ctx context.Context, opts rootOptions, stdin *os.File, stdout io.Writer) error {
	logger := pslog.Ctx(ctx)
	cfg, err := appconfig.Load(opts.cfgPath)
	if err != nil {
		return err
	}
	if err := envcheck.Check(cfg.RequiredExecutables()); err != nil {
		var missing *envcheck.MissingError
		if errors.As(err, &missing) {
			logger.Error("qermital dependencies missing", "missing", strings.Join(missing.Missing, ","))
		}
		return err
	}

	endpoint := instance.Config{
		Path:          instance.DefaultPath(cfg.Endpoint.Dir, cfg.Endpoint.Name),
		ClientTimeout: cfg.ClientTimeout(),
	}
	var coord *instance.Coordinator
	if !opts.newInstance {
		role, c, err := instance.Start(ctx, endpoint)
		if err != nil {
			return err
		}
		if role == instance.RoleClient {
			return handOff(ctx, endpoint, opts)
		}
		coord = c
	}

	store, err := settings.NewStoreWithLogger(cfg.Settings.Path, logger)
	if err != nil {
		closeCoordinator(coord)
		return err
	}
	userSettings, err := store.Load()
	if err != nil && !errors.Is(err, schema.ErrInvalidSetting) {
		closeCoordinator(coord)
		return err
	}

	var window *qermital.Window
	supervisor := terminal.NewSupervisor(terminal.Config{
		StartTimeout: cfg.StartTimeout(),
		StopTimeout:  cfg.StopTimeout(),
		CellSize:     schema.CellSize{Width: cfg.Terminal.CellWidth, Height: cfg.Terminal.CellHeight},
		OnExit: func(id schema.SessionID, handle core.ProcessHandle) {
			window.ProcessExited(id, handle)
		},
	}, newBackend(cfg))

	deps := qermital.Deps{
		Supervisor:  supervisor,
		Surfaces:    surface.NewProvider(cfg.Window.EmbedInto),
		Coordinator: coord,
		Settings:    store,
	}
	if !opts.noConsole && term.IsTerminal(int(stdin.Fd())) {
		deps.Console = stdin
		deps.ConsoleOut = stdout
	}
	window, err = qermital.New(qermital.Config{
		Manager: core.Config{
			DefaultDirectory: absFolder(opts.folder),
			StartupCommand:   opts.command,
			Settings:         userSettings,
			Mode:             opts.mode(),
			Size:             schema.Size{Width: cfg.Window.Width, Height: cfg.Window.Height},
			CloseOnExit:      cfg.Terminal.CloseOnExit,
		},
		ResizeDebounce:  cfg.ResizeDebounce(),
		DoublePane:      opts.double,
		DoublePaneDelay: cfg.DoublePaneDelay(),
		WatchSettings:   cfg.Settings.Watch,
		WatchDebounce:   cfg.WatchDebounce(),
	}, deps)
	if err != nil {
		closeCoordinator(coord)
		return err
	}
	logger.Info("qermital start", "version", version.String(), "backend", cfg.Terminal.Backend, "run_id", window.RunID(), "primary", coord != nil, "console", deps.Console != nil)
	return window.Run(ctx)
}

// handOff forwards the request to the running instance. An unreachable
// instance is reported but is not a failure of this process.
func handOff(ctx context.Context, endpoint instance.Config, opts rootOptions) error {
	msg := schema.NewOpenTabMessage(absFolder(opts.folder), opts.command)
	if err := instance.Send(ctx, endpoint, msg); err != nil {
		pslog.Ctx(ctx).Warn("qermital running instance unreachable", "endpoint", endpoint.Path, "err", err)
		return nil
	}
	pslog.Ctx(ctx).Info("qermital request forwarded", "endpoint", endpoint.Path)
	return nil
}

// absFolder resolves folder against the working directory of this process.
func absFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return ""
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return folder
	}
	return abs
}

func newBackend(cfg appconfig.Config) terminal.Backend {
	switch cfg.Terminal.Backend {
	case appconfig.BackendPTY:
		return ptyshell.New(ptyshell.Config{
			Shell: cfg.Terminal.Shell,
			Env:   cfg.Terminal.Env,
		})
	default:
		return xterm.New(xterm.Config{
			Executable: cfg.Terminal.Program,
			Class:      cfg.Terminal.Class,
			Shell:      cfg.Terminal.Shell,
			Env:        cfg.Terminal.Env,
		})
	}
}

func closeCoordinator(coord *instance.Coordinator) {
	if coord != nil {
		_ = coord.Close()
	}
}
