package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/qermital/core"
	"pkt.systems/qermital/internal/version"
	"pkt.systems/qermital/schema"
)

// ErrQuit is returned by Handle when the operator asked to close the window.
var ErrQuit = errors.New("quit requested")

// Window is the console's view of the running window. Every call is
// serialized through the window's event loop.
type Window interface {
	CreateSession(ctx context.Context, req core.CreateSessionRequest) (schema.SessionSnapshot, error)
	OpenSecondPane(ctx context.Context) (schema.SessionSnapshot, error)
	CloseSecondPane(ctx context.Context) error
	MoveSession(ctx context.Context, req core.MoveSessionRequest) error
	CloseSession(ctx context.Context, id schema.SessionID) error
	RenameSession(ctx context.Context, id schema.SessionID, label string) error
	FocusSession(ctx context.Context, id schema.SessionID) error
	ApplySettings(ctx context.Context, settings schema.Settings) error
	Settings(ctx context.Context) (schema.Settings, error)
	Snapshot(ctx context.Context) (schema.WindowSnapshot, error)
	ResizeWindow(ctx context.Context, size schema.Size) error
	Raise(ctx context.Context) error
}

// SettingsSaver persists the current settings.
type SettingsSaver interface {
	Save(settings schema.Settings) error
}

// HandlerConfig configures console command behavior.
type HandlerConfig struct {
	Store               SettingsSaver
	DisableAuditLogging bool
}

// Handler routes console commands to window operations.
type Handler struct {
	window Window
	out    io.Writer
	cfg    HandlerConfig
}

// NewHandler constructs a command handler writing replies to out.
func NewHandler(window Window, out io.Writer, cfg HandlerConfig) *Handler {
	if out == nil {
		out = io.Discard
	}
	return &Handler{window: window, out: out, cfg: cfg}
}

// Handle inspects input and executes slash commands. Lines that are not
// commands are reported as unhandled.
func (h *Handler) Handle(ctx context.Context, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	log := pslog.Ctx(ctx).With("input_len", len(input))
	cmd, ok, err := Parse(input)
	if !ok {
		return false, nil
	}
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	if err != nil {
		log.Warn("command slash rejected", "reason", "parse", "err", err)
		return true, err
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	ctx = pslog.ContextWithLogger(ctx, log)
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return true, fmt.Errorf("invalid command")
	case "new":
		return true, h.handleNew(ctx, cmd)
	case "split":
		return true, h.handleSplit(ctx)
	case "unsplit":
		return true, h.handleUnsplit(ctx)
	case "move", "mv":
		return true, h.handleMove(ctx, cmd)
	case "close":
		return true, h.handleClose(ctx, cmd)
	case "rename":
		return true, h.handleRename(ctx, cmd)
	case "focus":
		return true, h.handleFocus(ctx, cmd)
	case "list", "ls":
		return true, h.handleList(ctx)
	case "set":
		return true, h.handleSet(ctx, cmd)
	case "settings":
		return true, h.handleSettings(ctx)
	case "save":
		return true, h.handleSave(ctx)
	case "resize":
		return true, h.handleResize(ctx, cmd)
	case "raise":
		return true, h.window.Raise(ctx)
	case "help":
		h.println(helpLines()...)
		return true, nil
	case "version":
		h.println(version.Line())
		return true, nil
	case "quit", "exit":
		log.Info("command quit requested")
		return true, ErrQuit
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
}

// Run reads commands line by line until EOF, /quit or ctx is done. Command
// errors are printed and do not stop the console.
func (h *Handler) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			handled, err := h.Handle(ctx, line)
			if errors.Is(err, ErrQuit) {
				return ErrQuit
			}
			if err != nil {
				h.println("error: " + err.Error())
				continue
			}
			if !handled {
				h.println("commands start with /, try /help")
			}
		}
	}
}

func (h *Handler) handleNew(ctx context.Context, cmd Command) error {
	req := core.CreateSessionRequest{Pane: schema.PanePrimary, Command: cmd.Command}
	args := cmd.Args
	if len(args) > 0 {
		if kind, ok := schema.ParsePaneKind(args[0]); ok {
			req.Pane = kind
			args = args[1:]
		}
	}
	if len(args) > 1 {
		return fmt.Errorf("usage: /new [primary|secondary] [folder] [-- command]")
	}
	if len(args) == 1 {
		req.Directory = args[0]
	}
	snap, err := h.window.CreateSession(ctx, req)
	if snap.ID != 0 {
		h.println(fmt.Sprintf("tab %s opened in %s pane (%s)", snap.ID, snap.Pane, snap.Status))
	}
	if err != nil {
		pslog.Ctx(ctx).Warn("command new failed", "err", err)
		return err
	}
	return nil
}

func (h *Handler) handleSplit(ctx context.Context) error {
	snap, err := h.window.OpenSecondPane(ctx)
	if err != nil {
		return err
	}
	h.println(fmt.Sprintf("secondary pane open, tab %s focused", snap.ID))
	return nil
}

func (h *Handler) handleUnsplit(ctx context.Context) error {
	if err := h.window.CloseSecondPane(ctx); err != nil {
		return err
	}
	h.println("secondary pane closed")
	return nil
}

func (h *Handler) handleMove(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 1 || len(cmd.Args) > 3 {
		return fmt.Errorf("usage: /move <tab> [from] [to]")
	}
	id, err := schema.ParseSessionID(cmd.Args[0])
	if err != nil {
		return err
	}
	req := core.MoveSessionRequest{Session: id, From: schema.PanePrimary, To: schema.PaneSecondary}
	if len(cmd.Args) > 1 {
		from, ok := schema.ParsePaneKind(cmd.Args[1])
		if !ok {
			return fmt.Errorf("unknown pane %q", cmd.Args[1])
		}
		req.From = from
	}
	if len(cmd.Args) > 2 {
		to, ok := schema.ParsePaneKind(cmd.Args[2])
		if !ok {
			return fmt.Errorf("unknown pane %q", cmd.Args[2])
		}
		req.To = to
	}
	if err := h.window.MoveSession(ctx, req); err != nil {
		return err
	}
	h.println(fmt.Sprintf("tab %s moved to %s pane", id, req.To))
	return nil
}

func (h *Handler) handleClose(ctx context.Context, cmd Command) error {
	id, err := h.sessionArg(ctx, cmd, "usage: /close [tab]")
	if err != nil {
		return err
	}
	if err := h.window.CloseSession(ctx, id); err != nil {
		return err
	}
	h.println(fmt.Sprintf("tab %s closed", id))
	return nil
}

func (h *Handler) handleRename(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 2 {
		return fmt.Errorf("usage: /rename <tab> <label>")
	}
	id, err := schema.ParseSessionID(cmd.Args[0])
	if err != nil {
		return err
	}
	label := cmd.Text(1)
	if err := h.window.RenameSession(ctx, id, label); err != nil {
		return err
	}
	h.println(fmt.Sprintf("tab %s renamed to %q", id, strings.TrimSpace(label)))
	return nil
}

func (h *Handler) handleFocus(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 1 {
		return fmt.Errorf("usage: /focus <tab>")
	}
	id, err := schema.ParseSessionID(cmd.Args[0])
	if err != nil {
		return err
	}
	return h.window.FocusSession(ctx, id)
}

func (h *Handler) handleResize(ctx context.Context, cmd Command) error {
	if len(cmd.Args) != 2 {
		return fmt.Errorf("usage: /resize <width> <height>")
	}
	width, errW := strconv.Atoi(cmd.Args[0])
	height, errH := strconv.Atoi(cmd.Args[1])
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return fmt.Errorf("usage: /resize <width> <height>")
	}
	return h.window.ResizeWindow(ctx, schema.Size{Width: width, Height: height})
}

func (h *Handler) handleList(ctx context.Context) error {
	snap, err := h.window.Snapshot(ctx)
	if err != nil {
		return err
	}
	h.println(paneLines(snap.Primary)...)
	if snap.Secondary != nil {
		h.println(paneLines(*snap.Secondary)...)
	}
	return nil
}

func (h *Handler) handleSet(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 2 {
		return fmt.Errorf("usage: /set <%s> <value>", strings.Join(settingKeys(), "|"))
	}
	current, err := h.window.Settings(ctx)
	if err != nil {
		return err
	}
	next, err := current.With(strings.ToLower(cmd.Args[0]), cmd.Text(1))
	if err != nil {
		return err
	}
	if next == current {
		h.println("settings unchanged")
		return nil
	}
	if err := h.window.ApplySettings(ctx, next); err != nil {
		return err
	}
	h.println(fmt.Sprintf("%s set, use /save to keep it", cmd.Args[0]))
	return nil
}

func (h *Handler) handleSettings(ctx context.Context) error {
	current, err := h.window.Settings(ctx)
	if err != nil {
		return err
	}
	values := current.Values()
	for _, key := range settingKeys() {
		h.println(fmt.Sprintf("%s = %s", key, values[key]))
	}
	return nil
}

func (h *Handler) handleSave(ctx context.Context) error {
	if h.cfg.Store == nil {
		return errors.New("settings store not configured")
	}
	current, err := h.window.Settings(ctx)
	if err != nil {
		return err
	}
	if err := h.cfg.Store.Save(current); err != nil {
		pslog.Ctx(ctx).Warn("command save failed", "err", err)
		return err
	}
	h.println("settings saved")
	return nil
}

// sessionArg returns the tab named by the first argument, or the focused
// primary tab when none is given.
func (h *Handler) sessionArg(ctx context.Context, cmd Command, usage string) (schema.SessionID, error) {
	switch len(cmd.Args) {
	case 0:
		snap, err := h.window.Snapshot(ctx)
		if err != nil {
			return 0, err
		}
		if snap.Primary.Focused == 0 {
			return 0, schema.ErrSessionNotFound
		}
		return snap.Primary.Focused, nil
	case 1:
		return schema.ParseSessionID(cmd.Args[0])
	default:
		return 0, errors.New(usage)
	}
}

func (h *Handler) println(lines ...string) {
	for _, line := range lines {
		_, _ = fmt.Fprintln(h.out, line)
	}
}

func paneLines(p schema.PaneSnapshot) []string {
	lines := []string{fmt.Sprintf("%s pane %dx%d", p.Kind, p.Size.Width, p.Size.Height)}
	for _, s := range p.Sessions {
		marker := " "
		if s.Focused {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s\t%s\t%s\t%s", marker, s.ID, s.Label, s.Status, s.Directory)
		if s.Geometry.Cols > 0 {
			line += fmt.Sprintf("\t%dx%d", s.Geometry.Cols, s.Geometry.Rows)
		}
		if s.Error != "" {
			line += "\t" + s.Error
		}
		lines = append(lines, line)
	}
	return lines
}

func settingKeys() []string {
	keys := make([]string, 0, 4)
	for key := range schema.DefaultSettings().Values() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func helpLines() []string {
	return []string{
		"/new [primary|secondary] [folder] [-- command]  open a tab",
		"/split                                          open the secondary pane",
		"/unsplit                                        close the secondary pane",
		"/move <tab>                                     move a primary tab to the secondary pane",
		"/close [tab]                                    close a tab (default: focused)",
		"/rename <tab> <label>                           rename a tab",
		"/focus <tab>                                    focus a tab",
		"/list                                           list panes and tabs",
		"/set <key> <value>                              change a setting and restart terminals",
		"/settings                                       show settings",
		"/save                                           persist settings",
		"/resize <width> <height>                        resize the window in pixels",
		"/raise                                          bring the window to the front",
		"/version                                        show version",
		"/quit                                           close the window",
	}
}
