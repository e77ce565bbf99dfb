package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/xid"

	"github.com/vtrash/vtrash/internal/access"
	"github.com/vtrash/vtrash/internal/config"
	"github.com/vtrash/vtrash/internal/env"
	"github.com/vtrash/vtrash/internal/trash"
	"github.com/vtrash/vtrash/internal/trash/autoclean"
	"github.com/vtrash/vtrash/internal/ui"
	"github.com/vtrash/vtrash/internal/utils/debug"
	"github.com/vtrash/vtrash/internal/utils/duration"
	"github.com/vtrash/vtrash/internal/utils/log"
)

type Option struct {
	Config string `long:"config" description:"Path to config file" default:""`

	Trash TrashOption `group:"Trash Options"`
	Meta  MetaOption  `group:"Meta Options"`
}

type TrashOption struct {
	Recursive   bool   `short:"r" long:"recursive" description:"Descend into directories matching the mask"`
	Recursive2  bool   `short:"R" description:"Same as -r"`
	Old         int    `short:"o" long:"old" description:"Version to restore or clean, 0 is the newest (default: newest for rs, all for clear)" default:"-1"`
	All         bool   `short:"a" long:"all" description:"List every version instead of the newest one"`
	Force       bool   `short:"f" long:"force" description:"Log failed items and go on with the next one"`
	Interactive bool   `short:"i" long:"interactive" description:"Prompt before every operation"`
	DryRun      bool   `short:"d" long:"dryrun" description:"Log what would be done without doing it"`
	Verbose     bool   `short:"v" long:"verbose" description:"Explain what is being done"`
	MaxAge      string `long:"max-age" description:"Override the autoclear age threshold (e.g. 2w, \"3 days\")"`
}

type MetaOption struct {
	Version bool   `short:"V" long:"version" description:"Show version"`
	Debug   string `long:"debug" description:"View debug logs (default: \"full\")" optional-value:"full" optional:"yes" choice:"full" choice:"live"`
}

const usage = "[OPTIONS] <rm|rs|ls|clear|autoclear> [masks...]"

type CLI struct {
	version Version
	option  Option
	config  config.Config
	manager *trash.Manager
	cleaner *autoclean.Cleaner
	stdout  io.Writer
}

var runID = sync.OnceValue(func() string {
	id := xid.New().String()
	return id
})

func Run(v Version) error {
	var opt Option
	parser := flags.NewParser(&opt, flags.Default)
	parser.Name = v.AppName
	parser.Usage = usage
	args, err := parser.Parse()
	if err != nil {
		if flags.WroteHelp(err) {
			return nil
		}
		return err
	}

	if opt.Meta.Version {
		fmt.Fprint(os.Stdout, v.Print())
		return nil
	}

	cfg, err := config.Parse(opt.Config)
	if err != nil {
		return err
	}
	cfg.Core = overrideCore(cfg.Core, opt.Trash)

	closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if opt.Meta.Debug != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		viewer := debug.Viewer{Path: env.VTRASH_LOG_PATH, Enabled: cfg.Logging.Enabled}
		return viewer.Logs(ctx, os.Stdout, opt.Meta.Debug == "live")
	}

	defer slog.Debug("main function finished")
	slog.Debug("main function started", "version", v.Version, "revision", v.Revision, "buildDate", v.BuildDate)

	c, err := New(cfg, opt, ui.NewPrompter())
	if err != nil {
		return err
	}
	c.version = v

	if err := c.Run(args); err != nil {
		slog.Error("exit", "error", fmt.Errorf("cli.run failed: %w", err))
		return err
	}
	return nil
}

// New wires the trash store, the cleaner and the manager from cfg.
func New(cfg config.Config, opt Option, confirmer access.Confirmer) (*CLI, error) {
	root, err := cfg.Trash.Path()
	if err != nil {
		return nil, err
	}

	store, err := trash.NewStore(trash.Config{
		Directory: root,
		LockFile:  cfg.Trash.LockFile,
		MaxCount:  cfg.Trash.MaxCount,
		MaxSize:   cfg.Trash.MaxSizeBytes(),
		RunID:     runID(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize trash store: %w", err)
	}

	policy, err := autoclean.NewPolicy(
		cfg.Autoclean.MaxAgeDays,
		cfg.Autoclean.SameNameLimit,
		cfg.Autoclean.MaxCount,
		cfg.Autoclean.MaxSizeBytes(),
	)
	if err != nil {
		return nil, err
	}
	if opt.Trash.MaxAge != "" {
		d, err := duration.Parse(opt.Trash.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("--max-age: %w", err)
		}
		slog.Debug("max age overridden", "max_age", duration.Format(d))
		policy.MaxAge = d
	}
	cleaner := autoclean.New(store, policy)

	controller := access.Policy{
		Interactive: cfg.Core.Interactive,
		DryRun:      cfg.Core.DryRun,
		AutoReplace: cfg.Core.AutoReplace,
		Confirmer:   confirmer,
	}
	manager := trash.NewManager(store, controller, cleaner, trash.ManagerOptions{
		Force:          cfg.Core.Force,
		AllowAutoclean: cfg.Core.AllowAutoclean,
	})

	return &CLI{
		option:  opt,
		config:  cfg,
		manager: manager,
		cleaner: cleaner,
		stdout:  os.Stdout,
	}, nil
}

// overrideCore lets the command line switch on what the config leaves off.
func overrideCore(core config.Core, opt TrashOption) config.Core {
	core.Force = core.Force || opt.Force
	core.DryRun = core.DryRun || opt.DryRun
	core.Interactive = core.Interactive || opt.Interactive
	core.Verbose = core.Verbose || opt.Verbose
	return core
}

// setupLogger sends records to stderr (info when verbose, warnings
// otherwise) and, when logging is enabled, to the rotating debug log.
func setupLogger(cfg config.Config) (func(), error) {
	consoleLevel := log.WarnLevel
	if cfg.Core.Verbose {
		consoleLevel = log.InfoLevel
	}
	handlers := []slog.Handler{
		log.NewHandler(log.UseOutput(os.Stderr), log.UseLevel(consoleLevel)),
	}

	closer := func() {}
	if cfg.Logging.Enabled {
		w, err := log.NewRotateWriter(env.VTRASH_LOG_PATH, cfg.Logging.Rotation)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, log.NewHandler(
			log.UseOutput(w),
			log.UseLevel(log.ParseLevel(cfg.Logging.Level)),
			log.UseReportCaller(true),
			log.UseReportTimestamp(true),
			log.UseTimeFormat(time.DateTime),
			log.UseAttrs("run_id", runID()),
		))
		closer = func() { _ = w.Close() }
	}

	slog.SetDefault(log.Fanout(handlers...))
	return closer, nil
}

func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command: usage: %s", usage)
	}

	cmd, masks := args[0], args[1:]
	slog.Debug("running command", "command", cmd, "masks", masks)

	switch cmd {
	case "rm":
		return c.Remove(masks)
	case "rs":
		return c.Restore(masks)
	case "ls":
		return c.List(masks)
	case "clear":
		return c.Clear(masks)
	case "autoclear":
		return c.Autoclear()
	default:
		return fmt.Errorf("%q: %w", cmd, errUnknownCommand)
	}
}

var (
	errUnknownCommand = errors.New("unknown command (want rm, rs, ls, clear or autoclear)")
	errNoMasks        = errors.New("too few arguments")
)

func (c *CLI) recursive() bool {
	return c.option.Trash.Recursive || c.option.Trash.Recursive2
}
