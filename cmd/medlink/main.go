package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hbollon/go-edlib"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/medlink/internal/cache"
	"github.com/standardbeagle/medlink/internal/config"
	"github.com/standardbeagle/medlink/internal/csharp"
	"github.com/standardbeagle/medlink/internal/engine"
	"github.com/standardbeagle/medlink/internal/types"
	"github.com/standardbeagle/medlink/internal/watch"
)

var Version = "0.3.0"

func main() {
	app := &cli.App{
		Name:                   "medlink",
		Usage:                  "Find MediatR handlers and dispatch sites in C# codebases",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root directory",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <root>/" + config.DefaultFileName + ")",
			},
			&cli.StringFlag{
				Name:  "cache",
				Usage: "Result cache file path (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the result cache",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Scan parallelism (0 = one per CPU)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "handlers",
				Aliases:   []string{"h"},
				Usage:     "Find the handlers for a request type",
				ArgsUsage: "<TypeName>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
					&cli.StringFlag{
						Name:  "role",
						Usage: "Restrict to one role: command, query, notification",
					},
				},
				Action: handlersCommand,
			},
			{
				Name:      "usages",
				Aliases:   []string{"u"},
				Usage:     "Find the dispatch call sites for a request type",
				ArgsUsage: "<TypeName>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: usagesCommand,
			},
			{
				Name:   "scan",
				Usage:  "Scan the workspace and report what was found",
				Action: scanCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show workspace and cache status without scanning",
				Action: statusCommand,
			},
			{
				Name:   "requests",
				Usage:  "List every request type in the workspace",
				Action: requestsCommand,
			},
			{
				Name:   "watch",
				Usage:  "Watch the workspace and invalidate cached results on change",
				Action: watchCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// session is everything a command needs: loaded config, opened workspace
// and a wired engine.
type session struct {
	cfg *config.Config
	ws  *csharp.Workspace
	eng *engine.Engine
}

func openSession(c *cli.Context) (*session, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(root)
	}
	if err != nil {
		return nil, err
	}
	if c.IsSet("root") || cfg.Root == "" {
		cfg.Root = root
	}

	workers := cfg.Workers
	if c.IsSet("workers") {
		workers = c.Int("workers")
	}

	ws, err := csharp.Open(cfg.Root, csharp.Options{
		Include:     cfg.Include,
		Exclude:     cfg.Exclude,
		MaxFileSize: cfg.MaxFileSize,
		Workers:     workers,
	})
	if err != nil {
		return nil, err
	}

	cachePath := cfg.Cache.Path
	if flag := c.String("cache"); flag != "" {
		cachePath = flag
	}

	eng := engine.New(ws, ws.ID(), engine.Options{
		Workers:            workers,
		CachePath:          cachePath,
		CacheDisabled:      c.Bool("no-cache") || cfg.Cache.Disabled,
		FrameworkNamespace: cfg.Framework.Namespace,
		Cache: cache.Options{
			SweepInterval:     cfg.Cache.SweepIntervalDuration(),
			ValidateThreshold: cfg.Cache.ValidateThresholdDuration(),
			RecentWindow:      cfg.Cache.RecentWindowDuration(),
		},
	})
	return &session{cfg: cfg, ws: ws, eng: eng}, nil
}

func (s *session) close() {
	if err := s.eng.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// resolveRequest looks the named type up and prints near-miss suggestions
// when it is unknown.
func resolveRequest(ctx context.Context, s *session, name string) (*types.TypeRef, []types.RequestDescriptor, error) {
	ref, roles, err := s.eng.LookupRequest(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if ref != nil {
		return ref, roles, nil
	}

	msg := fmt.Sprintf("no type named %q found", name)
	if names, err := s.eng.RequestNames(ctx); err == nil && len(names) > 0 {
		if matches, err := edlib.FuzzySearchSetThreshold(name, names, 3, 0.6, edlib.Levenshtein); err == nil {
			var suggestions []string
			for _, m := range matches {
				if m != "" {
					suggestions = append(suggestions, m)
				}
			}
			if len(suggestions) > 0 {
				msg += "; did you mean " + strings.Join(suggestions, ", ") + "?"
			}
		}
	}
	return nil, nil, cli.Exit(msg, 1)
}

func handlersCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("usage: medlink handlers <TypeName>", 1)
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signalContext()
	defer cancel()

	ref, _, err := resolveRequest(ctx, s, name)
	if err != nil {
		return err
	}

	var handlers []types.HandlerDescriptor
	if roleFlag := c.String("role"); roleFlag != "" {
		role, err := parseRole(roleFlag)
		if err != nil {
			return err
		}
		handlers, err = s.eng.HandlersForRole(ctx, ref, role)
		if err != nil {
			return err
		}
	} else {
		handlers, err = s.eng.Handlers(ctx, ref)
		if err != nil {
			return err
		}
	}

	if c.Bool("json") {
		return printJSON(handlersJSON(handlers))
	}
	if len(handlers) == 0 {
		fmt.Printf("no handlers found for %s\n", ref.DisplayString())
		return nil
	}
	for _, h := range handlers {
		fmt.Printf("%s  [%s]  %s:%d:%d\n",
			h.Handler.DisplayString(), h.Role,
			h.Location.FilePath, h.Location.Line, h.Location.Column)
	}
	return nil
}

func usagesCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("usage: medlink usages <TypeName>", 1)
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signalContext()
	defer cancel()

	ref, _, err := resolveRequest(ctx, s, name)
	if err != nil {
		return err
	}

	usages, err := s.eng.Usages(ctx, ref)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return printJSON(usagesJSON(usages))
	}
	if len(usages) == 0 {
		fmt.Printf("no dispatch sites found for %s\n", ref.DisplayString())
		return nil
	}
	for _, u := range usages {
		fmt.Printf("%s.%s  %s  %s:%d\n", u.TypeName, u.MethodName, u.Dispatch, u.FilePath, u.Line)
		if u.Context != "" {
			fmt.Printf("    %s\n", u.Context)
		}
	}
	return nil
}

func scanCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := s.eng.Scan(ctx)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return printJSON(stats)
	}
	fmt.Printf("root:             %s\n", s.ws.Root())
	fmt.Printf("units:            %d (%d referencing the framework)\n", stats.Units, stats.FrameworkUnits)
	fmt.Printf("types:            %d\n", stats.Types)
	fmt.Printf("request types:    %d\n", stats.RequestTypes)
	fmt.Printf("handler types:    %d\n", stats.HandlerTypes)
	fmt.Printf("dispatch sites:   %d\n", stats.CallSites)
	fmt.Printf("cached lookups:   %d\n", stats.CachedIdentities)
	return nil
}

func statusCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Printf("root:       %s\n", s.ws.Root())
	fmt.Printf("workspace:  %s\n", s.ws.ID())
	if rc := s.eng.Cache(); rc != nil {
		fmt.Printf("cache:      %s (%d restored lookups)\n", s.cfg.Cache.Path, rc.Len())
	} else {
		fmt.Println("cache:      disabled")
	}
	if len(s.cfg.Include) > 0 {
		fmt.Printf("include:    %s\n", strings.Join(s.cfg.Include, ", "))
	}
	if len(s.cfg.Exclude) > 0 {
		fmt.Printf("exclude:    %s\n", strings.Join(s.cfg.Exclude, ", "))
	}
	return nil
}

func requestsCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signalContext()
	defer cancel()

	names, err := s.eng.RequestNames(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func watchCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signalContext()
	defer cancel()

	// Warm the index once so invalidations have something to act on.
	if _, err := s.eng.Scan(ctx); err != nil {
		return err
	}

	inv := s.eng.Cache()
	if inv == nil {
		return cli.Exit("watch requires the cache; remove --no-cache", 1)
	}

	w, err := watch.New(s.ws.Root(), inv, watch.Options{
		OnInvalidate: func(path string, count int) {
			if count < 0 {
				fmt.Printf("project change %s: cache cleared\n", path)
			} else if count > 0 {
				fmt.Printf("changed %s: dropped %d cached lookups\n", path, count)
			}
		},
	})
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Printf("watching %s\n", s.ws.Root())
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func parseRole(s string) (types.RoleKind, error) {
	switch strings.ToLower(s) {
	case "command":
		return types.RoleCommand, nil
	case "query":
		return types.RoleQuery, nil
	case "notification":
		return types.RoleNotification, nil
	}
	return 0, cli.Exit(fmt.Sprintf("unknown role %q (want command, query or notification)", s), 1)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type handlerOut struct {
	Handler  string `json:"handler"`
	Request  string `json:"request"`
	Response string `json:"response,omitempty"`
	Role     string `json:"role"`
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

func handlersJSON(handlers []types.HandlerDescriptor) []handlerOut {
	out := make([]handlerOut, 0, len(handlers))
	for _, h := range handlers {
		o := handlerOut{
			Handler:  h.Handler.DisplayString(),
			Request:  h.Request.DisplayString(),
			Role:     h.Role.String(),
			FilePath: h.Location.FilePath,
			Line:     h.Location.Line,
			Column:   h.Location.Column,
		}
		if h.Response != nil {
			o.Response = h.Response.DisplayString()
		}
		out = append(out, o)
	}
	return out
}

type usageOut struct {
	Request  string `json:"request"`
	Method   string `json:"method"`
	Type     string `json:"type"`
	Dispatch string `json:"dispatch"`
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
	Context  string `json:"context,omitempty"`
}

func usagesJSON(usages []types.UsageDescriptor) []usageOut {
	out := make([]usageOut, 0, len(usages))
	for _, u := range usages {
		out = append(out, usageOut{
			Request:  u.Request.DisplayString(),
			Method:   u.MethodName,
			Type:     u.TypeName,
			Dispatch: string(u.Dispatch),
			FilePath: u.FilePath,
			Line:     u.Line,
			Context:  u.Context,
		})
	}
	return out
}
