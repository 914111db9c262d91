package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bartek5186/barsync/internal/api"
	conf "github.com/bartek5186/barsync/internal/config"
	"github.com/bartek5186/barsync/internal/costing"
	"github.com/bartek5186/barsync/internal/importer"
	"github.com/bartek5186/barsync/internal/syncer"
	"github.com/urfave/cli/v2"
)

func kindFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "kind",
		Aliases:  []string{"k"},
		Usage:    "Import kind: ingredient | account",
		Required: true,
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Preview a file or pasted text and write it after confirmation",
		Flags: []cli.Flag{
			kindFlag(),
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "CSV/TSV/XLSX file, document or image; '-' reads text from stdin"},
			&cli.StringFlag{Name: "text", Usage: "Pasted text to import"},
			&cli.StringFlag{Name: "charset", Usage: "Source charset for delimited files (default UTF-8)"},
			&cli.BoolFlag{Name: "extract", Usage: "Send the input through the extraction service"},
			&cli.StringFlag{Name: "operator", Usage: "Operator recorded in history"},
			&cli.StringFlag{Name: "skip-rows", Usage: "Rows to leave out, e.g. 3,5,7-9"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Write without asking"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Only show the preview"},
			&cli.BoolFlag{Name: "rows", Usage: "Print every reconciled row"},
		},
		Action: runImport,
	}
}

func runImport(c *cli.Context) error {
	kind, err := importer.ParseKind(c.String("kind"))
	if err != nil {
		return err
	}
	skip, err := parseRows(c.String("skip-rows"))
	if err != nil {
		return err
	}
	in, err := readInput(c)
	if err != nil {
		return err
	}

	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := rt.svc.NewSession(kind, importer.Env{Operator: rt.operator(c.String("operator"))})
	if err != nil {
		return err
	}
	if _, err := sess.Preview(ctx, in); err != nil {
		return err
	}
	view := sess.Snapshot()
	out := c.App.Writer
	printPreview(out, view)
	if c.Bool("rows") {
		printRows(out, view.Rows, nil)
	}
	if c.Bool("dry-run") {
		return nil
	}

	if !c.Bool("yes") {
		var ok bool
		skip, ok = confirmPrompt(os.Stdin, out, view, skip)
		if !ok {
			fmt.Fprintln(out, "Anulowano, nic nie zapisano")
			return nil
		}
	}

	plan, err := sess.Confirm(skip)
	if err != nil {
		return err
	}
	if plan.Empty() {
		fmt.Fprintln(out, "Nothing to write")
	}
	res, werr := sess.Write(ctx)
	printResult(out, sess.State(), res)
	if werr != nil {
		return werr
	}
	if sess.State() == importer.StatePartiallyFailed {
		return cli.Exit("import partially failed", 2)
	}
	return nil
}

func readInput(c *cli.Context) (importer.Input, error) {
	in := importer.Input{Charset: c.String("charset"), ForceExtract: c.Bool("extract")}
	file, text := c.String("file"), c.String("text")
	switch {
	case file != "" && text != "":
		return in, errors.New("use either --file or --text")
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return in, err
		}
		in.Text = string(b)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return in, err
		}
		in.Name, in.Data = file, b
	case text != "":
		in.Text = text
	default:
		return in, errors.New("nothing to import: pass --file or --text")
	}
	return in, nil
}

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:  "template",
		Usage: "Write the import template for a kind",
		Flags: []cli.Flag{
			kindFlag(),
			&cli.StringFlag{Name: "format", Value: "csv", Usage: "csv | xlsx | json"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path; '-' for stdout (default <kind>_template.<ext>)"},
		},
		Action: func(c *cli.Context) error {
			kind, err := importer.ParseKind(c.String("kind"))
			if err != nil {
				return err
			}
			s, _ := importer.SchemaFor(kind)
			format := strings.ToLower(c.String("format"))

			var data []byte
			name := string(kind) + "_template.json"
			if format == "json" {
				data, err = json.MarshalIndent(importer.JSONSchema(s), "", "  ")
			} else {
				data, _, name, err = importer.Template(s, importer.TemplateFormat(format))
			}
			if err != nil {
				return err
			}

			switch out := c.String("out"); out {
			case "-":
				_, err = c.App.Writer.Write(data)
				return err
			case "":
			default:
				name = out
			}
			if err := os.WriteFile(name, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "Zapisano", name)
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the optional watch folder",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config)"},
			&cli.BoolFlag{Name: "watch", Usage: "Start the watch folder even if disabled in config"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.log

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w := syncer.New(component(log, "watch"), rt.svc, rt.db, rt.cfg.Watch, importer.Env{})
	if rt.cfg.Watch.Enabled || c.Bool("watch") {
		if err := w.Start(ctx); err != nil {
			log.Error().Err(err).Msg("watch: start nieudany")
		}
	}
	defer w.Stop()

	addr := c.String("addr")
	if addr == "" {
		addr = rt.cfg.Server.Addr
	}
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(component(log, "api"), api.Deps{
			Service:        rt.svc,
			Watcher:        w,
			AllowedOrigins: rt.cfg.Server.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("backend", rt.client.Name()).Msgf("barsync %s listening", ver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGHUP = przeładowanie configu watch folderu
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case err := <-errCh:
			return err
		case <-hup:
			reloadWatch(rt, w)
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shCancel()
			return srv.Shutdown(shCtx)
		}
	}
}

func reloadWatch(rt *stack, w *syncer.Syncer) {
	cfg, _, err := conf.LoadOrCreate(rt.cfgPath)
	if err != nil {
		rt.log.Error().Err(err).Msg("Błąd reloadu")
		return
	}
	conf.ApplyEnv(cfg)
	rt.cfg.Watch = cfg.Watch
	w.UpdateConfig(cfg.Watch)
	if cfg.Watch.Enabled && !w.IsRunning() {
		if err := w.Start(context.Background()); err != nil {
			rt.log.Error().Err(err).Msg("watch: start nieudany")
		}
	} else if !cfg.Watch.Enabled && w.IsRunning() {
		w.Stop()
	}
	rt.log.Info().Msg("Konfiguracja przeładowana")
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent import sessions or show one session's issues",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.StringFlag{Name: "id", Usage: "Show write failures and duplicate identifiers for a session"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()
			out := c.App.Writer
			h := rt.svc.History()

			if id := c.String("id"); id != "" {
				fails, err := h.Failures(c.Context, id)
				if err != nil {
					return err
				}
				dups, err := h.Duplicates(c.Context, id)
				if err != nil {
					return err
				}
				for _, f := range fails {
					fmt.Fprintf(out, "failed %s %q: %s\n", f.RecordID, f.Name, f.Error)
				}
				for _, d := range dups {
					fmt.Fprintf(out, "duplicate (%s) %q: %s\n", d.Scope, d.Identifier, d.Names)
				}
				if len(fails) == 0 && len(dups) == 0 {
					fmt.Fprintln(out, "No issues recorded")
				}
				return nil
			}

			recent, err := h.Recent(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			printHistory(out, recent)
			return nil
		},
	}
}

func costCommand() *cli.Command {
	return &cli.Command{
		Name:  "cost",
		Usage: "Cost recipes against the current ingredient prices",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "recipes", Aliases: []string{"r"}, Usage: "JSON file with a recipe list", Required: true},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			recipes, err := loadRecipes(c.String("recipes"))
			if err != nil {
				return err
			}
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			existing, err := rt.svc.Existing(c.Context, importer.KindIngredient)
			if err != nil {
				return err
			}
			m := costing.CostMenu(recipes, costing.NewBook(costing.FromExisting(existing)))
			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}
			printMenuCost(c.App.Writer, m)
			return nil
		},
	}
}

// loadRecipes: lista receptur albo {"recipes": [...]}
func loadRecipes(path string) ([]costing.Recipe, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var list []costing.Recipe
	if err := json.Unmarshal(b, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Recipes []costing.Recipe `json:"recipes"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, fmt.Errorf("recipes %s: %w", path, err)
	}
	return wrapped.Recipes, nil
}
