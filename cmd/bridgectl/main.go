// Command bridgectl drives the problem bridge from a terminal: it renders a
// problem through the course backend, fills fields, and saves or submits the
// same way an embedded page would.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/problem-bridge/internal/backend"
	"github.com/stemsi/problem-bridge/internal/bridge"
	"github.com/stemsi/problem-bridge/internal/config"
	"github.com/stemsi/problem-bridge/internal/logger"
	"github.com/stemsi/problem-bridge/internal/model"
	"github.com/stemsi/problem-bridge/internal/surface"
	"github.com/stemsi/problem-bridge/internal/surface/chrome"
	"github.com/stemsi/problem-bridge/internal/surface/htmldoc"
	"golang.org/x/term"
)

type setFlags []string

func (s *setFlags) String() string     { return strings.Join(*s, ",") }
func (s *setFlags) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var (
		problemID  = flag.Int("problem", 0, "Problem id (required)")
		gradeID    = flag.Int("grade", 0, "Student grade id, required to save")
		workbookID = flag.Int("workbook", 0, "Workbook id")
		readonly   = flag.Bool("readonly", false, "Render read-only")
		token      = flag.String("token", "", "Bearer token (default $BRIDGE_TOKEN, prompted when a terminal)")
		click      = flag.String("click", "", "Submit control to click (default: first submit control)")
		useChrome  = flag.Bool("chrome", false, "Render in headless Chrome (render only)")
		rawHTML    = flag.Bool("html", false, "Print the rendered HTML instead of its text")
		timeout    = flag.Duration("timeout", time.Minute, "Overall timeout")
		sets       setFlags
	)
	flag.Var(&sets, "set", "name=value to fill before saving or submitting (repeatable)")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Load()
	log := logger.SetupWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	command := flag.Arg(0)
	switch command {
	case "render", "answer", "submit":
	default:
		usage()
		os.Exit(2)
	}
	if *problemID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -problem is required")
		os.Exit(2)
	}
	if *useChrome && command != "render" {
		fmt.Fprintln(os.Stderr, "Error: -chrome only supports render")
		os.Exit(2)
	}

	sc := model.SubmissionContext{ProblemID: *problemID, Readonly: *readonly}
	if *gradeID > 0 {
		sc.GradeID = gradeID
	}
	if *workbookID > 0 {
		sc.WorkbookID = workbookID
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Token:   resolveToken(*token),
	})

	var surf surface.Surface
	var doc *htmldoc.Surface
	if *useChrome {
		cs, err := chrome.Launch(ctx, chrome.Options{FormID: cfg.ProblemFormID, Marker: cfg.ClickedMarkerClass, Logger: log})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start Chrome")
		}
		defer cs.Close()
		surf = cs
	} else {
		doc = htmldoc.New(htmldoc.Options{Marker: cfg.ClickedMarkerClass})
		surf = doc
	}

	run := newRunner()
	page := &printPage{}
	ctrl := bridge.New(ctx, client, surf, page, bridge.Config{
		FormID:     cfg.ProblemFormID,
		SaveWait:   cfg.SaveDebounce,
		SubmitWait: cfg.SubmitDebounce,
		Go:         run.Go,
		Logger:     log,
	})
	defer ctrl.Close()

	if err := ctrl.SetContext(sc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", ctrl.Snapshot().Surface.ErrorMessage)
		os.Exit(1)
	}

	if command == "render" {
		printRender(ctrl.Snapshot(), doc, cfg.ProblemFormID, *rawHTML)
		return
	}

	current, _ := doc.Current()
	f := current.HTMLForm(cfg.ProblemFormID)
	if f == nil {
		fmt.Fprintf(os.Stderr, "Error: no form %q in the rendered problem\n", cfg.ProblemFormID)
		os.Exit(1)
	}
	if err := fill(f, sets); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if command == "submit" {
		name := *click
		if name == "" {
			controls := f.SubmitControls()
			if len(controls) == 0 {
				fmt.Fprintln(os.Stderr, "Error: the form has no submit control")
				os.Exit(1)
			}
			name = controls[0].Name
		}
		if err := f.Click(name); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	}

	if err := run.settle(ctx, ctrl.Dispatcher()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printOutcome(ctrl.Snapshot(), page.Grade())
}

// fill applies name=value pairs. Text-like fields and selects are set;
// checkboxes and radios with a matching value are checked.
func fill(f *htmldoc.Form, sets []string) error {
	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("-set %q: expected name=value", kv)
		}
		if err := f.SetValue(name, value); err == nil {
			continue
		}
		if err := f.Check(name, value, true); err != nil {
			return fmt.Errorf("-set %q: no settable field", kv)
		}
	}
	return nil
}

func resolveToken(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("BRIDGE_TOKEN"); env != "" {
		return env
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return ""
	}
	fmt.Fprint(os.Stderr, "Token (empty for none): ")
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func printRender(s model.BridgeSnapshot, doc *htmldoc.Surface, formID string, raw bool) {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	if raw {
		fmt.Fprintln(w, s.Surface.HTMLContent)
		return
	}
	fmt.Fprintf(w, "Problem %d  phase=%s  height=%dpx\n", s.ProblemID, s.Phase, s.Surface.HeightPx)
	if doc == nil {
		return
	}
	current, _ := doc.Current()
	fmt.Fprintf(w, "\n%s\n", current.Text())

	f := current.HTMLForm(formID)
	if f == nil {
		fmt.Fprintf(w, "\n(no form %q)\n", formID)
		return
	}
	fmt.Fprintln(w, "\nFields:")
	for _, fi := range f.Fields() {
		fmt.Fprintf(w, "  %-24s %-10s %s\n", fi.Name, fi.Type, strings.Join(fi.Options, " | "))
	}
	fmt.Fprintln(w, "Submit controls:")
	for _, c := range f.SubmitControls() {
		fmt.Fprintf(w, "  %s (%s)\n", c.Name, c.Value)
	}
}

func printOutcome(s model.BridgeSnapshot, grade *model.StudentGrade) {
	if s.Surface.ErrorMessage != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", s.Surface.ErrorMessage)
		os.Exit(1)
	}
	if s.LastSavedAt != nil {
		fmt.Printf("Saved at %s\n", s.LastSavedAt.Format(time.RFC3339))
	}
	if s.LastSubmittedAt != nil {
		fmt.Printf("Submitted at %s\n", s.LastSubmittedAt.Format(time.RFC3339))
	}
	if grade != nil {
		out, _ := json.MarshalIndent(grade, "", "  ")
		fmt.Printf("%s\n", out)
	}
	if s.LastSavedAt == nil && s.LastSubmittedAt == nil {
		fmt.Println("Nothing changed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: bridgectl [flags] <render|answer|submit>")
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}
