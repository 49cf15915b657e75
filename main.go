// entsub: named-entity substitution for machine translation benchmarks.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/eamt-tools/entsub/checkpoint"
	"github.com/eamt-tools/entsub/config"
	"github.com/eamt-tools/entsub/dict"
	"github.com/eamt-tools/entsub/entity"
	"github.com/eamt-tools/entsub/i18n"
	"github.com/eamt-tools/entsub/langmeta"
	"github.com/eamt-tools/entsub/ner"
	"github.com/eamt-tools/entsub/normalize"
	"github.com/eamt-tools/entsub/pipeline"
	"github.com/eamt-tools/entsub/records"
	"github.com/eamt-tools/entsub/relocate"
	"github.com/eamt-tools/entsub/resolve"
	"github.com/eamt-tools/entsub/settings"
	"github.com/eamt-tools/entsub/translate"
	"github.com/eamt-tools/entsub/wikidata"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

var (
	colorInfo    = color.New(color.FgBlue)
	colorSuccess = color.New(color.FgGreen)
	colorWarning = color.New(color.FgYellow, color.Bold)
	colorError   = color.New(color.FgRed)
	colorDebug   = color.New(color.FgHiBlack)
)

// logSink receives an uncolored, timestamped copy of every log line,
// debug lines included. Set by --log-file.
var logSink io.Writer

// verbose enables debug lines on stderr.
var verbose bool

func logLine(c *color.Color, tag, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(color.Error, "%s %s\n", c.Sprint(tag), msg)
	logToSink(tag, msg)
}

func logToSink(tag, msg string) {
	if logSink != nil {
		fmt.Fprintf(logSink, "%s %s %s\n", time.Now().Format(time.RFC3339), tag, msg)
	}
}

func logInfo(format string, args ...any) {
	logLine(colorInfo, "[INFO]", format, args...)
}

func logSuccess(format string, args ...any) {
	logLine(colorSuccess, "[OK]", format, args...)
}

func logWarning(format string, args ...any) {
	logLine(colorWarning, "[WARN]", format, args...)
}

func logError(format string, args ...any) {
	logLine(colorError, "[ERROR]", format, args...)
}

func logDebug(format string, args ...any) {
	if verbose {
		logLine(colorDebug, "[DEBUG]", format, args...)
		return
	}
	logToSink("[DEBUG]", fmt.Sprintf(format, args...))
}

// openLogFile points logSink at a size-rotated file.
func openLogFile(path string) io.Closer {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	logSink = lj
	return lj
}

// progressBar renders a colored bar followed by the percentage.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	c := colorError
	switch {
	case percent >= 100:
		c = colorSuccess
	case percent >= 50:
		c = colorWarning
	}
	return fmt.Sprintf("%s %3d%%", c.Sprint(bar), percent)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	configPath string
	logFile    string

	// projectConfig is .entsub.yaml, or nil when there is none.
	projectConfig *config.File
	logCloser     io.Closer
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "entsub",
		Short: "Named-entity substitution for machine translation",
		Long: `entsub translates benchmark sentences with an LLM and repairs the
named entities in each translation with their localized knowledge-base
labels.

Commands:
  run        Translate a JSONL file of records and substitute entities
  resolve    Look up the localized label of one mention
  relocate   Splice a label into a sentence by fuzzy matching
  extract    Show the named entities found in a sentence
  submit     Pair records with a file of translated lines
  corpus     Flatten reference files into a parallel corpus
  status     Show configuration and checkpoint state
  prompts    Show or write the prompt overrides
  auth       Manage provider credentials

AI Providers:
  google         Google AI (Gemini), API key
  groq           Groq, API key
  qwen           Qwen via DashScope, API key
  openrouter     OpenRouter, API key
  anthropic      Anthropic, API key
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./"+config.FileName+")")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable detailed logging")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write all diagnostics to this file (rotated)")

	root.AddCommand(
		newRunCmd(),
		newResolveCmd(),
		newRelocateCmd(),
		newExtractCmd(),
		newSubmitCmd(),
		newCorpusCmd(),
		newStatusCmd(),
		newPromptsCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

// setup runs before every command: .env, message catalog, config file and
// log file.
func setup() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logWarning("Failed to read .env: %v", err)
	}
	i18n.Init("")

	var err error
	if configPath != "" {
		projectConfig, err = config.LoadFile(configPath)
		if err == nil && projectConfig == nil {
			err = fmt.Errorf("config file %s not found", configPath)
		}
	} else {
		projectConfig, err = config.Load(".")
	}
	if err != nil {
		return err
	}

	if logFile == "" && projectConfig != nil {
		logFile = projectConfig.LogFile
	}
	if logFile != "" {
		logCloser = openLogFile(logFile)
	}
	return nil
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		logError("%v", err)
	}
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("entsub version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

// kbArgs configures the knowledge-base client.
type kbArgs struct {
	url, proxy    string
	rate, timeout time.Duration
	retries       int
}

func addKBFlags(fs *pflag.FlagSet, kb *kbArgs) {
	fs.StringVar(&kb.url, "kb-url", wikidata.DefaultBaseURL, "Knowledge base URL")
	fs.StringVar(&kb.proxy, "kb-proxy", "", "HTTP/HTTPS proxy for knowledge base requests")
	fs.DurationVar(&kb.rate, "kb-rate", 500*time.Millisecond, "Minimum interval between knowledge base requests (0 = unlimited)")
	fs.DurationVar(&kb.timeout, "kb-timeout", 30*time.Second, "Knowledge base request timeout")
	fs.IntVar(&kb.retries, "kb-retries", 2, "Retries after a failed knowledge base request")
}

// applyKBConfig fills knowledge-base settings the command line left unset.
func applyKBConfig(fs *pflag.FlagSet, kb *kbArgs, cfg *config.File) {
	if cfg == nil {
		return
	}
	setString(fs, "kb-url", &kb.url, cfg.KB.URL)
	setString(fs, "kb-proxy", &kb.proxy, cfg.KB.Proxy)
	setDuration(fs, "kb-rate", &kb.rate, cfg.KB.Rate)
	setDuration(fs, "kb-timeout", &kb.timeout, cfg.KB.Timeout)
	if cfg.KB.Retries > 0 && !fs.Changed("kb-retries") {
		kb.retries = cfg.KB.Retries
	}
}

func setString(fs *pflag.FlagSet, name string, dst *string, v string) {
	if v != "" && !fs.Changed(name) {
		*dst = v
	}
}

func setDuration(fs *pflag.FlagSet, name string, dst *time.Duration, v time.Duration) {
	if v > 0 && !fs.Changed(name) {
		*dst = v
	}
}

func newKnowledgeBase(kb kbArgs) *wikidata.Client {
	cfg := wikidata.Config{
		BaseURL:    kb.url,
		Proxy:      kb.proxy,
		Timeout:    kb.timeout,
		MaxRetries: kb.retries,
		RateLimit:  rate.Inf,
		OnLog:      logDebug,
	}
	if kb.rate > 0 {
		cfg.RateLimit = rate.Every(kb.rate)
	}
	return wikidata.New(cfg)
}

// newSource consults the dictionary, when there is one, before kb.
func newSource(kb resolve.KnowledgeBase, d *dict.Dictionary) resolve.Source {
	res := resolve.New(kb)
	res.OnLog = logDebug
	if d == nil {
		return res
	}
	return resolve.Chain{dict.Source{Dict: d}, res}
}

// seedCache stores the dictionary labels of every target locale in recs,
// so mentions spelled like a dictionary entry never reach the source.
func seedCache(c *resolve.Cache, d *dict.Dictionary, recs []records.Record) int {
	if d == nil {
		return 0
	}
	seen := make(map[string]bool)
	n := 0
	for _, rec := range recs {
		if seen[rec.TargetLocale] {
			continue
		}
		seen[rec.TargetLocale] = true
		for _, e := range d.Entries() {
			if label, ok := e.Label(rec.TargetLocale); ok {
				c.Put(e.NE, rec.TargetLocale, resolve.Entity{SourceLabel: e.NE, LocalizedLabel: label})
				n++
			}
		}
	}
	return n
}

func loadDict(path string) (*dict.Dictionary, error) {
	if path == "" {
		return nil, nil
	}
	d, err := dict.Load(path)
	if err != nil {
		return nil, err
	}
	logInfo("Loaded %d dictionary entries from %s", d.Len(), path)
	return d, nil
}

type runArgs struct {
	input, output, lines, failures string
	langs                          string
	limit                          int

	strategy, extractor string
	nerModel, dict      string
	prompts             string
	skipEntity          bool

	provider, apiKey, model, baseURL, proxy string
	timeout                                 time.Duration
	maxRetries                              int

	kb kbArgs

	checkpoint string
	resume     bool
}

// applyConfig fills every option the command line left unset from cfg.
func applyConfig(fs *pflag.FlagSet, a *runArgs, cfg *config.File) {
	if cfg == nil {
		return
	}
	setString(fs, "provider", &a.provider, cfg.Provider)
	setString(fs, "model", &a.model, cfg.Model)
	setString(fs, "base-url", &a.baseURL, cfg.BaseURL)
	setString(fs, "proxy", &a.proxy, cfg.Proxy)
	setDuration(fs, "timeout", &a.timeout, cfg.Timeout)
	setString(fs, "strategy", &a.strategy, cfg.Strategy)
	setString(fs, "extractor", &a.extractor, cfg.Extractor)
	setString(fs, "ner-model", &a.nerModel, cfg.NERModel)
	setString(fs, "dict", &a.dict, cfg.Dict)
	setString(fs, "prompts", &a.prompts, cfg.Prompts)
	setString(fs, "checkpoint", &a.checkpoint, cfg.Checkpoint)
	if cfg.SkipEntity && !fs.Changed("skip-entity") {
		a.skipEntity = true
	}
	if len(cfg.Languages) > 0 && !fs.Changed("lang") {
		a.langs = strings.Join(cfg.Languages, ",")
	}
	applyKBConfig(fs, &a.kb, cfg)
}

func newRunCmd() *cobra.Command {
	var a runArgs

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Translate records and substitute named entities",
		Long: `Translate every record of a JSONL file and repair its named entities.

Each input line is {"id", "source", "source_locale", "target_locale"}.
Predictions are written as JSONL in input order; records that fail are
skipped and listed in the failure log.

Strategies:
  post-edit  translate, then relocate localized labels in the translation
  pre-edit   replace mentions in the source, then translate
  hint       pass localized labels to the model as a dictionary

Examples:
  # Translate with Gemini and a local NER model
  entsub run --input test.jsonl --output pred.jsonl --provider google --model gemini-2.0-flash

  # Let the LLM list the entities, only German and Italian
  entsub run --input test.jsonl --output pred.jsonl --extractor llm --lang de_DE,it_IT

  # Continue an interrupted run
  entsub run --input test.jsonl --output pred.jsonl --resume`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfig(cmd.Flags(), &a, projectConfig)
			return runBatch(a)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&a.input, "input", "i", "", "Input records (JSONL)")
	f.StringVarP(&a.output, "output", "o", "", "Output predictions (JSONL)")
	f.StringVar(&a.lines, "lines", "", "Also write one translation per input line to this file")
	f.StringVar(&a.failures, "failures", "", "Write failed records to this JSONL file")
	f.StringVar(&a.langs, "lang", "", "Target locales to process (comma-separated, default: all)")
	f.IntVar(&a.limit, "limit", 0, "Process at most N records (0 = all)")

	f.StringVar(&a.strategy, "strategy", config.DefaultStrategy, "Substitution strategy: post-edit, pre-edit, hint")
	f.StringVar(&a.extractor, "extractor", config.DefaultExtractor, "Entity extractor: bio, llm, none")
	f.StringVar(&a.nerModel, "ner-model", "", "NER model directory or Hugging Face name (default: "+ner.DefaultModel+")")
	f.StringVar(&a.dict, "dict", "", "Entity dictionary (JSONL) consulted before the knowledge base")
	f.StringVar(&a.prompts, "prompts", "", "Prompt overrides (default: prompts.json in the data directory)")
	f.BoolVar(&a.skipEntity, "skip-entity", false, "Skip an unresolved entity instead of leaving the rest of the sentence alone")

	f.StringVar(&a.provider, "provider", translate.ProviderGoogle, "AI provider: "+strings.Join(translate.ProviderIDs(), ", "))
	f.StringVar(&a.model, "model", "", "Model name (default: provider default)")
	f.StringVar(&a.apiKey, "api-key", "", "API key (or "+settings.EnvAPIKey+" env var)")
	f.StringVar(&a.baseURL, "base-url", "", "Custom API base URL")
	f.StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	f.DurationVar(&a.timeout, "timeout", 0, "Translation request timeout (0 = provider default)")
	f.IntVar(&a.maxRetries, "max-retries", 3, "Maximum retries per translation request")

	addKBFlags(f, &a.kb)

	f.StringVar(&a.checkpoint, "checkpoint", checkpoint.FileName, "Checkpoint file")
	f.BoolVar(&a.resume, "resume", false, "Reuse predictions stored in the checkpoint")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return translate.ProviderIDs(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("strategy", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"post-edit", "pre-edit", "hint"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("lang", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return langmeta.Codes(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runBatch(a runArgs) error {
	strategy, err := pipeline.ParseStrategy(a.strategy)
	if err != nil {
		return err
	}

	recs, err := records.ReadRecords(a.input)
	if err != nil {
		return err
	}
	recs = filterRecords(recs, splitList(a.langs), a.limit)
	if len(recs) == 0 {
		logWarning("%s", i18n.T("No records to process"))
		return nil
	}
	for _, l := range unknownLocales(recs) {
		logWarning("Unknown target locale %s; the knowledge base is queried with %q", l, langmeta.KBCode(l))
	}

	runID := uuid.New().String()
	logDebug("run %s: %d records, strategy %s, extractor %s", runID, len(recs), strategy, a.extractor)

	// Translator
	prov := resolveProvider(a.provider, a.baseURL, settings.ResolveAPIKey(a.provider, a.apiKey), a.model, a.proxy, a.timeout)
	if err := validateProvider(prov); err != nil {
		return err
	}
	prompts, err := loadPrompts(a.prompts)
	if err != nil {
		return err
	}
	client, err := translate.New(translate.Options{
		Provider:   prov,
		MaxRetries: a.maxRetries,
		Prompts:    prompts,
		OnLog:      logDebug,
		OnError:    logWarning,
		Verbose:    verbose,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !client.Available(ctx) {
		return fmt.Errorf("provider '%s' is not reachable at %s\n\n"+
			"Start Ollama with: ollama serve\n"+
			"Install from: https://ollama.com", prov.ID, prov.BaseURL)
	}

	// Entity pipeline
	extractor, closeExtractor, err := newExtractor(a.extractor, a.nerModel, client)
	if err != nil {
		return err
	}
	defer closeExtractor()

	d, err := loadDict(a.dict)
	if err != nil {
		return err
	}
	kb := newKnowledgeBase(a.kb)
	cache := resolve.NewCache()
	if n := seedCache(cache, d, recs); n > 0 {
		logDebug("Seeded cache with %d dictionary labels", n)
	}
	sub := &pipeline.Substituter{
		Extractor:  extractor,
		Source:     newSource(kb, d),
		Cache:      cache,
		SkipEntity: a.skipEntity,
		OnLog:      logDebug,
	}

	cp, err := checkpoint.LoadFile(a.checkpoint)
	if err != nil {
		return err
	}
	if a.resume {
		logInfo("Checkpoint %s: %s", cp.Path(), cp.Summary())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logWarning("%s", i18n.T("Interrupted, saving progress..."))
			cancel()
		case <-ctx.Done():
		}
	}()

	logInfo("Translating %d records with %s (%s), strategy %s", len(recs), prov.Name, prov.Model, strategy)

	showBar := !verbose && !color.NoColor
	runner := &pipeline.Runner{
		Translator:  client,
		Substituter: sub,
		Dict:        d,
		Strategy:    strategy,
		Checkpoint:  cp,
		Resume:      a.resume,
		OnLog:       logDebug,
		OnResult: func(n, total int, r pipeline.Result) {
			if r.Ok() {
				for _, s := range r.Substitutions {
					if s.Applied {
						logDebug("%s: %q -> %q", r.Record.ID, s.Mention, s.LocalizedLabel)
					} else {
						logDebug("%s: %q skipped (%s)", r.Record.ID, s.Mention, s.Reason)
					}
				}
			}
			if showBar {
				fmt.Fprintf(color.Error, "\r  %s %d/%d", progressBar(n*100/total, 30), n, total)
			}
		},
	}
	rep := runner.Run(ctx, recs)
	if showBar {
		fmt.Fprintln(color.Error)
	}

	if err := cp.Save(); err != nil {
		logWarning("Failed to save checkpoint: %v", err)
	}
	if err := writeOutputs(a, runID, recs, rep); err != nil {
		return err
	}

	printSummary(rep, kb.Stats(), a)
	return nil
}

// filterRecords keeps the records whose target locale is in langs (all
// when langs is empty), at most limit of them when limit > 0.
func filterRecords(recs []records.Record, langs []string, limit int) []records.Record {
	var out []records.Record
	for _, rec := range recs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if len(langs) > 0 && !containsFold(langs, rec.TargetLocale) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, l := range list {
		if strings.EqualFold(l, s) {
			return true
		}
	}
	return false
}

// unknownLocales returns target locales missing from the registry, once
// each, in order of appearance.
func unknownLocales(recs []records.Record) []string {
	var out []string
	seen := make(map[string]bool)
	for _, rec := range recs {
		l := rec.TargetLocale
		if seen[l] || langmeta.Known(l) {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadPrompts(path string) (translate.PromptsConfig, error) {
	if path == "" {
		p, err := settings.PromptsFilePath()
		if err != nil {
			return translate.DefaultPrompts(), nil
		}
		path = p
	}
	return translate.LoadPrompts(path)
}

// newExtractor builds the mention source named by kind. The returned
// function releases it.
func newExtractor(kind, nerModel string, lister ner.EntityLister) (ner.Extractor, func(), error) {
	noop := func() {}
	switch kind {
	case "none":
		return ner.None, noop, nil
	case "llm":
		if lister == nil {
			return nil, nil, errors.New("the llm extractor needs a translation provider")
		}
		return ner.LLMExtractor{Lister: lister}, noop, nil
	case "", "bio":
		tagger, err := loadTagger(nerModel)
		if err != nil {
			return nil, nil, err
		}
		return ner.BIOExtractor{Tagger: tagger}, func() {
			if err := tagger.Close(); err != nil {
				logWarning("Failed to release NER model: %v", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown extractor %q (want bio, llm or none)", kind)
}

func loadTagger(model string) (*ner.HugotTagger, error) {
	if model == "" {
		model = ner.DefaultModel
	}
	dir, err := settings.DataDir()
	if err != nil {
		return nil, err
	}
	path, err := ner.PrepareModel(model, filepath.Join(dir, "models"))
	if err != nil {
		return nil, err
	}
	logInfo("Loading NER model from %s", path)
	return ner.NewHugotTagger(path)
}

// failureEntry is one line of the failure log.
type failureEntry struct {
	RunID string `json:"run_id"`
	pipeline.Failure
}

func failureEntries(runID string, fails []pipeline.Failure) []failureEntry {
	out := make([]failureEntry, len(fails))
	for i, f := range fails {
		out[i] = failureEntry{RunID: runID, Failure: f}
	}
	return out
}

// alignedLines returns one translation per record. Records without a
// prediction get an empty line so line n always belongs to record n.
func alignedLines(recs []records.Record, preds []records.Prediction) []string {
	byKey := make(map[string]string, len(preds))
	for _, p := range preds {
		byKey[p.ID+"\x00"+p.TargetLanguage] = p.Prediction
	}
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = byKey[rec.ID+"\x00"+rec.TargetLocale]
	}
	return out
}

func writeOutputs(a runArgs, runID string, recs []records.Record, rep pipeline.Report) error {
	if err := records.WritePredictions(a.output, rep.Predictions); err != nil {
		return err
	}
	logSuccess("Wrote %d predictions to %s", len(rep.Predictions), a.output)

	if a.lines != "" {
		if err := records.WriteLines(a.lines, alignedLines(recs, rep.Predictions)); err != nil {
			return err
		}
		logSuccess("Wrote %d lines to %s", len(recs), a.lines)
	}
	if a.failures != "" && len(rep.Failures) > 0 {
		if err := records.WriteJSONL(a.failures, failureEntries(runID, rep.Failures)); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(rep pipeline.Report, kb wikidata.Stats, a runArgs) {
	st := rep.Stats

	logSuccess(i18n.N("%d sentence translated", "%d sentences translated", st.Succeeded), st.Succeeded)
	if st.Resumed > 0 {
		logInfo(i18n.N("%d prediction reused from the checkpoint", "%d predictions reused from the checkpoint", st.Resumed), st.Resumed)
	}
	logInfo(i18n.T("Entities: %d substituted, %d skipped"), st.Substituted, st.Skipped)
	logInfo(i18n.T("Cache: %d entries, %d hits, %d misses"), st.Cache.Entries, st.Cache.Hits, st.Cache.Misses)
	logDebug("knowledge base: %d searches, %d fetches, %d retries", kb.Searches, kb.Fetches, kb.Retries)

	if st.Failed > 0 {
		logWarning(i18n.N("%d sentence failed", "%d sentences failed", st.Failed), st.Failed)
		if a.failures != "" {
			logWarning(i18n.T("Failed records: %s"), a.failures)
		} else {
			for _, f := range rep.Failures {
				logWarning("  %s (%s): %s", f.ID, f.TargetLocale, f.Reason)
			}
		}
	}
	if st.Interrupted {
		logWarning(i18n.T("Interrupted after %d of %d sentences; resume with --resume"), st.Succeeded+st.Failed, st.Total)
	}
	logInfo(i18n.T("Done in %s"), st.Elapsed.Round(time.Millisecond))
}

// ---------------------------------------------------------------------------
// Provider selection
// ---------------------------------------------------------------------------

func resolveProvider(name, baseURL, apiKey, model, proxy string, timeout time.Duration) translate.Provider {
	defaults := translate.DefaultProviders()

	var prov translate.Provider

	if p, ok := defaults[strings.ToLower(name)]; ok {
		prov = p
	} else {
		prov = translate.Provider{
			ID:      translate.ProviderCustomOpenAI,
			Name:    name,
			BaseURL: name,
			Timeout: 60 * time.Second,
		}
	}

	if baseURL != "" {
		prov.BaseURL = baseURL
	} else if storedURL := settings.GetBaseURL(prov.ID); storedURL != "" {
		prov.BaseURL = storedURL
	}
	if model != "" {
		prov.Model = model
	} else if storedModel := settings.GetModel(prov.ID); storedModel != "" {
		prov.Model = storedModel
	}
	if apiKey != "" {
		prov.APIKey = apiKey
	}
	if proxy != "" {
		prov.Proxy = proxy
	}
	if timeout > 0 {
		prov.Timeout = timeout
	}

	return prov
}

var modelExamples = map[string]string{
	translate.ProviderGoogle:       "gemini-2.0-flash, gemini-2.5-flash",
	translate.ProviderGroq:         "llama-3.3-70b-versatile, qwen/qwen3-32b",
	translate.ProviderQwen:         "qwen-mt-plus, qwen-max",
	translate.ProviderOpenRouter:   "google/gemini-2.0-flash-001, meta-llama/llama-3.3-70b-instruct",
	translate.ProviderAnthropic:    "claude-3-5-haiku-latest",
	translate.ProviderOllama:       "qwen2.5:7b, llama3.2, mistral",
	translate.ProviderCustomOpenAI: "depends on your endpoint",
}

func validateProvider(prov translate.Provider) error {
	if prov.Model == "" {
		examples := modelExamples[prov.ID]
		if examples == "" {
			examples = "check provider documentation"
		}
		return fmt.Errorf("--model is required for provider '%s'\n\n"+
			"Example models for %s:\n  %s\n\n"+
			"Usage: --provider %s --model MODEL_NAME",
			prov.ID, prov.Name, examples, prov.ID)
	}

	switch {
	case prov.ID == translate.ProviderCustomOpenAI && prov.BaseURL == "":
		return fmt.Errorf("provider 'custom-openai' requires an endpoint URL\n\n" +
			"Option 1: Store it:\n" +
			"  entsub auth set --provider custom-openai --base-url https://api.example.com/v1\n\n" +
			"Option 2: Pass it directly:\n" +
			"  --base-url https://api.example.com/v1")

	case prov.NeedsAPIKey() && prov.APIKey == "":
		return fmt.Errorf("provider '%s' requires an API key\n\n"+
			"Option 1: Store your API key:\n"+
			"  entsub auth set --provider %s\n\n"+
			"Option 2: Pass key directly:\n"+
			"  --api-key YOUR_KEY or export %s=YOUR_KEY",
			prov.ID, prov.ID, settings.EnvAPIKey)
	}
	return nil
}

// ---------------------------------------------------------------------------
// resolve
// ---------------------------------------------------------------------------

func newResolveCmd() *cobra.Command {
	var (
		lang     string
		dictPath string
		kb       kbArgs
	)

	cmd := &cobra.Command{
		Use:   "resolve MENTION",
		Short: "Look up the localized label of a mention",
		Long: `Search the knowledge base for MENTION, pick the best candidate and print
its cleaned source label and its label in the target locale, separated by
a tab.

Example:
  entsub resolve "Barack Obama" --lang ja_JP`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyKBConfig(cmd.Flags(), &kb, projectConfig)
			if dictPath == "" && projectConfig != nil {
				dictPath = projectConfig.Dict
			}
			d, err := loadDict(dictPath)
			if err != nil {
				return err
			}

			mention := normalize.StripPunctSpacing(args[0])
			ent, err := newSource(newKnowledgeBase(kb), d).Resolve(cmd.Context(), mention, lang)
			if err != nil {
				if resolve.IsNotFound(err) {
					return fmt.Errorf("%s: %w", i18n.T("not found"), err)
				}
				return err
			}
			fmt.Printf("%s\t%s\n", ent.SourceLabel, ent.LocalizedLabel)
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "Target locale (e.g. de_DE)")
	cmd.Flags().StringVar(&dictPath, "dict", "", "Entity dictionary (JSONL) consulted first")
	addKBFlags(cmd.Flags(), &kb)
	_ = cmd.MarkFlagRequired("lang")

	return cmd
}

// ---------------------------------------------------------------------------
// relocate
// ---------------------------------------------------------------------------

func newRelocateCmd() *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "relocate NE SENTENCE LABEL",
		Short: "Replace the best fuzzy match of an entity in a sentence",
		Long: `Find the span of SENTENCE that best matches NE, widen it to whole words
and replace it with LABEL.

Example:
  entsub relocate "France" "Was ist die Hauptstadt von Frankreich?" "Frankreich"`,
		Args: cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			ne, sentence, label := args[0], args[1], args[2]
			if explain {
				fmt.Fprint(os.Stderr, explainRelocation(ne, sentence, label))
			}
			fmt.Println(relocate.Relocate(ne, sentence, label))
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "Show the matched window and its score")
	return cmd
}

func explainRelocation(ne, sentence, label string) string {
	m := relocate.Find(ne, sentence)
	s := []rune(sentence)
	var b strings.Builder
	fmt.Fprintf(&b, "window:   %q [%d:%d] score %d\n", string(s[m.Window.Start:m.Window.End]), m.Window.Start, m.Window.End, m.Score)
	fmt.Fprintf(&b, "expanded: %q [%d:%d]\n", string(s[m.Expanded.Start:m.Expanded.End]), m.Expanded.Start, m.Expanded.End)
	if relocate.Placed(m, sentence, label) {
		fmt.Fprintf(&b, "label %q already present, sentence unchanged\n", label)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// extract
// ---------------------------------------------------------------------------

func newExtractCmd() *cobra.Command {
	var (
		tags     string
		nerModel string
		raw      bool
		textOnly bool
	)

	cmd := &cobra.Command{
		Use:   "extract [TEXT]",
		Short: "Show the named entities of a sentence",
		Long: `Run the BIO merge over a tagged sentence and print one mention per line
as TYPE<tab>TEXT, or just TEXT with --text-only.

Tags can be given by hand with --tags, or produced by the NER model.

Examples:
  entsub extract --tags "What/O is/O the/O capital/O of/O Fr/B-LOC ##ance/I-LOC"
  entsub extract "Who wrote The Hobbit?" --ner-model ./models/distilbert-NER`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tagger ner.Tagger
				text   string
			)
			switch {
			case tags != "":
				st, err := ner.ParseTags(tags)
				if err != nil {
					return err
				}
				tagger, text = st, st.Text()
			case len(args) == 1:
				if nerModel == "" && projectConfig != nil {
					nerModel = projectConfig.NERModel
				}
				ht, err := loadTagger(nerModel)
				if err != nil {
					return err
				}
				defer ht.Close()
				tagger, text = ht, args[0]
			default:
				return errors.New("give a sentence or --tags")
			}

			toks, err := tagger.Tag(cmd.Context(), text)
			if err != nil {
				return err
			}
			if raw {
				for _, t := range toks {
					fmt.Printf("%s\t%s\n", t.Word, t.Tag)
				}
				fmt.Println()
			}
			fmt.Print(formatMentions(entity.Merge(toks), textOnly))
			return nil
		},
	}

	cmd.Flags().StringVar(&tags, "tags", "", `Pre-tagged sentence ("word/TAG word/TAG ...")`)
	cmd.Flags().StringVar(&nerModel, "ner-model", "", "NER model directory or Hugging Face name")
	cmd.Flags().BoolVar(&raw, "raw", false, "Also print the tagged tokens")
	cmd.Flags().BoolVar(&textOnly, "text-only", false, "Print only the mention texts")
	return cmd
}

func formatMentions(ms []entity.Mention, textOnly bool) string {
	var b strings.Builder
	if textOnly {
		for _, t := range entity.Texts(ms) {
			b.WriteString(t + "\n")
		}
		return b.String()
	}
	for _, m := range ms {
		fmt.Fprintf(&b, "%s\t%s\n", m.Type, m.Text)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// submit / corpus
// ---------------------------------------------------------------------------

func newSubmitCmd() *cobra.Command {
	var input, lines, output string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Pair records with translated lines",
		Long: `Build a predictions file from the input records and a plain text file
holding one translation per record, in the same order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := records.ReadRecords(input)
			if err != nil {
				return err
			}
			ls, err := records.ReadLines(lines)
			if err != nil {
				return err
			}
			preds, err := records.BuildSubmission(recs, ls)
			if err != nil {
				return err
			}
			if err := records.WritePredictions(output, preds); err != nil {
				return err
			}
			logSuccess("Wrote %d predictions to %s", len(preds), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input records (JSONL)")
	cmd.Flags().StringVar(&lines, "lines", "", "Translations, one per line")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output predictions (JSONL)")
	for _, name := range []string{"input", "lines", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newCorpusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "corpus REF.jsonl...",
		Short: "Flatten reference files into a parallel corpus",
		Long: `Read benchmark reference files and write one source/target pair per
gold translation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := records.ReadReferences(args...)
			if err != nil {
				return err
			}
			rows := records.FlattenReferences(refs)
			if err := records.WriteJSONL(output, rows); err != nil {
				return err
			}
			logSuccess("Wrote %d sentence pairs from %d references to %s", len(rows), len(refs), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output corpus (JSONL)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// ---------------------------------------------------------------------------
// status
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var (
		cpPath string
		prune  string
		forget []string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and checkpoint state",
		Long: `Show the active configuration and what the checkpoint holds.

--prune drops checkpoint entries whose record no longer exists in the
given input file; --forget drops every entry of a locale.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("checkpoint") && projectConfig != nil && projectConfig.Checkpoint != "" {
				cpPath = projectConfig.Checkpoint
			}

			fmt.Fprintf(os.Stderr, "\n%s\n", colorInfo.Sprint("entsub status"))
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			if projectConfig != nil {
				fmt.Fprintf(os.Stderr, "  %-12s %s\n", "config:", projectConfig.Path())
				fmt.Fprintf(os.Stderr, "  %-12s %s / %s\n", "provider:", orDefault(projectConfig.Provider, "-"), orDefault(projectConfig.Model, "-"))
				fmt.Fprintf(os.Stderr, "  %-12s %s\n", "strategy:", projectConfig.Strategy)
				fmt.Fprintf(os.Stderr, "  %-12s %s\n", "extractor:", projectConfig.Extractor)
				if len(projectConfig.Languages) > 0 {
					fmt.Fprintf(os.Stderr, "  %-12s %s\n", "languages:", strings.Join(projectConfig.Languages, ", "))
				}
			} else {
				fmt.Fprintf(os.Stderr, "  %-12s %s\n", "config:", "none")
			}

			cp, err := checkpoint.LoadFile(cpPath)
			if err != nil {
				return err
			}
			changed := false
			for _, l := range forget {
				cp.RemoveLocale(l)
				changed = true
			}
			if prune != "" {
				recs, err := records.ReadRecords(prune)
				if err != nil {
					return err
				}
				for locale, ids := range idsByLocale(recs) {
					cp.Clean(locale, ids)
				}
				changed = true
			}
			if changed {
				if err := cp.Save(); err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stderr, "  %-12s %s (%s)\n\n", "checkpoint:", cp.Path(), cp.Summary())
			return nil
		},
	}

	cmd.Flags().StringVar(&cpPath, "checkpoint", checkpoint.FileName, "Checkpoint file")
	cmd.Flags().StringVar(&prune, "prune", "", "Drop checkpoint entries not in this input file")
	cmd.Flags().StringSliceVar(&forget, "forget", nil, "Drop checkpoint entries of these locales")
	return cmd
}

// idsByLocale groups record IDs by target locale.
func idsByLocale(recs []records.Record) map[string][]string {
	out := make(map[string][]string)
	for _, rec := range recs {
		out[rec.TargetLocale] = append(out[rec.TargetLocale], rec.ID)
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ---------------------------------------------------------------------------
// prompts
// ---------------------------------------------------------------------------

func newPromptsCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Show or write the prompt overrides",
		Long: `Print the prompts in effect. With --write, store the built-in prompts in
the data directory so they can be edited; an existing file is kept.

The translation prompt may use the {{targetLang}} placeholder.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := settings.PromptsFilePath()
			if err != nil {
				return err
			}
			if projectConfig != nil && projectConfig.Prompts != "" {
				path = projectConfig.Prompts
			}

			if write {
				if _, err := os.Stat(path); err == nil {
					logInfo("Keeping existing %s", path)
				} else {
					if err := translate.WritePrompts(path, translate.DefaultPrompts()); err != nil {
						return err
					}
					logSuccess("Wrote %s", path)
				}
			}

			prompts, err := translate.LoadPrompts(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %s\n\n", colorInfo.Sprint("prompts:"), path)
			for _, key := range []string{translate.PromptTranslate, translate.PromptExtract} {
				fmt.Printf("[%s]\n%s\n\n", key, prompts.Prompts[key])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Write the built-in prompts to the prompts file")
	return cmd
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
		Long: `Manage API keys, endpoints and preferred models for the AI providers.

Credentials are stored in ` + orDefault(settings.FilePath(), "the data directory") + `.

Examples:
  entsub auth set --provider groq                  Prompt for a Groq API key
  entsub auth set --provider custom-openai --base-url http://localhost:8000/v1
  entsub auth set --provider ollama --model qwen2.5:7b
  entsub auth list                                 Show stored credentials
  entsub auth remove --provider groq               Remove one provider
  entsub auth remove                               Remove everything`,
	}

	cmd.AddCommand(
		newAuthSetCmd(),
		newAuthListCmd(),
		newAuthRemoveCmd(),
	)
	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var provider, key, baseURL, model string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store credentials for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			prov, ok := translate.DefaultProviders()[provider]
			if !ok {
				return fmt.Errorf("unknown provider %q (want one of %s)", provider, strings.Join(translate.ProviderIDs(), ", "))
			}

			info := settings.Get(provider)
			if info == nil {
				info = &settings.Info{}
			}
			if baseURL != "" {
				info.BaseURL = baseURL
			}
			if model != "" {
				info.Model = model
			}

			if key == "" && prov.NeedsAPIKey() {
				k, err := promptAPIKey(os.Stdin, prov.Name, info.Key)
				if err != nil {
					return err
				}
				key = k
			}
			if key != "" {
				info.Key = key
			}

			if err := settings.Set(provider, info); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			logSuccess("%s credentials saved", prov.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider ID")
	cmd.Flags().StringVar(&key, "key", "", "API key (prompted when omitted)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL")
	cmd.Flags().StringVar(&model, "model", "", "Preferred model")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

// promptAPIKey reads a key from r. An empty answer keeps existing.
func promptAPIKey(r io.Reader, name, existing string) (string, error) {
	if existing != "" {
		fmt.Fprintf(os.Stderr, "  Current %s key: %s\n", name, colorWarning.Sprint(settings.MaskKey(existing)))
		fmt.Fprintf(os.Stderr, "  Enter new key to replace, or press Enter to keep: ")
	} else {
		fmt.Fprintf(os.Stderr, "  Enter %s API key: ", name)
	}

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no input received")
	}
	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		if existing != "" {
			return existing, nil
		}
		return "", errors.New("no API key provided")
	}
	return key, nil
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%s\n", colorInfo.Sprint("Stored Credentials"))
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

			store := settings.Load()
			for _, id := range translate.ProviderIDs() {
				fmt.Fprintf(os.Stderr, "  %-14s %s\n", id, credentialStatus(store[id]))
			}

			fmt.Fprintf(os.Stderr, "\n  %s\n", colorWarning.Sprint("Environment Variables"))
			if envKey := os.Getenv(settings.EnvAPIKey); envKey != "" {
				fmt.Fprintf(os.Stderr, "  %s: %s (overrides stored keys)\n", settings.EnvAPIKey, colorSuccess.Sprint(settings.MaskKey(envKey)))
			} else {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", settings.EnvAPIKey, colorError.Sprint("not set"))
			}
			fmt.Fprintln(os.Stderr)
		},
	}
}

func credentialStatus(info *settings.Info) string {
	if info == nil || (info.Key == "" && info.BaseURL == "" && info.Model == "") {
		return colorError.Sprint("not configured")
	}
	parts := []string{colorSuccess.Sprint("configured")}
	if info.Key != "" {
		parts = append(parts, "key: "+settings.MaskKey(info.Key))
	}
	if info.BaseURL != "" {
		parts = append(parts, "endpoint: "+info.BaseURL)
	}
	if info.Model != "" {
		parts = append(parts, "model: "+info.Model)
	}
	return strings.Join(parts, ", ")
}

func newAuthRemoveCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:     "remove",
		Aliases: []string{"rm"},
		Short:   "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("All credentials removed")
				return nil
			}
			if err := settings.Remove(provider); err != nil {
				return err
			}
			logSuccess("Credentials for %s removed", provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider ID (default: all)")
	return cmd
}
