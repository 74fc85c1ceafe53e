// Package config loads and exposes spec.md §6's Configuration table: the
// engine's recognized options, available both as a YAML file
// (shadowprobe.yaml) and as CLI flags, with a flag overriding a file value
// overriding the built-in default -- the precedence the pack's CLI tools
// (grounded in the cobra/pflag manifests named in SPEC_FULL.md's DOMAIN
// STACK) use.
package config

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config holds every option spec.md §6 names.
type Config struct {
	// ReportExprs suppresses reported ops that are descendants of another
	// reported op's op-AST (subexpression suppression, spec §4.5).
	ReportExprs bool `yaml:"report_exprs"`
	// HumanReadable selects the report.HumanWriter format over
	// report.SExprWriter.
	HumanReadable bool `yaml:"human_readable"`
	// PrintSemanticOps and PrintExprUpdates gate the engine's print_*
	// diagnostic traces, emitted as logrus.Debug-level structured fields
	// (SPEC_FULL.md's Ambient Stack) rather than bespoke trace flags:
	// PrintSemanticOps logs each block as it is instrumented,
	// PrintExprUpdates each client-request op as it executes.
	// PrintObjectFiles is accepted and stored, but nothing reads it, so it
	// has no effect.
	PrintObjectFiles bool `yaml:"print_object_files"`
	PrintSemanticOps bool `yaml:"print_semantic_ops"`
	PrintExprUpdates bool `yaml:"print_expr_updates"`
	// DetailedRanges is accepted and stored, but nothing reads it:
	// Aggregate.InputRanges always keeps one combined range per operand,
	// not separate positive/negative ranges.
	DetailedRanges bool `yaml:"detailed_ranges"`
	// DontIgnorePureZeroes disables the pure-zero-multiplication
	// short-circuit (spec §4.4).
	DontIgnorePureZeroes bool `yaml:"dont_ignore_pure_zeroes"`
	// NoReals disables shadow real computation; the shadow real is set
	// equal to the concrete result instead (spec §4.4 step 2).
	NoReals bool `yaml:"no_reals"`
	// CompensationDetection enables the compensating add/sub
	// short-circuit (spec §4.4).
	CompensationDetection bool `yaml:"compensation_detection"`
	// UseRanges enables Aggregate.InputRanges tracking.
	UseRanges bool `yaml:"use_ranges"`
	// ErrorThreshold governs when symbolic/influence propagation fires
	// (spec §4.4, §6).
	ErrorThreshold float64 `yaml:"error_threshold"`
	// ReportPath is the output report file path.
	ReportPath string `yaml:"report_path"`
	// PrintPoolStats enables the supplemental --print-pool-stats
	// diagnostic (SPEC_FULL.md's [MODULE real] supplemental).
	PrintPoolStats bool `yaml:"print_pool_stats"`
}

// Default returns the engine's documented defaults: pure-zero and
// compensation short-circuits on, reals on, human-readable report, an
// error threshold of 1 bit.
func Default() *Config {
	return &Config{
		HumanReadable:         true,
		CompensationDetection: true,
		ErrorThreshold:        1.0,
		ReportPath:            "shadowprobe-report.txt",
	}
}

// Load reads a YAML config file at path, starting from Default() so any
// field the file omits keeps its built-in value. A missing file is not an
// error: it returns Default() unchanged, since shadowprobe.yaml is always
// optional (spec §6 describes a CLI/option surface, not a mandatory file).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BindFlags registers every option in cfg as a pflag on cmd, following the
// CLI-flag-overrides-file-overrides-default precedence: cmd's flags
// default to cfg's current (post-Load) values, so an unset flag leaves
// the file/default value alone and a passed flag overwrites it in place
// once cobra parses argv.
func BindFlags(cmd *cobra.Command, cfg *Config) {
	fs := cmd.Flags()
	fs.BoolVar(&cfg.ReportExprs, "report-exprs", cfg.ReportExprs, "suppress reported subexpressions")
	fs.BoolVar(&cfg.HumanReadable, "human-readable", cfg.HumanReadable, "emit the human-readable report format instead of s-expressions")
	fs.BoolVar(&cfg.PrintObjectFiles, "print-object-files", cfg.PrintObjectFiles, "accepted but has no effect")
	fs.BoolVar(&cfg.PrintSemanticOps, "print-semantic-ops", cfg.PrintSemanticOps, "log each block as it is instrumented")
	fs.BoolVar(&cfg.PrintExprUpdates, "print-expr-updates", cfg.PrintExprUpdates, "log each client-request op as it executes")
	fs.BoolVar(&cfg.DetailedRanges, "detailed-ranges", cfg.DetailedRanges, "accepted but has no effect (input ranges are not split by sign)")
	fs.BoolVar(&cfg.DontIgnorePureZeroes, "dont-ignore-pure-zeroes", cfg.DontIgnorePureZeroes, "disable the pure-zero-multiplication short-circuit")
	fs.BoolVar(&cfg.NoReals, "no-reals", cfg.NoReals, "disable shadow real computation")
	fs.BoolVar(&cfg.CompensationDetection, "compensation-detection", cfg.CompensationDetection, "enable the compensating add/sub short-circuit")
	fs.BoolVar(&cfg.UseRanges, "use-ranges", cfg.UseRanges, "track observed input ranges per operand")
	fs.Float64Var(&cfg.ErrorThreshold, "error-threshold", cfg.ErrorThreshold, "bits of error above which symbolic/influence propagation fires")
	fs.StringVar(&cfg.ReportPath, "report-path", cfg.ReportPath, "output report file path")
	fs.BoolVar(&cfg.PrintPoolStats, "print-pool-stats", cfg.PrintPoolStats, "log live/free value counts at exit")
}

// flagNames lists every flag BindFlags registers, used by
// ApplyFileDefaults to tell an explicit flag apart from an unset one.
var flagNames = []string{
	"report-exprs", "human-readable", "print-object-files", "print-semantic-ops",
	"print-expr-updates", "detailed-ranges", "dont-ignore-pure-zeroes", "no-reals",
	"compensation-detection", "use-ranges", "error-threshold", "report-path",
	"print-pool-stats",
}

// ApplyFileDefaults loads the YAML file at path and copies its values
// into cfg for every flag the user did not explicitly pass on cmd's
// command line, preserving the CLI-flag-overrides-file-overrides-default
// precedence BindFlags's doc comment promises: cfg already holds
// Default() merged with any flags cobra parsed, so this only needs to
// backfill the fields an explicit flag would otherwise have overwritten
// with its own (pre-file) default.
func ApplyFileDefaults(cmd *cobra.Command, cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	file, err := Load(path)
	if err != nil {
		return err
	}

	fs := cmd.Flags()
	changed := make(map[string]bool, len(flagNames))
	for _, name := range flagNames {
		changed[name] = fs.Changed(name)
	}

	if !changed["report-exprs"] {
		cfg.ReportExprs = file.ReportExprs
	}
	if !changed["human-readable"] {
		cfg.HumanReadable = file.HumanReadable
	}
	if !changed["print-object-files"] {
		cfg.PrintObjectFiles = file.PrintObjectFiles
	}
	if !changed["print-semantic-ops"] {
		cfg.PrintSemanticOps = file.PrintSemanticOps
	}
	if !changed["print-expr-updates"] {
		cfg.PrintExprUpdates = file.PrintExprUpdates
	}
	if !changed["detailed-ranges"] {
		cfg.DetailedRanges = file.DetailedRanges
	}
	if !changed["dont-ignore-pure-zeroes"] {
		cfg.DontIgnorePureZeroes = file.DontIgnorePureZeroes
	}
	if !changed["no-reals"] {
		cfg.NoReals = file.NoReals
	}
	if !changed["compensation-detection"] {
		cfg.CompensationDetection = file.CompensationDetection
	}
	if !changed["use-ranges"] {
		cfg.UseRanges = file.UseRanges
	}
	if !changed["error-threshold"] {
		cfg.ErrorThreshold = file.ErrorThreshold
	}
	if !changed["report-path"] {
		cfg.ReportPath = file.ReportPath
	}
	if !changed["print-pool-stats"] {
		cfg.PrintPoolStats = file.PrintPoolStats
	}
	return nil
}
