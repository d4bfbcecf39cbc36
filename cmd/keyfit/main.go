// Package main provides the CLI entrypoint for keyfit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/klavio/keyfit/internal/alloc"
	"github.com/klavio/keyfit/internal/anneal"
	"github.com/klavio/keyfit/internal/config"
	"github.com/klavio/keyfit/internal/friction"
	"github.com/klavio/keyfit/internal/geometry"
	"github.com/klavio/keyfit/internal/model"
	"github.com/klavio/keyfit/internal/preset"
	"github.com/klavio/keyfit/internal/report"
	"github.com/klavio/keyfit/internal/scorer"
	"github.com/klavio/keyfit/internal/store"
)

var (
	allocateProfile string
	allocateActions string
	allocateLocks   []string
	allocateSave    bool
	allocateHeatMap bool

	optimizeProfile    string
	optimizeActions    string
	optimizeSave       bool
	optimizeHeatMap    bool
	optimizeLocks      []string
	optimizeSeed       int64
	optimizeTemp       float64
	optimizeCooling    float64
	optimizeMinTemp    float64
	optimizeIterations int

	scoreProfile string
	scoreActions string
	scoreLayout  string

	historyProfile string
	historyLast    int
	historyRun     int64
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "keyfit",
		Short:         "Finger-aware keybind allocator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(newAllocateCmd())
	rootCmd.AddCommand(newOptimizeCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func newAllocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Bind actions to keys with the greedy allocator",
		Args:  cobra.NoArgs,
		RunE:  runAllocateCmd,
	}
	cmd.Flags().StringVar(&allocateProfile, "profile", "", "keyboard profile (preset name or TOML path)")
	cmd.Flags().StringVar(&allocateActions, "actions", "", "action set (preset name or TOML path)")
	cmd.Flags().StringArrayVar(&allocateLocks, "lock", nil, "pin an action to a key (action=key, repeatable)")
	cmd.Flags().BoolVar(&allocateSave, "save", false, "record the run in the history database")
	cmd.Flags().BoolVar(&allocateHeatMap, "heatmap", false, "render a key heat map")
	return cmd
}

func runAllocateCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "profile", &allocateProfile, fileCfg.Allocate.Profile)
	applyStringConfig(cmd, "actions", &allocateActions, fileCfg.Allocate.Actions)

	in, err := loadInputs(allocateProfile, allocateActions)
	if err != nil {
		return err
	}

	locks, err := mergeLocks(in, allocateLocks)
	if err != nil {
		return err
	}

	g := alloc.NewGreedy(in.profile, in.scored)
	result, err := g.Allocate(cmd.Context(), in.actions, locks)
	if err != nil {
		return fmt.Errorf("allocation failed: %w", err)
	}

	return reportRun(cmd, in, result, runMeta{
		strategy: "greedy",
		save:     allocateSave,
		heatMap:  allocateHeatMap,
	})
}

func newOptimizeCmd() *cobra.Command {
	defaults := anneal.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search for a low-friction layout with simulated annealing",
		Args:  cobra.NoArgs,
		RunE:  runOptimizeCmd,
	}
	cmd.Flags().StringVar(&optimizeProfile, "profile", "", "keyboard profile (preset name or TOML path)")
	cmd.Flags().StringVar(&optimizeActions, "actions", "", "action set (preset name or TOML path)")
	cmd.Flags().StringArrayVar(&optimizeLocks, "lock", nil, "pin an action to a key (action=key, repeatable)")
	cmd.Flags().BoolVar(&optimizeSave, "save", false, "record the run in the history database")
	cmd.Flags().BoolVar(&optimizeHeatMap, "heatmap", false, "render a key heat map")
	cmd.Flags().Int64Var(&optimizeSeed, "seed", 0, "random seed (0 picks a time-based seed)")
	cmd.Flags().Float64Var(&optimizeTemp, "initial-temp", defaults.InitialTemp, "starting temperature")
	cmd.Flags().Float64Var(&optimizeCooling, "cooling-rate", defaults.CoolingRate, "geometric cooling rate (0-1)")
	cmd.Flags().Float64Var(&optimizeMinTemp, "min-temp", defaults.MinTemp, "temperature at which the search stops")
	cmd.Flags().IntVar(&optimizeIterations, "max-iterations", defaults.MaxIterations, "iteration budget (0 for unlimited)")
	return cmd
}

func runOptimizeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "profile", &optimizeProfile, fileCfg.Allocate.Profile)
	applyStringConfig(cmd, "actions", &optimizeActions, fileCfg.Allocate.Actions)
	applyInt64Config(cmd, "seed", &optimizeSeed, fileCfg.Optimize.Seed)
	applyFloatConfig(cmd, "initial-temp", &optimizeTemp, fileCfg.Optimize.InitialTemp)
	applyFloatConfig(cmd, "cooling-rate", &optimizeCooling, fileCfg.Optimize.CoolingRate)
	applyFloatConfig(cmd, "min-temp", &optimizeMinTemp, fileCfg.Optimize.MinTemp)
	applyIntConfig(cmd, "max-iterations", &optimizeIterations, fileCfg.Optimize.MaxIterations)

	if err := validateSchedule(); err != nil {
		return err
	}

	in, err := loadInputs(optimizeProfile, optimizeActions)
	if err != nil {
		return err
	}

	locks, err := mergeLocks(in, optimizeLocks)
	if err != nil {
		return err
	}

	seed := optimizeSeed
	if seed == 0 {
		seed = anneal.TimeSeed()
		logErrf("Using time-based seed %d; pass --seed %d to reproduce\n", seed, seed)
	}
	opts := anneal.Options{
		Seed:          seed,
		InitialTemp:   optimizeTemp,
		CoolingRate:   optimizeCooling,
		MinTemp:       optimizeMinTemp,
		MaxIterations: optimizeIterations,
	}
	o := anneal.New(in.profile, in.scored, in.penalties, opts)
	result, err := o.Allocate(cmd.Context(), in.actions, locks)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	return reportRun(cmd, in, result, runMeta{
		strategy: "anneal",
		seed:     seed,
		save:     optimizeSave,
		heatMap:  optimizeHeatMap,
	})
}

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Show key accessibility scores, or the friction of a layout",
		Args:  cobra.NoArgs,
		RunE:  runScoreCmd,
	}
	cmd.Flags().StringVar(&scoreProfile, "profile", "", "keyboard profile (preset name or TOML path)")
	cmd.Flags().StringVar(&scoreActions, "actions", "", "action set, required with --layout")
	cmd.Flags().StringVar(&scoreLayout, "layout", "", "TOML file mapping actions to keys")
	return cmd
}

func runScoreCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "profile", &scoreProfile, fileCfg.Allocate.Profile)
	applyStringConfig(cmd, "actions", &scoreActions, fileCfg.Allocate.Actions)

	if scoreLayout == "" {
		if scoreProfile == "" {
			return fmt.Errorf("--profile is required")
		}
		profilePath := preset.Resolve(config.DefaultPresetDir(), scoreProfile)
		profile, err := preset.LoadProfile(profilePath)
		if err != nil {
			return err
		}
		board := geometry.NewBoard(profile.Keys)
		scored := scorer.Score(board, profile.Fingers, profile.Movement.Keys(), board.Codes())
		return report.RenderScores(cmd.OutOrStdout(), profile.Keys, scored)
	}

	in, err := loadInputs(scoreProfile, scoreActions)
	if err != nil {
		return err
	}
	layout, err := preset.LoadLayout(scoreLayout)
	if err != nil {
		return err
	}
	for name := range layout {
		if _, ok := in.byName[name]; !ok {
			return fmt.Errorf("layout binds unknown action %q", name)
		}
	}

	fctx := friction.NewContext(in.actions, in.scored, in.profile)
	value := friction.Score(layout, fctx, in.penalties)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Friction: %.2f\n", value)
	return err
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List installed profile and action presets",
		Args:  cobra.NoArgs,
		RunE:  runPresetsCmd,
	}
}

func runPresetsCmd(cmd *cobra.Command, _ []string) error {
	profiles, err := preset.List(config.DefaultPresetDir())
	if err != nil {
		return err
	}
	actions, err := preset.List(config.DefaultActionDir())
	if err != nil {
		return err
	}
	if len(profiles) == 0 && len(actions) == 0 {
		logErrf("No presets found. Add TOML files under %s and %s\n",
			config.DefaultPresetDir(), config.DefaultActionDir())
		return fmt.Errorf("no presets found")
	}
	out := cmd.OutOrStdout()
	for _, name := range profiles {
		if _, err := fmt.Fprintf(out, "profile %s\n", name); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	for _, name := range actions {
		if _, err := fmt.Fprintf(out, "actions %s\n", name); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyProfile, "profile", "", "filter by profile name")
	cmd.Flags().IntVar(&historyLast, "last", 20, "limit to last N runs (0 for all)")
	cmd.Flags().Int64Var(&historyRun, "run", 0, "show the bindings of one run")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if historyRun > 0 {
		bindings, err := st.ListBindings(ctx, historyRun)
		if err != nil {
			return fmt.Errorf("failed to load run %d: %w", historyRun, err)
		}
		if len(bindings) == 0 {
			return fmt.Errorf("run %d has no bindings", historyRun)
		}
		return report.RenderBindings(out, model.Result{Bindings: bindings}, nil)
	}

	runs, err := st.ListRuns(ctx, historyProfile, historyLast)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return report.RenderRuns(out, runs)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// inputs bundles the loaded profile, action set, and derived tables the
// commands share.
type inputs struct {
	profile   model.Profile
	actions   []model.Action
	byName    map[string]model.Action
	scored    map[string]model.ScoredKey
	penalties friction.Penalties
}

func loadInputs(profileArg, actionsArg string) (inputs, error) {
	if profileArg == "" {
		return inputs{}, fmt.Errorf("--profile is required")
	}
	if actionsArg == "" {
		return inputs{}, fmt.Errorf("--actions is required")
	}

	profilePath := preset.Resolve(config.DefaultPresetDir(), profileArg)
	profile, err := preset.LoadProfile(profilePath)
	if err != nil {
		return inputs{}, err
	}
	penalties, err := preset.LoadPenalties(profilePath, friction.DefaultPenalties())
	if err != nil {
		return inputs{}, err
	}
	actions, err := preset.LoadActions(preset.Resolve(config.DefaultActionDir(), actionsArg))
	if err != nil {
		return inputs{}, err
	}

	board := geometry.NewBoard(profile.Keys)
	scored := scorer.Score(board, profile.Fingers, profile.Movement.Keys(), board.Codes())
	byName := make(map[string]model.Action, len(actions))
	for _, act := range actions {
		byName[act.Name] = act
	}
	return inputs{profile: profile, actions: actions, byName: byName, scored: scored, penalties: penalties}, nil
}

func mergeLocks(in inputs, flags []string) (map[string]string, error) {
	locks := make(map[string]string, len(in.profile.Locks)+len(flags))
	for action, key := range in.profile.Locks {
		locks[action] = key
	}
	for _, spec := range flags {
		action, key, ok := strings.Cut(spec, "=")
		if !ok || action == "" || key == "" {
			return nil, fmt.Errorf("invalid --lock %q (want action=key)", spec)
		}
		if _, known := in.byName[action]; !known {
			return nil, fmt.Errorf("--lock targets unknown action %q", action)
		}
		locks[action] = key
	}
	return locks, nil
}

type runMeta struct {
	strategy string
	seed     int64
	save     bool
	heatMap  bool
}

func reportRun(cmd *cobra.Command, in inputs, result model.Result, meta runMeta) error {
	out := cmd.OutOrStdout()
	if err := report.RenderBindings(out, result, in.scored); err != nil {
		return err
	}

	layout := model.Layout{}
	for _, b := range result.Bindings {
		layout[b.Action] = b.Key
	}
	fctx := friction.NewContext(in.actions, in.scored, in.profile)
	value := friction.Score(layout, fctx, in.penalties)
	if _, err := fmt.Fprintf(out, "\nFriction: %.2f\n", value); err != nil {
		return err
	}

	if meta.heatMap {
		freq := make(map[string]int, len(in.actions))
		for _, act := range in.actions {
			freq[act.Name] = act.UseFrequency
		}
		if _, err := fmt.Fprintln(out, ""); err != nil {
			return err
		}
		if err := report.RenderHeatMap(out, in.profile.Keys, result.Bindings, freq); err != nil {
			return err
		}
	}

	if !meta.save {
		return nil
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	rec := model.RunRecord{
		CreatedAt:  time.Now().UTC(),
		Profile:    in.profile.Name,
		Strategy:   meta.strategy,
		Seed:       meta.seed,
		Friction:   value,
		Assigned:   len(result.Bindings),
		Unassigned: len(result.Unassigned),
	}
	id, err := st.InsertRun(context.Background(), rec, result.Bindings)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	logErrf("Saved run %d\n", id)
	return nil
}

func validateSchedule() error {
	if optimizeTemp <= 0 {
		return fmt.Errorf("--initial-temp must be > 0")
	}
	if optimizeCooling <= 0 || optimizeCooling >= 1 {
		return fmt.Errorf("--cooling-rate must be between 0 and 1")
	}
	if optimizeMinTemp <= 0 {
		return fmt.Errorf("--min-temp must be > 0")
	}
	if optimizeIterations < 0 {
		return fmt.Errorf("--max-iterations must be >= 0")
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	defaults := anneal.DefaultOptions()
	return fmt.Sprintf(`# keyfit configuration
# Uncomment a value to enable it. CLI flags override config values.

[allocate]
# profile = "tkl"          # Default keyboard profile preset
# actions = "fps"          # Default action set preset

[optimize]
# seed = 0                 # Random seed (0 picks a time-based seed)
# initial-temp = %.0f      # Starting temperature
# cooling-rate = %.3f      # Geometric cooling rate (0-1)
# min-temp = %.3f          # Temperature at which the search stops
# max-iterations = %d      # Iteration budget (0 for unlimited)
`,
		defaults.InitialTemp,
		defaults.CoolingRate,
		defaults.MinTemp,
		defaults.MaxIterations,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
