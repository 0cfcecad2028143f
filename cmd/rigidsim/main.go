package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/profile"
	"github.com/san-kum/rigidsim/internal/automation"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir   string
	logLevel  string
	logFormat string
	theme     string

	configFile     string
	dt             float64
	duration       float64
	collisionSteps int
	workers        int
	integrator     string
	speed          float64
	maxBodies      int
	profileMode    string

	quiet  bool
	noSave bool
	watch  bool

	benchSteps   int
	benchWorkers []int
	plotBody     string
	svgOut       string
	svgTop       bool

	sweepParam   string
	sweepValues  []float64
	sweepBody    string
	perturb      float64
	trials       int
	seed         int64
	tuneMetric   string
	tuneDts      []float64
	tuneSubsteps []float64
)

// main registers the commands and runs the scene picker when no subcommand
// is given.
func main() {
	rootCmd := &cobra.Command{
		Use:           "rigidsim",
		Short:         "layered rigid body simulation lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunInteractive(cmd.Context(), experiment.NewRegistry(), viewerOptions(), theme)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rigidsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "lab", "viewer theme ("+strings.Join(viz.ThemeNames(), ", ")+")")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "worker pool size (0 keeps the scene's)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	}

	runCmd := &cobra.Command{
		Use:   "run [scene]",
		Short: "run a scene headless and store the trajectory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScene,
	}
	sceneFlags(runCmd)
	runCmd.Flags().BoolVar(&quiet, "quiet", false, "do not print the tracked body every step")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&profileMode, "profile", "", "write a cpu or mem profile to the data directory")

	liveCmd := &cobra.Command{
		Use:   "live [scene]",
		Short: "run a scene in the terminal viewer",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	sceneFlags(liveCmd)
	liveCmd.Flags().BoolVar(&watch, "watch", false, "rebuild the scene when --config changes")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot body heights of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plotBody, "body", "", "plot only this body")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "draw the paths of a stored run as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&svgOut, "out", "o", "", "output file (default stdout)")
	exportSVGCmd.Flags().BoolVar(&svgTop, "top", false, "view from above (x/z) instead of the side (x/y)")

	scenesCmd := &cobra.Command{
		Use:   "scenes",
		Short: "list available scenes",
		Args:  cobra.NoArgs,
		RunE:  listScenes,
	}

	dumpCmd := &cobra.Command{
		Use:   "dump [scene] [file]",
		Short: "write a preset scene as YAML",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  dumpScene,
	}

	benchCmd := &cobra.Command{
		Use:   "bench [scene]",
		Short: "time a scene across worker counts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchScene,
	}
	sceneFlags(benchCmd)
	benchCmd.Flags().IntVar(&benchSteps, "steps", 500, "steps per run")
	benchCmd.Flags().IntSliceVar(&benchWorkers, "pool", []int{1, 2, 4}, "worker counts to compare")
	benchCmd.Flags().StringVar(&profileMode, "profile", "", "write a cpu or mem profile to the data directory")

	batchCmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "run every scene listed in a batch file and store the runs",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	sweepCmd := &cobra.Command{
		Use:   "sweep [scene]",
		Short: "run a scene once per value of one parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sceneFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "dt", "parameter to vary (dt, collision_steps, gravity, speed)")
	sweepCmd.Flags().Float64SliceVar(&sweepValues, "values", []float64{0.04, 0.02, 0.01}, "parameter values")
	sweepCmd.Flags().StringVar(&sweepBody, "body", "", "body to report (default: the tracked body)")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [scene]",
		Short: "kick a body with random velocities and count stable outcomes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	sceneFlags(monteCarloCmd)
	monteCarloCmd.Flags().StringVar(&sweepBody, "body", "", "body to kick (default: the tracked body)")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 1, "largest velocity change per axis in m/s")
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 seeds from the clock)")

	tuneCmd := &cobra.Command{
		Use:   "tune [scene]",
		Short: "grid search dt and collision steps for the smallest metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	sceneFlags(tuneCmd)
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "energy_drift", "metric to minimise")
	tuneCmd.Flags().Float64SliceVar(&tuneDts, "dts", []float64{0.04, 0.02, 0.01}, "dt values")
	tuneCmd.Flags().Float64SliceVar(&tuneSubsteps, "substeps", []float64{1, 2, 4}, "collision step values")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "bounces, restitution, spectrum and phase portrait of one body",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&plotBody, "body", "", "body to analyze (default: first moving body)")

	compareCmd := &cobra.Command{
		Use:   "compare [run_a] [run_b]",
		Short: "largest position difference between two stored runs",
		Args:  cobra.ExactArgs(2),
		RunE:  compareRuns,
	}

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "check a scene file and build it",
		Args:  cobra.ExactArgs(1),
		RunE:  validateScene,
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportJSONCmd, exportSVGCmd, scenesCmd, dumpCmd, benchCmd,
		batchCmd, sweepCmd, monteCarloCmd, tuneCmd, analyzeCmd, compareCmd, validateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error("rigidsim failed", "err", err)
		os.Exit(1)
	}
}

func sceneFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "scene file (yaml)")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "fixed step in seconds")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "simulated seconds")
	cmd.Flags().IntVar(&collisionSteps, "collision-steps", config.DefaultCollisionSteps, "substeps per step")
	cmd.Flags().StringVar(&integrator, "integrator", "semi_implicit_euler", "integrator (semi_implicit_euler, explicit_euler)")
	cmd.Flags().Float64Var(&speed, "speed", 1, "simulation speed factor for the viewer")
	cmd.Flags().IntVar(&maxBodies, "max-bodies", config.DefaultMaxBodies, "body registry capacity")
}

func setupLogger() error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return dynamo.Usagef("--log-level: %v", err)
	}
	opts := log.Options{Level: level, ReportTimestamp: true}
	switch logFormat {
	case "text":
		opts.Formatter = log.TextFormatter
	case "json":
		opts.Formatter = log.JSONFormatter
	default:
		return dynamo.Usagef("--log-format must be text or json, got %q", logFormat)
	}
	log.SetDefault(log.NewWithOptions(os.Stderr, opts))
	return nil
}

func appOptions() experiment.Options {
	return experiment.Options{
		Workers:   workers,
		MaxBodies: maxBodies,
		Logger:    log.Default(),
	}
}

// viewerOptions drops scene logs, since the viewer owns the terminal.
func viewerOptions() experiment.Options {
	opts := appOptions()
	opts.Logger = log.New(io.Discard)
	return opts
}

// resolveScene picks the scene from --config or the registry and applies
// the flags the user set explicitly.
func resolveScene(cmd *cobra.Command, args []string) (experiment.Scene, error) {
	var sc experiment.Scene
	var err error
	switch {
	case configFile != "":
		doc, lerr := config.Load(configFile)
		if lerr != nil {
			return experiment.Scene{}, lerr
		}
		sc, err = experiment.FromConfig(doc)
	case len(args) == 1:
		sc, err = experiment.NewRegistry().Get(args[0])
	default:
		sc, err = experiment.FromConfig(config.DefaultScene())
	}
	if err != nil {
		return experiment.Scene{}, err
	}

	var o automation.Override
	flags := cmd.Flags()
	if flags.Changed("dt") {
		o.Dt = dt
	}
	if flags.Changed("time") {
		o.Duration = duration
	}
	if flags.Changed("collision-steps") {
		o.CollisionSteps = collisionSteps
	}
	if flags.Changed("speed") {
		o.Speed = speed
	}
	if flags.Changed("integrator") {
		o.Integrator = integrator
	}
	return sc, o.Apply(&sc)
}

type stopper interface{ Stop() }

type noProfile struct{}

func (noProfile) Stop() {}

func startProfile(mode string) (stopper, error) {
	switch mode {
	case "":
		return noProfile{}, nil
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath(dataDir), profile.NoShutdownHook), nil
	case "mem":
		return profile.Start(profile.MemProfile, profile.ProfilePath(dataDir), profile.NoShutdownHook), nil
	}
	return nil, dynamo.Usagef("--profile must be cpu or mem, got %q", mode)
}
