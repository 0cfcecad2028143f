package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/rigidsim/internal/analysis"
	"github.com/san-kum/rigidsim/internal/automation"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/export"
	"github.com/san-kum/rigidsim/internal/metrics"
	"github.com/san-kum/rigidsim/internal/optim"
	"github.com/san-kum/rigidsim/internal/storage"
	"github.com/san-kum/rigidsim/internal/viz"
	"github.com/spf13/cobra"
)

func runScene(cmd *cobra.Command, args []string) error {
	sc, err := resolveScene(cmd, args)
	if err != nil {
		return err
	}
	prof, err := startProfile(profileMode)
	if err != nil {
		return err
	}
	defer prof.Stop()

	app, err := experiment.New(sc, appOptions())
	if err != nil {
		return err
	}
	defer app.Close()

	steps := app.Steps()
	if steps == 0 {
		return dynamo.Usagef("scene %q has no duration; pass --time", sc.Name)
	}

	var track string
	if sc.Track != "" {
		if _, err := app.Handle(sc.Track); err == nil {
			track = sc.Track
		}
	}

	start := time.Now()
	res, err := automation.Record(cmd.Context(), app, steps, func(step int, app *experiment.App) error {
		if quiet || track == "" {
			return nil
		}
		h := app.MustHandle(track)
		p, vel := app.Bodies().Position(h), app.Bodies().LinearVelocity(h)
		fmt.Printf("Step %d: Position = (%.6f, %.6f, %.6f), Velocity = (%.6f, %.6f, %.6f)\n",
			step+1, p.X(), p.Y(), p.Z(), vel.X(), vel.Y(), vel.Z())
		return nil
	})
	elapsed := time.Since(start)
	if err != nil {
		return err
	}

	logger := app.Logger()
	logger.Info("run complete",
		"steps", steps,
		"elapsed", elapsed.Round(time.Microsecond),
		"energy_drift", res.Meta.Metrics["energy_drift"],
		"peak_contacts", res.PeakContacts,
	)
	if res.Sanity != nil {
		logger.Warn("sanity check failed", "err", res.Sanity)
	}

	if noSave {
		return nil
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	id, err := st.Save(res.Meta, res.Trajectory)
	if err != nil {
		return err
	}
	fmt.Printf("saved run %s\n", id)
	return nil
}

// sceneBuilder re-resolves the scene on every call so a reset or reload
// picks up the current scene file.
func sceneBuilder(cmd *cobra.Command, args []string, opts experiment.Options) viz.Builder {
	return func() (*experiment.App, error) {
		sc, err := resolveScene(cmd, args)
		if err != nil {
			return nil, err
		}
		return experiment.New(sc, opts)
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	build := sceneBuilder(cmd, args, viewerOptions())

	if !watch {
		return viz.Run(cmd.Context(), build, theme, nil)
	}
	if configFile == "" {
		return dynamo.Usagef("--watch needs --config")
	}
	w, err := config.NewWatcher(configFile)
	if err != nil {
		return err
	}
	defer w.Close()

	reload := make(chan viz.Builder)
	go func() {
		defer close(reload)
		for {
			select {
			case <-cmd.Context().Done():
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case reload <- build:
				case <-cmd.Context().Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("watch failed", "path", w.Path(), "err", err)
			}
		}
	}()
	return viz.Run(cmd.Context(), build, theme, reload)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENE\tTIME\tDURATION\tDT\tSTEPS\tWORKERS\tINTEG")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%d\t%d\t%s\n",
			run.ID,
			run.Scene,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Steps,
			run.Workers,
			run.Integrator,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	if len(traj.Samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scene: %s\n", meta.Scene)
	fmt.Printf("steps: %d\n\n", meta.Steps)

	bodies := traj.Bodies()
	if plotBody != "" {
		bodies = []string{plotBody}
	}

	plotted := 0
	for _, name := range bodies {
		_, positions := traj.Series(name)
		if len(positions) < 2 {
			continue
		}
		heights := make([]float64, len(positions))
		moved := false
		for i, p := range positions {
			heights[i] = p.Y()
			if heights[i] != heights[0] {
				moved = true
			}
		}
		if !moved && plotBody == "" {
			continue
		}

		graph := asciigraph.Plot(heights,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption(name+" height vs step"),
		)
		fmt.Println(graph)
		fmt.Println()
		plotted++
	}
	if plotted == 0 {
		if plotBody != "" {
			return dynamo.Usagef("run %s has no samples for body %q", runID, plotBody)
		}
		fmt.Println("no moving bodies")
	}

	if len(meta.Metrics) > 0 {
		fmt.Println("metrics:")
		for name, v := range meta.Metrics {
			fmt.Printf("  %s: %.6f\n", name, v)
		}
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	return st.ExportJSON(args[0], os.Stdout)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	traj, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	proj := export.SideView
	if svgTop {
		proj = export.TopView
	}
	if svgOut == "" {
		return export.TrajectorySVG(os.Stdout, traj, proj, 800, 600)
	}
	f, err := os.Create(svgOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.TrajectorySVG(f, traj, proj, 800, 600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgOut)
	return nil
}

func listScenes(cmd *cobra.Command, args []string) error {
	reg := experiment.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENE\tDESCRIPTION")
	for _, name := range reg.List() {
		sc, err := reg.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", name, sc.Description)
	}
	return w.Flush()
}

func dumpScene(cmd *cobra.Command, args []string) error {
	sc := config.GetPreset(args[0])
	if sc == nil {
		return dynamo.Configf("no preset scene %q (see 'rigidsim scenes'; code-only scenes cannot be dumped)", args[0])
	}
	if len(args) == 1 {
		return config.Encode(os.Stdout, sc)
	}
	path := args[1]
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := config.Save(path, sc); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func benchScene(cmd *cobra.Command, args []string) error {
	sc, err := resolveScene(cmd, args)
	if err != nil {
		return err
	}
	if benchSteps < 1 {
		return dynamo.Usagef("--steps must be positive, got %d", benchSteps)
	}
	prof, err := startProfile(profileMode)
	if err != nil {
		return err
	}
	defer prof.Stop()

	fmt.Printf("benchmarking %s, %d steps\n\n", sc.Name, benchSteps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKERS\tBODIES\tTIME\tSTEPS/SEC\tCONTACTS")

	quietLog := log.New(io.Discard)
	for _, n := range benchWorkers {
		if n < 1 {
			return dynamo.Usagef("worker count must be positive, got %d", n)
		}
		app, err := experiment.New(sc, experiment.Options{Workers: n, MaxBodies: maxBodies, Logger: quietLog})
		if err != nil {
			return err
		}
		peak := metrics.NewContactCount()
		app.System().AddMetric(peak)

		start := time.Now()
		err = app.Run(cmd.Context(), benchSteps, nil)
		elapsed := time.Since(start)
		bodies := app.Bodies().Len()
		app.Close()
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%d\t%d\t%v\t%.0f\t%d\n",
			n, bodies, elapsed.Round(time.Microsecond), float64(benchSteps)/elapsed.Seconds(), peak.Peak())
	}

	return w.Flush()
}

func validateScene(cmd *cobra.Command, args []string) error {
	doc, err := config.Load(args[0])
	if err != nil {
		return err
	}
	world, err := doc.Build()
	if err != nil {
		if errors.Is(err, dynamo.ErrConfiguration) {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return err
	}
	defer world.Close()

	fmt.Printf("%s: ok (%d layers, %d bodies, %d steps)\n",
		args[0], len(doc.Layers.Object), len(doc.Bodies), doc.Steps())
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	b, err := automation.LoadBatch(args[0])
	if err != nil {
		return err
	}
	opts := appOptions()
	results, err := automation.RunBatch(cmd.Context(), b, experiment.NewRegistry(), opts)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if !noSave {
		if err := st.Init(); err != nil {
			return err
		}
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSCENE\tSTEPS\tDRIFT\tPEAK\tSANE\tID")
	for i, res := range results {
		id := "-"
		if !noSave {
			if id, err = st.Save(res.Meta, res.Trajectory); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%.4g\t%d\t%v\t%s\n",
			i+1, res.Meta.Scene, res.Meta.Steps, res.Meta.Metrics["energy_drift"], res.PeakContacts, res.Sanity == nil, id)
	}
	return w.Flush()
}

// sceneSource re-resolves the scene for every run.
func sceneSource(cmd *cobra.Command, args []string) automation.Source {
	return func() (experiment.Scene, error) {
		return resolveScene(cmd, args)
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Source: sceneSource(cmd, args),
		Param:  sweepParam,
		Values: sweepValues,
		Body:   sweepBody,
	}, appOptions())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tDRIFT\tPEAK\tFINAL\tSANE\n", sweepParam)
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%.4g\t%d\t(%.3f, %.3f, %.3f)\t%v\n",
			r.Value, r.Drift, r.PeakContacts, r.Final.X(), r.Final.Y(), r.Final.Z(), r.Stable)
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	results, err := automation.RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
		Source:       sceneSource(cmd, args),
		Body:         sweepBody,
		Perturbation: perturb,
		NumTrials:    trials,
		Seed:         seed,
	}, appOptions())
	if err != nil {
		return err
	}

	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("trials: %d  stable: %d  unstable: %d\n", len(results), stable, unstable)

	finals := make([]float64, len(results))
	for i, r := range results {
		finals[i] = r.Final.Y()
	}
	if len(finals) > 1 {
		fmt.Println(asciigraph.Plot(finals,
			asciigraph.Height(8),
			asciigraph.Caption("final height per trial"),
		))
	}
	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	g, err := optim.NewGridSearch(
		[]string{"dt", "collision_steps"},
		[][]float64{tuneDts, tuneSubsteps},
	)
	if err != nil {
		return err
	}
	log.Info("grid search", "points", g.Size(), "metric", tuneMetric)

	opts := appOptions()
	opts.Logger = log.New(io.Discard)
	params, best, err := g.Search(cmd.Context(), sceneSource(cmd, args), opts, tuneMetric)
	if err != nil {
		return err
	}
	if params == nil {
		return fmt.Errorf("%w: every grid point failed the sanity check", dynamo.ErrInvalidState)
	}
	fmt.Printf("best %s: %.6g at dt=%g collision_steps=%g\n",
		tuneMetric, best, params["dt"], params["collision_steps"])
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	name := plotBody
	if name == "" {
		for _, b := range traj.Bodies() {
			if _, pos := traj.Series(b); len(pos) > 1 && pos[0] != pos[len(pos)-1] {
				name = b
				break
			}
		}
		if name == "" {
			return dynamo.Usagef("run %s has no moving body; pass --body", runID)
		}
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scene: %s\n", meta.Scene)
	fmt.Printf("body: %s\n\n", name)

	bounces, err := analysis.FindBounces(traj, name, 0.05)
	if err != nil {
		return err
	}
	if len(bounces) == 0 {
		fmt.Println("no bounces")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tTIME\tHEIGHT\tIN\tOUT")
		for _, b := range bounces {
			fmt.Fprintf(w, "%d\t%.3fs\t%.4f\t%.4f\t%.4f\n", b.Step, b.Time, b.Height, b.Before, b.After)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nrestitution: %.4f\n", analysis.Restitution(bounces))
	}

	_, positions := traj.Series(name)
	heights := make([]float64, len(positions))
	for i, p := range positions {
		heights[i] = p.Y()
	}
	if f := analysis.DominantFrequency(heights, meta.Dt); f > 0 {
		fmt.Printf("dominant frequency: %.3f Hz\n", f)
	}

	portrait, err := analysis.NewPhasePortrait(traj, name)
	if err != nil {
		return err
	}
	fmt.Println("\nphase portrait (height vs vertical velocity):")
	fmt.Print(portrait.ASCII(60, 16))
	return nil
}

func compareRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	a, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	b, err := st.LoadTrajectory(args[1])
	if err != nil {
		return err
	}
	r, err := analysis.Divergence(a, b)
	if err != nil {
		return err
	}
	if r.Max == 0 {
		fmt.Printf("identical over %d samples\n", r.Compared)
		return nil
	}
	fmt.Printf("max divergence %.6g m: %s at step %d (%d samples compared)\n", r.Max, r.Body, r.Step, r.Compared)
	return nil
}
