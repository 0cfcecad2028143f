package optim

import (
	"context"
	"math"

	"github.com/san-kum/rigidsim/internal/automation"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/experiment"
)

// GridSearch runs a scene for every combination of parameter values and
// keeps the one with the smallest metric.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, dynamo.Usagef("grid search needs one value range per parameter, got %d names and %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, dynamo.Usagef("parameter %s has no values", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size is the number of runs Search takes.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search returns the best parameters and their metric value. Runs that
// fail the sanity check are skipped; if every run does, the best value is
// +Inf and the parameters are nil.
func (g *GridSearch) Search(
	ctx context.Context,
	source automation.Source,
	opts experiment.Options,
	metricName string,
) (map[string]float64, float64, error) {

	best := math.Inf(1)
	var bestParams map[string]float64

	err := g.searchRecursive(ctx, 0, make(map[string]float64), source, opts, metricName, &best, &bestParams)
	return bestParams, best, err
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	source automation.Source,
	opts experiment.Options,
	metricName string,
	best *float64,
	bestParams *map[string]float64,
) error {
	if depth == len(g.paramNames) {
		sc, err := source()
		if err != nil {
			return err
		}
		for _, name := range g.paramNames {
			if err := automation.SetParam(&sc, name, current[name]); err != nil {
				return err
			}
		}
		app, err := experiment.New(sc, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := automation.Record(ctx, app, app.Steps(), nil)
		if err != nil {
			return err
		}
		val, ok := res.Meta.Metrics[metricName]
		if !ok {
			return dynamo.Usagef("unknown metric %q", metricName)
		}
		if res.Sanity != nil {
			if opts.Logger != nil {
				opts.Logger.Debug("grid point rejected", "params", current, "err", res.Sanity)
			}
			return nil
		}
		if val < *best {
			*best = val
			*bestParams = make(map[string]float64)
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, source, opts, metricName, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}
