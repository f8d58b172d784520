package flow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/stackflow/pkg/bytecode"
)

// Unit is one function to analyze.
type Unit struct {
	Function *Function
	Code     []bytecode.Instruction
}

// Outcome is the result for one unit. Exactly one of Graph and Err is set.
type Outcome struct {
	Unit  Unit
	Graph *Graph
	Err   error
}

// AnalyzeAll builds every unit concurrently, at most workers at a time (no
// limit when workers <= 0). A failing unit only sets its own Outcome.Err;
// the returned error is non-nil only when ctx ends before every unit ran.
func (b *Builder) AnalyzeAll(ctx context.Context, units []Unit, workers int) ([]Outcome, error) {
	out := make([]Outcome, len(units))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, u := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = b.analyze(u)
			return nil
		})
	}
	err := g.Wait()

	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
		}
	}
	log.Infof("analyzed %d units, %d failed", len(units), failed)
	return out, err
}

func (b *Builder) analyze(u Unit) (o Outcome) {
	o.Unit = u
	defer func() {
		if r := recover(); r != nil {
			o.Graph = nil
			o.Err = fmt.Errorf("%s: analysis panicked: %v", unitName(u), r)
			log.Warningf("%v", o.Err)
		}
	}()
	if u.Function == nil {
		o.Err = fmt.Errorf("%s: %w", unitName(u), ErrNoFunction)
		return o
	}
	o.Graph, o.Err = b.Build(u.Function, u.Code)
	if o.Err != nil {
		log.Warningf("%v", o.Err)
	}
	return o
}

func unitName(u Unit) string {
	if u.Function == nil || u.Function.Name == "" {
		return "<anonymous>"
	}
	return u.Function.Name
}
