package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

/* Stage names, in the only order they may appear in a pipeline */
const (
	StageIPAllowlist = "ip_allowlist"
	StageAuth        = "auth"
	StageInputScan   = "input_scan"
	StageRateLimit   = "rate_limit"
)

var stageRank = map[string]int{
	StageIPAllowlist: 0,
	StageAuth:        1,
	StageInputScan:   2,
	StageRateLimit:   3,
}

/* Stage is one named request filter */
type Stage struct {
	Name string
	Wrap func(http.Handler) http.Handler
}

/* Pipeline is the ordered list of stages guarding one route */
type Pipeline struct {
	Route  string
	Stages []Stage
}

/* NewPipeline builds a pipeline, rejecting unknown stages and out-of-order ones */
func NewPipeline(route string, stages ...Stage) (*Pipeline, error) {
	last := -1
	for _, s := range stages {
		rank, ok := stageRank[s.Name]
		if !ok {
			return nil, fmt.Errorf("route %s: unknown stage %q", route, s.Name)
		}
		if rank <= last {
			return nil, fmt.Errorf("route %s: stage %q is out of order", route, s.Name)
		}
		if s.Wrap == nil {
			return nil, fmt.Errorf("route %s: stage %q has no handler", route, s.Name)
		}
		last = rank
	}
	return &Pipeline{Route: route, Stages: stages}, nil
}

/* Then wraps h so the first stage runs first */
func (p *Pipeline) Then(h http.Handler) http.Handler {
	for i := len(p.Stages) - 1; i >= 0; i-- {
		h = p.Stages[i].Wrap(h)
	}
	return h
}

/* Names lists stage names in execution order */
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name
	}
	return names
}

/* String renders the pipeline as "stage -> stage -> handler" */
func (p *Pipeline) String() string {
	return strings.Join(append(p.Names(), "handler"), " -> ")
}

/* Log records the pipeline at startup */
func (p *Pipeline) Log(logger *logging.Logger) {
	logger.Info("Route pipeline", map[string]interface{}{
		"route":  p.Route,
		"stages": p.String(),
	})
}
