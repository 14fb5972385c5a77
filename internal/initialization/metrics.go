package initialization

import (
	"time"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

/* StepTiming is the outcome of one bootstrap step */
type StepTiming struct {
	Name     string
	Duration time.Duration
	Success  bool
}

/* BootstrapMetrics tracks bootstrap performance metrics */
type BootstrapMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	Steps           []StepTiming
	TotalSteps      int
	SuccessfulSteps int
	FailedSteps     int
}

/* NewBootstrapMetrics creates a new metrics tracker */
func NewBootstrapMetrics() *BootstrapMetrics {
	return &BootstrapMetrics{
		StartTime: time.Now(),
	}
}

/* Finish marks the bootstrap as complete and calculates final metrics */
func (bm *BootstrapMetrics) Finish() {
	bm.EndTime = time.Now()
	bm.Duration = bm.EndTime.Sub(bm.StartTime)
}

/* TrackStep tracks a step execution */
func (bm *BootstrapMetrics) TrackStep(name string, duration time.Duration, success bool) {
	bm.Steps = append(bm.Steps, StepTiming{Name: name, Duration: duration, Success: success})
	bm.TotalSteps++
	if success {
		bm.SuccessfulSteps++
	} else {
		bm.FailedSteps++
	}
}

/* SuccessRate is the share of successful steps, in percent */
func (bm *BootstrapMetrics) SuccessRate() float64 {
	if bm.TotalSteps == 0 {
		return 100
	}
	return float64(bm.SuccessfulSteps) / float64(bm.TotalSteps) * 100
}

/* LogMetrics logs the bootstrap metrics */
func (bm *BootstrapMetrics) LogMetrics(logger *logging.Logger) {
	fields := map[string]interface{}{
		"total_duration":   bm.Duration.String(),
		"total_steps":      bm.TotalSteps,
		"successful_steps": bm.SuccessfulSteps,
		"failed_steps":     bm.FailedSteps,
		"success_rate":     bm.SuccessRate(),
	}
	for _, step := range bm.Steps {
		fields[step.Name+"_duration"] = step.Duration.String()
	}
	logger.Info("Bootstrap metrics", fields)
}
