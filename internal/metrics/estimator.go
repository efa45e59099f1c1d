// Package metrics produces the illustrative evaluation record attached to
// completed jobs. The figures are not measured against any ground truth.
package metrics

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ppiankov/loreguard/internal/model"
)

// BaselineMatrix is the reference confusion matrix behind the placeholder figures
var BaselineMatrix = model.ConfusionMatrix{
	TruePositive:  89,
	TrueNegative:  76,
	FalsePositive: 12,
	FalseNegative: 18,
}

// Baseline returns the fixed placeholder metrics
func Baseline() model.Metrics {
	return model.Metrics{
		Accuracy:        0.847,
		Precision:       0.821,
		Recall:          0.889,
		F1Score:         0.854,
		ConfusionMatrix: BaselineMatrix,
	}
}

// Estimator attaches placeholder metrics to results. With a zero noise level
// it always returns Baseline; otherwise each matrix count is perturbed by
// normal noise and the ratios are recomputed from the perturbed counts.
type Estimator struct {
	mu    sync.Mutex
	noise float64
	dist  distuv.Normal
}

// NewEstimator creates an estimator. noise is the relative standard deviation
// applied to every count; seed makes the sequence reproducible.
func NewEstimator(noise float64, seed uint64) *Estimator {
	if noise < 0 {
		noise = 0
	}
	return &Estimator{
		noise: noise,
		dist: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
	}
}

// NewTimeSeededEstimator creates an estimator seeded from the clock
func NewTimeSeededEstimator(noise float64) *Estimator {
	return NewEstimator(noise, uint64(time.Now().UnixNano()))
}

// Estimate returns metrics for a completed result. The result only gates
// whether metrics are produced at all; its content does not affect them.
func (e *Estimator) Estimate(result *model.AnalysisResult) *model.Metrics {
	if result == nil {
		return nil
	}
	if e.noise == 0 {
		m := Baseline()
		return &m
	}

	e.mu.Lock()
	matrix := model.ConfusionMatrix{
		TruePositive:  e.perturb(BaselineMatrix.TruePositive),
		TrueNegative:  e.perturb(BaselineMatrix.TrueNegative),
		FalsePositive: e.perturb(BaselineMatrix.FalsePositive),
		FalseNegative: e.perturb(BaselineMatrix.FalseNegative),
	}
	e.mu.Unlock()

	m := FromMatrix(matrix)
	return &m
}

// perturb must be called with mu held
func (e *Estimator) perturb(count int) int {
	v := float64(count) * (1 + e.noise*e.dist.Rand())
	return max(0, int(math.Round(v)))
}

// FromMatrix derives the ratio metrics from a confusion matrix. Undefined
// ratios (zero denominators) are reported as 0.
func FromMatrix(m model.ConfusionMatrix) model.Metrics {
	accuracy := ratio(m.TruePositive+m.TrueNegative, m.Total())
	precision := ratio(m.TruePositive, m.TruePositive+m.FalsePositive)
	recall := ratio(m.TruePositive, m.TruePositive+m.FalseNegative)

	var f1 float64
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return model.Metrics{
		Accuracy:        accuracy,
		Precision:       precision,
		Recall:          recall,
		F1Score:         f1,
		ConfusionMatrix: m,
	}
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}
