package model

// Metrics is an illustrative evaluation record attached to a completed job.
// It is not derived from ground truth.
type Metrics struct {
	Accuracy        float64         `json:"accuracy"`
	Precision       float64         `json:"precision"`
	Recall          float64         `json:"recall"`
	F1Score         float64         `json:"f1Score"`
	ConfusionMatrix ConfusionMatrix `json:"confusionMatrix"`
}

// ConfusionMatrix holds binary classification counts
type ConfusionMatrix struct {
	TruePositive  int `json:"truePositive"`
	TrueNegative  int `json:"trueNegative"`
	FalsePositive int `json:"falsePositive"`
	FalseNegative int `json:"falseNegative"`
}

// Total returns the number of classified samples
func (m ConfusionMatrix) Total() int {
	return m.TruePositive + m.TrueNegative + m.FalsePositive + m.FalseNegative
}
