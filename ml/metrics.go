package ml

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ClassMetrics holds precision, recall and F1 for one class.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ConfusionMatrix is [[TN FP] [FN TP]] with rows as true labels.
type ConfusionMatrix [2][2]int

// NewConfusionMatrix counts predictions against true labels.
func NewConfusionMatrix(yTrue, yPred []int) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range yTrue {
		cm[yTrue[i]&1][yPred[i]&1]++
	}
	return cm
}

func (cm ConfusionMatrix) classMetrics(class int) ClassMetrics {
	tp := cm[class][class]
	fp := cm[1-class][class]
	fn := cm[class][1-class]
	m := ClassMetrics{Support: tp + fn}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// F1Score is the F1 of the positive class; 0 when nothing is predicted positive.
func F1Score(yTrue, yPred []int) float64 {
	return NewConfusionMatrix(yTrue, yPred).classMetrics(1).F1
}

// ROCAUC computes the area under the ROC curve as the normalized
// Mann-Whitney U statistic; tied scores share their average rank.
func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, errors.New("labels and scores size mismatch")
	}
	neg, pos := ClassCounts(yTrue)
	if neg == 0 || pos == 0 {
		return 0, errors.New("ROC AUC is undefined with a single class present")
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	var rankSum float64
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue[order[k]] == 1 {
				rankSum += avgRank
			}
		}
		i = j + 1
	}
	u := rankSum - float64(pos)*float64(pos+1)/2
	return u / (float64(pos) * float64(neg)), nil
}

// Report is the read-only evaluation of a pipeline on a held-out split.
type Report struct {
	Threshold   float64         `json:"threshold"`
	Classes     [2]ClassMetrics `json:"classes"`
	Accuracy    float64         `json:"accuracy"`
	MacroAvg    ClassMetrics    `json:"macro_avg"`
	WeightedAvg ClassMetrics    `json:"weighted_avg"`
	ROCAUC      float64         `json:"roc_auc"`
	Confusion   ConfusionMatrix `json:"confusion_matrix"`
}

// Evaluate thresholds the probabilities and reports per-class metrics,
// ROC AUC, and the confusion matrix.
func Evaluate(yTrue []int, proba []float64, threshold float64) (*Report, error) {
	if len(yTrue) == 0 {
		return nil, errors.New("no records to evaluate")
	}
	if len(yTrue) != len(proba) {
		return nil, errors.New("labels and probabilities size mismatch")
	}
	yPred := Threshold(proba, threshold)
	cm := NewConfusionMatrix(yTrue, yPred)
	auc, err := ROCAUC(yTrue, proba)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Threshold: threshold,
		Classes:   [2]ClassMetrics{cm.classMetrics(0), cm.classMetrics(1)},
		Accuracy:  float64(cm[0][0]+cm[1][1]) / float64(len(yTrue)),
		ROCAUC:    auc,
		Confusion: cm,
	}
	total := float64(len(yTrue))
	for _, c := range report.Classes {
		report.MacroAvg.Precision += c.Precision / 2
		report.MacroAvg.Recall += c.Recall / 2
		report.MacroAvg.F1 += c.F1 / 2
		w := float64(c.Support) / total
		report.WeightedAvg.Precision += c.Precision * w
		report.WeightedAvg.Recall += c.Recall * w
		report.WeightedAvg.F1 += c.F1 * w
	}
	report.MacroAvg.Support = len(yTrue)
	report.WeightedAvg.Support = len(yTrue)
	return report, nil
}

// String renders the report as a classification table.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for class, c := range r.Classes {
		fmt.Fprintf(&b, "%14d %10.4f %10.4f %10.4f %10d\n", class, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%14s %10s %10s %10.4f %10d\n", "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%14s %10.4f %10.4f %10.4f %10d\n", "macro avg",
		r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%14s %10.4f %10.4f %10.4f %10d\n", "weighted avg",
		r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	fmt.Fprintf(&b, "\nROC AUC: %.4f\n", r.ROCAUC)
	fmt.Fprintf(&b, "\nConfusion matrix:\n[[%d %d]\n [%d %d]]\n",
		r.Confusion[0][0], r.Confusion[0][1], r.Confusion[1][0], r.Confusion[1][1])
	return b.String()
}
