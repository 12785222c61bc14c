package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// CleaningRule inspects one record. Returning an error rejects the record.
type CleaningRule interface {
	Apply(*Record) (*Record, error)
	Name() string
}

// QualityIssue describes one rejected record.
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// DataCleaner applies rules in order and keeps the issues of rejected records.
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	issues     []QualityIssue
	issuesLock sync.RWMutex

	stats     CleaningStats
	statsLock sync.RWMutex
}

type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
}

func NewDataCleaner(logger *zap.Logger, rules ...CleaningRule) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	dc := &DataCleaner{
		logger: logger,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
	for _, rule := range rules {
		dc.AddRule(rule)
	}
	return dc
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean runs every rule over every record in order. A record rejected by one
// rule is not shown to the following rules.
func (dc *DataCleaner) Clean(records []*Record) ([]*Record, []QualityIssue) {
	var cleaned []*Record
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	for _, rec := range records {
		dc.stats.TotalProcessed++
		rejected := false
		for _, rule := range dc.rules {
			out, err := rule.Apply(rec)
			if err != nil {
				issues = append(issues, QualityIssue{
					Type:     rule.Name(),
					Severity: "high",
					Message:  err.Error(),
					Line:     rec.Line,
				})
				dc.stats.Issues[rule.Name()]++
				rejected = true
				break
			}
			if out != nil {
				rec = out
			}
		}
		if rejected {
			dc.stats.Rejected++
			continue
		}
		dc.stats.Passed++
		cleaned = append(cleaned, rec)
	}

	dc.issuesLock.Lock()
	dc.issues = append(dc.issues, issues...)
	dc.issuesLock.Unlock()
	return cleaned, issues
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues returns the most recent limit issues; limit <= 0 returns all.
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.issuesLock.RLock()
	defer dc.issuesLock.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}
	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[len(dc.issues)-limit:])
	return issues
}

// TargetPresentRule rejects records whose target cell is missing.
type TargetPresentRule struct {
	Column string
	Index  int
}

func (r *TargetPresentRule) Name() string { return "target_present" }

func (r *TargetPresentRule) Apply(rec *Record) (*Record, error) {
	if rec.Values[r.Index].IsMissing() {
		return nil, fmt.Errorf("target %s is missing", r.Column)
	}
	return rec, nil
}

// TargetLabelRule maps the trimmed target text to 0 or 1 and rejects any
// other label.
type TargetLabelRule struct {
	Column   string
	Index    int
	Negative string
	Positive string
}

// NewTargetLabelRule maps No to 0 and Yes to 1.
func NewTargetLabelRule(column string, index int) *TargetLabelRule {
	return &TargetLabelRule{Column: column, Index: index, Negative: "No", Positive: "Yes"}
}

func (r *TargetLabelRule) Name() string { return "target_label" }

func (r *TargetLabelRule) Apply(rec *Record) (*Record, error) {
	label := strings.TrimSpace(rec.Values[r.Index].String())
	switch label {
	case r.Negative:
		rec.Label = 0
	case r.Positive:
		rec.Label = 1
	default:
		return nil, fmt.Errorf("target %s has unexpected label %q", r.Column, label)
	}
	return rec, nil
}
