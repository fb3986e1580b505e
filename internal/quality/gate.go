package quality

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Gerardo1909/hn-analytical-platform/internal/lake"
)

// sampleSize bounds the offending-id samples kept per check result.
const sampleSize = 10

// CheckResult is the outcome of one rule over the whole batch.
type CheckResult struct {
	Name            string  `json:"name"`
	Kind            Kind    `json:"kind"`
	Severity        Severity `json:"severity"`
	Passed          bool    `json:"passed"`
	Description     string  `json:"description"`
	AffectedRecords int     `json:"affected_records"`
	SampleIDs       []int64 `json:"sample_ids,omitempty"`
}

// Report is the consolidated outcome of a rule set over one
// (layer, entity, date) batch.
type Report struct {
	Entity        string        `json:"entity"`
	IngestionDate string        `json:"ingestion_date"`
	GeneratedAt   string        `json:"generated_at"`
	TotalChecks   int           `json:"total_checks"`
	PassedChecks  int           `json:"passed_checks"`
	FailedChecks  int           `json:"failed_checks"`
	Blocked       bool          `json:"has_blocking_failures"`
	Checks        []CheckResult `json:"checks"`
}

// GateError signals that a blocking rule failed; the stage must not
// promote the partition. It carries the full report for surfacing.
type GateError struct {
	Report Report
}

func (e *GateError) Error() string {
	return fmt.Sprintf("quality gate blocked %s for %s: %d of %d checks failed",
		e.Report.Entity, e.Report.IngestionDate, e.Report.FailedChecks, e.Report.TotalChecks)
}

// Evaluate runs every rule over the batch (no short-circuit) and builds
// the consolidated report. It never mutates records.
func Evaluate(entity, date string, records []lake.Record, rules []Rule) Report {
	results := make([]CheckResult, 0, len(rules))
	for _, rule := range rules {
		results = append(results, evalRule(rule, records))
	}

	report := Report{
		Entity:        entity,
		IngestionDate: date,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		TotalChecks:   len(results),
		Checks:        results,
	}
	for _, r := range results {
		if r.Passed {
			report.PassedChecks++
			continue
		}
		report.FailedChecks++
		if r.Severity == Blocking {
			report.Blocked = true
		}
	}

	slog.Info("quality report generated",
		"entity", entity, "date", date,
		"total", report.TotalChecks, "passed", report.PassedChecks,
		"failed", report.FailedChecks, "blocked", report.Blocked)
	return report
}

// Gate evaluates rules and returns a *GateError when a blocking rule
// failed. The report is returned either way so advisory failures still
// reach logs and the report partition.
func Gate(entity, date string, records []lake.Record, rules []Rule) (Report, error) {
	report := Evaluate(entity, date, records, rules)
	if report.Blocked {
		return report, &GateError{Report: report}
	}
	return report, nil
}

func evalRule(rule Rule, records []lake.Record) CheckResult {
	res := CheckResult{
		Name:     rule.Name(),
		Kind:     rule.Kind,
		Severity: rule.Severity,
	}

	switch rule.Kind {
	case KindNotNull:
		collect(&res, records, func(rec lake.Record) bool {
			for _, f := range rule.Fields {
				v, present := rec[f]
				if isEmpty(v, present) {
					return true
				}
			}
			return false
		})
		res.Description = describe(res, fmt.Sprintf("null values in required fields %v", rule.Fields))

	case KindUnique:
		counts := make(map[string]int, len(records))
		for _, rec := range records {
			counts[valueKey(rec[rule.Field])]++
		}
		collect(&res, records, func(rec lake.Record) bool {
			return counts[valueKey(rec[rule.Field])] > 1
		})
		res.Description = describe(res, fmt.Sprintf("duplicate values for field %q", rule.Field))

	case KindRefInteg:
		collect(&res, records, func(rec lake.Record) bool {
			v, ok := lake.IntField(rec, rule.Field)
			if !ok {
				return true
			}
			_, found := rule.TargetSet[v]
			return !found
		})
		res.Description = describe(res, fmt.Sprintf("dangling references via field %q", rule.Field))

	case KindVolume:
		n := len(records)
		res.Passed = n >= rule.MinCount && (rule.MaxCount == 0 || n <= rule.MaxCount)
		if res.Passed {
			res.Description = fmt.Sprintf("volume %d within bounds", n)
		} else {
			res.Description = fmt.Sprintf("volume %d outside [%d, %d]", n, rule.MinCount, rule.MaxCount)
			res.AffectedRecords = n
		}

	case KindType:
		collect(&res, records, func(rec lake.Record) bool {
			v, present := rec[rule.Field]
			if !present || v == nil {
				return false // missing values are not_null's concern
			}
			return !matchesType(v, rule.Expected)
		})
		res.Description = describe(res, fmt.Sprintf("field %q not of type %s", rule.Field, rule.Expected))

	case KindRange:
		collect(&res, records, func(rec lake.Record) bool {
			f, ok := asFloat(rec[rule.Field])
			if !ok {
				return false // non-numeric values are type/not_null concerns
			}
			if rule.Min != nil && f < *rule.Min {
				return true
			}
			if rule.Max != nil && f > *rule.Max {
				return true
			}
			return false
		})
		res.Description = describe(res, fmt.Sprintf("field %q out of range", rule.Field))

	default:
		res.Passed = false
		res.Description = fmt.Sprintf("unknown rule kind %q", rule.Kind)
	}

	return res
}

// collect applies the offending predicate to every record, filling the
// affected count, bounded id sample, and pass flag.
func collect(res *CheckResult, records []lake.Record, offending func(lake.Record) bool) {
	for _, rec := range records {
		if !offending(rec) {
			continue
		}
		res.AffectedRecords++
		if len(res.SampleIDs) < sampleSize {
			if id, ok := lake.RecordID(rec); ok {
				res.SampleIDs = append(res.SampleIDs, id)
			}
		}
	}
	res.Passed = res.AffectedRecords == 0
}

func describe(res CheckResult, failure string) string {
	if res.Passed {
		return "ok"
	}
	return fmt.Sprintf("%s (%d records affected)", failure, res.AffectedRecords)
}
