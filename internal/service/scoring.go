package service

import (
	"github.com/classforge/classforge-api/internal/dto"
	"github.com/classforge/classforge-api/internal/models"
	"github.com/classforge/classforge-api/pkg/runner"
)

// PointTable maps opaque test case keys to their point values.
type PointTable map[string]int

// PrivacySet holds the keys of test cases whose content must not leave the
// server.
type PrivacySet map[string]struct{}

// NewPointTable builds the scoring table from the ledger rows in effect at
// run time.
func NewPointTable(cases []models.TestCase) PointTable {
	table := make(PointTable, len(cases))
	for _, tc := range cases {
		table[tc.Key()] = tc.Points
	}
	return table
}

// NewPrivacySet collects the keys of private test cases.
func NewPrivacySet(cases []models.TestCase) PrivacySet {
	set := make(PrivacySet)
	for _, tc := range cases {
		if tc.Private {
			set[tc.Key()] = struct{}{}
		}
	}
	return set
}

// SumPoints totals the point values of every test case in the ledger.
func SumPoints(cases []models.TestCase) int {
	total := 0
	for _, tc := range cases {
		total += tc.Points
	}
	return total
}

// Score computes (obtained, possible) from per-test outcomes and the point
// table. Outcomes whose key is absent from the table are skipped entirely:
// the ledger may have changed while the run was in flight. Only outcomes
// with the accepted status contribute to the obtained sum.
func Score(outcomes []dto.EvaluationOutcome, table PointTable) (obtained, possible int) {
	for _, outcome := range outcomes {
		points, ok := table[outcome.TestCaseID]
		if !ok {
			continue
		}
		possible += points
		if outcome.Status == runner.StatusAccepted {
			obtained += points
		}
	}
	return obtained, possible
}

// RedactPrivate blanks the identifying fields of outcomes that belong to a
// private test case. Only pass/fail and duration survive, so private
// fixtures contribute to the score without revealing their content.
func RedactPrivate(outcomes []dto.EvaluationOutcome, private PrivacySet) []dto.EvaluationOutcome {
	if len(private) == 0 {
		return outcomes
	}

	redacted := make([]dto.EvaluationOutcome, len(outcomes))
	for i, outcome := range outcomes {
		if _, ok := private[outcome.TestCaseID]; ok {
			outcome.TestCaseID = ""
			outcome.InputPath = ""
			outcome.Stdout = ""
			outcome.Stderr = ""
			outcome.Message = ""
		}
		redacted[i] = outcome
	}
	return redacted
}
