package ballotbox

import (
	"fmt"

	"github.com/Coded483-max/smartvote-node/types"
)

// ValidateSelections checks every (position, candidate) pair of a request
// against the election definition and collects every issue found instead of
// stopping at the first. Returns nil when the ballot is well formed.
func ValidateSelections(e *types.Election, selections []Selection) *ValidationError {
	var issues []ValidationIssue

	if len(selections) == 0 {
		issues = append(issues, ValidationIssue{
			Message: "ballot contains no selections",
		})
	}

	perPosition := make(map[string]int, len(e.Positions))
	seen := make(map[[2]string]bool, len(selections))

	for _, sel := range selections {
		pos := e.Position(sel.PositionID)
		if pos == nil {
			issues = append(issues, ValidationIssue{
				PositionID:  sel.PositionID,
				CandidateID: sel.CandidateID,
				Message:     fmt.Sprintf("unknown position %q", sel.PositionID),
			})
			continue
		}
		if !pos.HasCandidate(sel.CandidateID) {
			issues = append(issues, ValidationIssue{
				PositionID:  sel.PositionID,
				CandidateID: sel.CandidateID,
				Message: fmt.Sprintf("candidate %q is not registered for position %q",
					sel.CandidateID, sel.PositionID),
			})
			continue
		}
		key := [2]string{sel.PositionID, sel.CandidateID}
		if seen[key] {
			issues = append(issues, ValidationIssue{
				PositionID:  sel.PositionID,
				CandidateID: sel.CandidateID,
				Message: fmt.Sprintf("duplicate selection of candidate %q for position %q",
					sel.CandidateID, sel.PositionID),
			})
			continue
		}
		seen[key] = true
		perPosition[sel.PositionID]++
	}

	for posID, n := range perPosition {
		pos := e.Position(posID)
		if limit := pos.MaxSelections(); n > limit {
			issues = append(issues, ValidationIssue{
				PositionID: posID,
				Message: fmt.Sprintf("position %q allows %d selection(s), got %d",
					posID, limit, n),
			})
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}
