package service

import (
	"context"

	"github.com/Coded483-max/smartvote-node/log"
)

// AuditNotifier emits a structured audit log line for every durably persisted
// cast. It is the default ballotbox.Notifier; deployments with a receipt
// mailer or a websocket fan-out plug their own implementation in instead.
type AuditNotifier struct{}

// NewAuditNotifier creates the log-backed notifier.
func NewAuditNotifier() *AuditNotifier {
	return &AuditNotifier{}
}

// VoteCast logs the accepted cast. The nullifier is already public on the
// ledger, so logging it leaks nothing; the voter id is logged because this is
// the operator-facing audit trail, not a public feed.
func (n *AuditNotifier) VoteCast(_ context.Context, voterID, electionID, nullifierHash string, selections int) {
	log.Infow("vote cast",
		"election", electionID,
		"voter", voterID,
		"votes", selections,
		"nullifier", nullifierHash)
}
