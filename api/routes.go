package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// VotesEndpoint is the endpoint for casting a ballot
	VotesEndpoint = "/votes"
	// VerifyVoteEndpoint is the endpoint for checking a vote transaction
	TxHashURLParam     = "txHash"
	VerifyVoteEndpoint = "/votes/verify/{" + TxHashURLParam + "}"
	// GenerateProofEndpoint produces a proof without casting
	GenerateProofEndpoint = "/votes/generate-proof"
	// VerifyProofEndpoint checks a previously generated proof
	VerifyProofEndpoint = "/votes/verify-proof"
	// ElectionResultsEndpoint returns the tallies of an election
	ElectionURLParam        = "electionId"
	ElectionResultsEndpoint = "/votes/election-results/{" + ElectionURLParam + "}"
	// ElectionsEndpoint creates a new election
	ElectionsEndpoint = "/elections"
	// ElectionEndpoint returns the election snapshot
	ElectionEndpoint = "/elections/{" + ElectionURLParam + "}"
	// ElectionStatusEndpoint applies an administrative status change
	ElectionStatusEndpoint = "/elections/{" + ElectionURLParam + "}/status"
)
