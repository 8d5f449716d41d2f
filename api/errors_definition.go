//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400 or 404 (or even 204), whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap, DON'T fill it in, that code was used in the past and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound          = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody             = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam            = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrElectionNotFound          = Error{Code: 40004, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election not found")}
	ErrElectionNotAcceptingVotes = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("election is not accepting votes")}
	ErrAlreadyVoted              = Error{Code: 40006, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("voter has already voted in this election")}
	ErrInvalidBallot             = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid ballot")}
	ErrInvalidStatusTransition   = Error{Code: 40008, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("invalid status transition")}
	ErrInvalidProof              = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid proof")}
	ErrResultsNotAvailable       = Error{Code: 40010, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("results are not available until the election completes")}
	ErrTooManyRequests           = Error{Code: 40011, HTTPstatus: http.StatusTooManyRequests, Err: fmt.Errorf("too many requests")}
	ErrTransactionNotFound       = Error{Code: 40012, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("transaction not found")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrProofGenerationFailed      = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("proof generation failed")}
	ErrLedgerUnavailable          = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("ledger unavailable")}
)
