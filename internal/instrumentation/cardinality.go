package instrumentation

import (
	"crypto/sha256"
	"encoding/hex"
)

// Cardinality management helpers for metrics and logs.
//
// Session ids are unbounded; never attach them to metric labels unless
// detailed labels are explicitly enabled, and prefer AnonymizeSession in
// general-purpose logs.

// Calendar provider operation types.
const (
	OperationList     = "list"
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationDelete   = "delete"
	OperationQuickAdd = "quick_add"
	OperationFreeBusy = "freebusy"
	OperationSearch   = "search"
)

var knownOperations = map[string]bool{
	OperationList:     true,
	OperationCreate:   true,
	OperationUpdate:   true,
	OperationDelete:   true,
	OperationQuickAdd: true,
	OperationFreeBusy: true,
	OperationSearch:   true,
}

// NormalizeOperation maps anything outside the known operation set to "other"
// so a typo at a call site cannot create new label values.
func NormalizeOperation(op string) string {
	if knownOperations[op] {
		return op
	}
	return "other"
}

// AnonymizeSession returns a short stable fingerprint of a session id.
//
//	AnonymizeSession("")        // "unknown"
//	AnonymizeSession("call-42") // "s:3f0c9a1e"
func AnonymizeSession(sessionID string) string {
	if sessionID == "" {
		return StatusUnknown
	}
	sum := sha256.Sum256([]byte(sessionID))
	return "s:" + hex.EncodeToString(sum[:4])
}
