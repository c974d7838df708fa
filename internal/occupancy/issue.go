package occupancy

import "sort"

// IssueKind categorizes a resolution problem.
type IssueKind string

const (
	// IssueInconsistentAssignment: an assignment references a table that is
	// not in the active table set. The pair is skipped.
	IssueInconsistentAssignment IssueKind = "INCONSISTENT_ASSIGNMENT"

	// IssueDoublePresence: more than one physically-present booking claims
	// the same table.
	IssueDoublePresence IssueKind = "DOUBLE_PRESENCE"
)

// Issue is a non-fatal problem found while resolving occupancy.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	BookingID string    `json:"booking_id"`
	TableID   string    `json:"table_id"`
	Detail    string    `json:"detail"`
}

func sortIssues(issues []Issue) {
	sort.Slice(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.TableID != b.TableID {
			return a.TableID < b.TableID
		}
		if a.BookingID != b.BookingID {
			return a.BookingID < b.BookingID
		}
		return a.Kind < b.Kind
	})
}
