package occupancy

// Summary aggregates a board for dashboards.
type Summary struct {
	Tables      int `json:"tables"`
	Occupied    int `json:"occupied"`
	ByPresence  int `json:"by_presence"`
	BySchedule  int `json:"by_schedule"`
	Free        int `json:"free"`
	WalkInReady int `json:"walk_in_ready"`
}

// Summarize counts occupied, free and walk-in-ready tables.
func Summarize(records map[string]Record) Summary {
	var s Summary
	for _, r := range records {
		s.Tables++
		switch r.OccupiedBy {
		case OccupiedByPresence:
			s.Occupied++
			s.ByPresence++
		case OccupiedBySchedule:
			s.Occupied++
			s.BySchedule++
		default:
			s.Free++
		}
		if r.CanAcceptWalkIn {
			s.WalkInReady++
		}
	}
	return s
}
