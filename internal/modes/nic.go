package modes

// nicByTypeSuppA maps an airborne/surface position ME type (5..22, minus the
// velocity type 19) plus the NIC supplement-A bit to (NIC, containment
// radius in meters), per ICAO Annex 10 Vol IV / DO-260B Table A-2-5.
type nicEntry struct {
	nic int
	rc  float64 // meters, 0 == unknown
}

var nicByTypeSuppA = map[int][2]nicEntry{
	0:  {{0, 0}, {0, 0}},
	5:  {{11, 7.5}, {11, 7.5}},
	6:  {{10, 25}, {10, 25}},
	7:  {{8, 185.2}, {9, 75}},
	8:  {{0, 0}, {0, 0}},
	9:  {{11, 7.5}, {11, 7.5}},
	10: {{10, 25}, {10, 25}},
	11: {{8, 185.2}, {9, 75}},
	12: {{7, 370.4}, {7, 370.4}},
	13: {{6, 926}, {6, 1111.2}},
	14: {{5, 1852}, {5, 1852}},
	15: {{4, 3704}, {4, 3704}},
	16: {{1, 14816}, {2, 7408}},
	17: {{0, 0}, {0, 0}},
	18: {{0, 0}, {0, 0}},
	20: {{11, 7.5}, {11, 7.5}},
	21: {{10, 25}, {10, 25}},
	22: {{0, 0}, {0, 0}},
}

// NICRc returns the NIC and containment radius implied by an airborne or
// surface position ME type and the NIC supplement-A bit carried separately
// in the aircraft's operational status message (defaults to 0 if unknown).
func NICRc(meType int, suppA int) (nic int, rc float64) {
	entry, ok := nicByTypeSuppA[meType]
	if !ok {
		return 0, 0
	}
	if suppA != 0 && suppA != 1 {
		suppA = 0
	}
	e := entry[suppA]
	return e.nic, e.rc
}
