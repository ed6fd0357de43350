package modes

import "acars_parser/internal/icaofilter"

// icaoFilter is consulted by applyBDS30 to recover a TCAS threat address
// from its 16-bit truncated form. It is package-global because the filter
// is a single process-wide table (grounded on readsb's global icao_filter),
// and BDS decoding has no other path to reach it from decodeCommB's call
// site deep inside Decode.
var icaoFilter *icaofilter.Filter

// SetICAOFilter wires the process's ICAO address filter into the Comm-B
// decoder. Call once at startup; nil (the default) just skips the
// threat-address lookup.
func SetICAOFilter(f *icaofilter.Filter) {
	icaoFilter = f
}

// KnownICAO reports whether addr has been seen broadcasting recently.
// Exported for the demodulator's candidate scorer, which has no other way
// to reach the process-wide filter instance.
func KnownICAO(addr uint32) bool {
	if icaoFilter == nil {
		return false
	}
	return icaoFilter.Test(addr)
}

// lookupThreatAddr recovers a full 24-bit ICAO address from the 16-bit
// truncated threat address a BDS 3,0 report carries, or reports false if
// no filter is wired or no recent address matches.
func lookupThreatAddr(partial uint32) (uint32, bool) {
	if icaoFilter == nil {
		return 0, false
	}
	return icaoFilter.TestFuzzy(partial)
}
