package rotation

// inversePairs maps each leveraged ETF to its inverse counterpart.
// Entries are symmetric: if A maps to B, B maps to A. The rotation ranker
// uses this table to avoid holding both legs of the same underlying trade
// at once (spec §4.11, "inverse-pair conflict avoidance").
var inversePairs = map[string]string{
	"TQQQ": "SQQQ",
	"SQQQ": "TQQQ",
	"TNA":  "TZA",
	"TZA":  "TNA",
	"FAS":  "FAZ",
	"FAZ":  "FAS",
	"UVXY": "SVXY",
	"SVXY": "UVXY",
	"SOXL": "SOXS",
	"SOXS": "SOXL",
	"SPXL": "SPXS",
	"SPXS": "SPXL",
	"LABU": "LABD",
	"LABD": "LABU",
}

// InverseOf returns the counterpart symbol for an inverse pair, and
// whether one is registered.
func InverseOf(symbol string) (string, bool) {
	inv, ok := inversePairs[symbol]
	return inv, ok
}

// dedupeInversePairs walks a ranked candidate list and, whenever both legs
// of an inverse pair appear, keeps only the one with the higher Strength
// and drops the weaker leg entirely (rather than substituting a
// replacement candidate, since the weaker leg's thesis is already
// represented by its held counterpart).
func dedupeInversePairs(ranked []Candidate) []Candidate {
	seen := make(map[string]bool, len(ranked))
	out := make([]Candidate, 0, len(ranked))

	for _, c := range ranked {
		if seen[c.Symbol] {
			continue
		}
		inv, hasInverse := InverseOf(c.Symbol)
		if !hasInverse {
			out = append(out, c)
			seen[c.Symbol] = true
			continue
		}

		invCandidate, invPresent := findCandidate(ranked, inv)
		if !invPresent || c.Strength() >= invCandidate.Strength() {
			out = append(out, c)
		}
		seen[c.Symbol] = true
		seen[inv] = true
	}
	return out
}

func findCandidate(candidates []Candidate, symbol string) (Candidate, bool) {
	for _, c := range candidates {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return Candidate{}, false
}
