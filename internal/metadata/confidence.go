package metadata

// Overall computes a weighted confidence for an extraction. Mandat weighs
// 40%, bordereau 30%, exercice 20% and dates or amounts 10%. Absent fields
// are excluded and the remaining weights renormalized, so a document that
// only carries a mandat can still score high.
func Overall(e Extraction) float64 {
	var sum, weight float64

	if e.Mandat != nil {
		sum += e.Mandat.Confidence * 0.4
		weight += 0.4
	}
	if e.Bordereau != nil {
		sum += e.Bordereau.Confidence * 0.3
		weight += 0.3
	}
	if e.Exercice != "" {
		sum += 0.9 * 0.2
		weight += 0.2
	}
	if len(e.Dates) > 0 || len(e.Amounts) > 0 {
		sum += 0.8 * 0.1
		weight += 0.1
	}

	if weight == 0 {
		return 0
	}
	return sum / weight
}
