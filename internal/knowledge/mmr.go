package knowledge

import "math"

// candidate pairs a fetched result with its stored embedding so the
// re-ranker can measure pairwise similarity.
type candidate struct {
	result    Result
	embedding []float32
}

// mmrSelect re-ranks candidates with Maximal Marginal Relevance and returns
// at most topK results. Each step picks the candidate maximizing
//
//	lambda*sim(query, d) - (1-lambda)*max sim(d, selected)
//
// so lambda=1 is pure relevance and lambda=0 is pure diversity.
func mmrSelect(query []float32, candidates []candidate, topK int, lambda float64) []Result {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = cosineSimilarity(query, c.embedding)
	}

	selected := make([]int, 0, topK)
	remaining := make(map[int]bool, len(candidates))
	for i := range candidates {
		remaining[i] = true
	}

	// maxSim[i] tracks each candidate's highest similarity to the
	// selected set, updated incrementally after every pick.
	maxSim := make([]float64, len(candidates))

	for len(selected) < topK {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if !remaining[i] {
				continue
			}
			score := relevance[i]
			if len(selected) > 0 {
				score = lambda*relevance[i] - (1-lambda)*maxSim[i]
			}
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}

		selected = append(selected, best)
		delete(remaining, best)
		for i := range candidates {
			if !remaining[i] {
				continue
			}
			sim := cosineSimilarity(candidates[best].embedding, candidates[i].embedding)
			if sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	results := make([]Result, 0, len(selected))
	for _, i := range selected {
		results = append(results, candidates[i].result)
	}
	return results
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either vector is empty or zero length.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
