package quality

import "strings"

// Rates holds word and character error rates of a transcript against its
// reference.
type Rates struct {
	WER float64 `json:"wer"`
	CER float64 `json:"cer"`
}

// ErrorRates compares hypothesis to reference. Words are split on
// whitespace; characters are compared as runes with whitespace removed. An
// empty reference yields 0 when the hypothesis is also empty and 1 otherwise.
func ErrorRates(reference, hypothesis string) Rates {
	refWords := strings.Fields(strings.ToLower(reference))
	hypWords := strings.Fields(strings.ToLower(hypothesis))
	refChars := []rune(strings.Join(refWords, ""))
	hypChars := []rune(strings.Join(hypWords, ""))
	return Rates{
		WER: rate(levenshtein(refWords, hypWords), len(refWords), len(hypWords)),
		CER: rate(levenshtein(refChars, hypChars), len(refChars), len(hypChars)),
	}
}

func rate(distance, refLen, hypLen int) float64 {
	if refLen == 0 {
		if hypLen == 0 {
			return 0
		}
		return 1
	}
	return float64(distance) / float64(refLen)
}

func levenshtein[T comparable](a, b []T) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
