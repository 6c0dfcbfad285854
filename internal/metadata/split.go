package metadata

import (
	"math/rand/v2"
	"slices"
)

// Split names.
const (
	SplitTrain = "train"
	SplitDev   = "dev"
	SplitTest  = "test"
)

// SplitNames lists the splits in export order.
var SplitNames = []string{SplitTrain, SplitDev, SplitTest}

// Assign partitions speakers into splits. Speakers are sorted, shuffled with
// a generator seeded by seed, then the first floor(n*testRatio) go to test,
// the next floor(n*devRatio) to dev and the rest to train. With at least
// three speakers every split keeps one: an empty test or dev block borrows
// from train, and oversized blocks are clamped so train is never emptied.
// Two speakers fill train and test; a single speaker is train.
func Assign(speakers []string, testRatio, devRatio float64, seed int64) map[string]string {
	ids := slices.Compact(slices.Sorted(slices.Values(speakers)))
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	n := len(ids)
	nTest, nDev := blockSizes(n, testRatio, devRatio)

	out := make(map[string]string, n)
	for i, id := range ids {
		switch {
		case i < nTest:
			out[id] = SplitTest
		case i < nTest+nDev:
			out[id] = SplitDev
		default:
			out[id] = SplitTrain
		}
	}
	return out
}

// Partition groups rows by the split of their speaker and sets Row.Split.
func Partition(rows []Row, assignment map[string]string) map[string][]Row {
	out := map[string][]Row{SplitTrain: nil, SplitDev: nil, SplitTest: nil}
	for _, row := range rows {
		split := assignment[row.SpeakerID]
		if split == "" {
			split = SplitTrain
		}
		row.Split = split
		out[split] = append(out[split], row)
	}
	return out
}

func blockSizes(n int, testRatio, devRatio float64) (nTest, nDev int) {
	switch {
	case n <= 1:
		return 0, 0
	case n == 2:
		return 1, 0
	}
	nTest = min(max(int(float64(n)*testRatio), 1), n-2)
	nDev = min(max(int(float64(n)*devRatio), 1), n-1-nTest)
	return nTest, nDev
}
