package stats

// ItemCount is an item and how many times it occurred.
type ItemCount struct {
	Item  string
	Count int
}

// frequencyTable counts occurrences while keeping first-seen order.
type frequencyTable struct {
	index map[string]int
	pairs []ItemCount
}

func newFrequencyTable() *frequencyTable {
	return &frequencyTable{index: make(map[string]int)}
}

func (ft *frequencyTable) add(item string) {
	if i, ok := ft.index[item]; ok {
		ft.pairs[i].Count++
		return
	}
	ft.index[item] = len(ft.pairs)
	ft.pairs = append(ft.pairs, ItemCount{Item: item, Count: 1})
}

// TopKFrequent returns up to k (item, count) pairs in descending count order.
// Negative k is treated as 0.
//
// Each round scans the remaining candidates for the first maximum (strict
// greater-than), emits it, then swaps it with the last candidate and pops.
// Ties therefore go to whichever item comes first in the *current* candidate
// order, which after the first removal is not simply first-inserted order.
// Cost is O(n + k*u) for u unique items.
func TopKFrequent(items []string, k int) []ItemCount {
	ft := newFrequencyTable()
	for _, item := range items {
		ft.add(item)
	}
	return selectTopK(ft.pairs, k)
}

// TopKFrequentNullable is TopKFrequent over nullable values; nils are skipped.
func TopKFrequentNullable(items []*string, k int) []ItemCount {
	ft := newFrequencyTable()
	for _, item := range items {
		if item == nil {
			continue
		}
		ft.add(*item)
	}
	return selectTopK(ft.pairs, k)
}

func selectTopK(pairs []ItemCount, k int) []ItemCount {
	if k < 0 {
		k = 0
	}
	rounds := k
	if len(pairs) < rounds {
		rounds = len(pairs)
	}

	result := make([]ItemCount, 0, rounds)
	for r := 0; r < rounds; r++ {
		maxIdx := 0
		for i := 1; i < len(pairs); i++ {
			if pairs[i].Count > pairs[maxIdx].Count {
				maxIdx = i
			}
		}
		result = append(result, pairs[maxIdx])

		last := len(pairs) - 1
		pairs[maxIdx], pairs[last] = pairs[last], pairs[maxIdx]
		pairs = pairs[:last]
	}
	return result
}
