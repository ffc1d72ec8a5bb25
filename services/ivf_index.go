package services

import "sort"

// ivfIndex is an inverted-file index over unit vectors: vectors are assigned
// to the nearest of nlist k-means centroids and a query scans only the nprobe
// lists whose centroids are closest to it. Results are approximate: every
// returned score is exact, but a true top-k member in an unprobed list is missed.
type ivfIndex struct {
	centroids [][]float32
	lists     [][]int // positions into the entry slice
	nprobe    int
	trainedOn int
}

const ivfIterations = 8

// trainIVF runs spherical k-means over vectors. Initial centroids are spread
// evenly over insertion order so training is deterministic.
func trainIVF(vectors [][]float32, nlist, nprobe int) *ivfIndex {
	if nlist > len(vectors) {
		nlist = len(vectors)
	}
	if nlist < 1 {
		nlist = 1
	}
	if nprobe < 1 {
		nprobe = 1
	}
	if nprobe > nlist {
		nprobe = nlist
	}
	dim := len(vectors[0])

	centroids := make([][]float32, nlist)
	for i := range centroids {
		c := make([]float32, dim)
		copy(c, vectors[i*len(vectors)/nlist])
		centroids[i] = c
	}

	assign := make([]int, len(vectors))
	for iter := 0; iter < ivfIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(centroids, v)
			if iter == 0 || best != assign[i] {
				changed = true
			}
			assign[i] = best
		}
		if !changed {
			break
		}

		sums := make([][]float64, nlist)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		counts := make([]int, nlist)
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // keep the previous centroid for an empty list
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
			normalize(centroids[c])
		}
	}

	idx := &ivfIndex{centroids: centroids, lists: make([][]int, nlist), nprobe: nprobe, trainedOn: len(vectors)}
	for i, v := range vectors {
		c := nearestCentroid(centroids, v)
		idx.lists[c] = append(idx.lists[c], i)
	}
	return idx
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestScore := 0, -2.0
	for i, c := range centroids {
		if s := dot(c, v); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// add places a vector appended after training.
func (idx *ivfIndex) add(pos int, v []float32) {
	c := nearestCentroid(idx.centroids, v)
	idx.lists[c] = append(idx.lists[c], pos)
}

// candidates returns the positions in the nprobe lists closest to q.
func (idx *ivfIndex) candidates(q []float32) []int {
	type ranked struct {
		list  int
		score float64
	}
	order := make([]ranked, len(idx.centroids))
	for i, c := range idx.centroids {
		order[i] = ranked{list: i, score: dot(c, q)}
	}
	sort.Slice(order, func(a, b int) bool { return order[a].score > order[b].score })

	var out []int
	for _, r := range order[:idx.nprobe] {
		out = append(out, idx.lists[r.list]...)
	}
	return out
}
