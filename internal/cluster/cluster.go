// Package cluster groups images whose embeddings are close under cosine
// similarity.
package cluster

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/dejaview/internal/model"
	"github.com/kozaktomas/dejaview/internal/progress"
)

// pair is two linked indices, i < j.
type pair struct {
	i, j int
}

// Cluster compares every pair of embeddings and returns the connected
// components of the "similarity >= threshold" graph that have at least two
// members. The outer comparison loop runs on GOMAXPROCS workers.
//
// Membership is deterministic for fixed input. Cluster order and member
// order carry no meaning. Returns model.ErrCancelled if ctx is done before
// all comparisons finish.
func Cluster(ctx context.Context, embeddings model.EmbeddingMap, threshold float64, sink progress.Sink) (model.ClusterList, error) {
	return clusterWithWorkers(ctx, embeddings, threshold, sink, runtime.GOMAXPROCS(0))
}

func clusterWithWorkers(ctx context.Context, embeddings model.EmbeddingMap, threshold float64, sink progress.Sink, workers int) (model.ClusterList, error) {
	report := progress.Monotonic(sink)

	paths := embeddings.Paths()
	sort.Strings(paths)
	n := len(paths)
	if n == 0 {
		report(100)
		return model.ClusterList{}, nil
	}

	dim := len(embeddings[paths[0]])
	vectors := make([][]float32, n)
	norms := make([]float64, n)
	for i, p := range paths {
		v := embeddings[p]
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %s has %d values, expected %d", model.ErrDimensionMismatch, p, len(v), dim)
		}
		vectors[i] = v
		norms[i] = norm(v)
	}

	pairs, err := linkedPairs(ctx, vectors, norms, threshold, report, workers)
	if err != nil {
		return nil, err
	}

	ds := NewDisjointSet(n)
	for _, p := range pairs {
		ds.Union(p.i, p.j)
	}

	groups := make(map[int][]string)
	for i := range n {
		root := ds.Find(i)
		groups[root] = append(groups[root], paths[i])
	}

	clusters := model.ClusterList{}
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		clusters = append(clusters, model.Cluster(members))
	}

	// Largest first for readable output; members are already sorted.
	sort.Slice(clusters, func(a, b int) bool {
		if len(clusters[a]) != len(clusters[b]) {
			return len(clusters[a]) > len(clusters[b])
		}
		return clusters[a][0] < clusters[b][0]
	})

	return clusters, nil
}

// linkedPairs returns every (i, j), i < j, whose similarity is at least
// threshold. Outer indices are handed out to workers one at a time and
// progress is reported as each one completes.
func linkedPairs(ctx context.Context, vectors [][]float32, norms []float64, threshold float64, report progress.Sink, workers int) ([]pair, error) {
	n := len(vectors)
	workers = max(1, min(workers, n))

	var (
		next  atomic.Int64
		done  atomic.Int64
		mu    sync.Mutex
		pairs []pair
	)

	group, gctx := errgroup.WithContext(ctx)
	for range workers {
		group.Go(func() error {
			var local []pair
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= n {
					return nil
				}

				local = local[:0]
				for j := i + 1; j < n; j++ {
					if similarityWithNorms(vectors[i], vectors[j], norms[i], norms[j]) >= threshold {
						local = append(local, pair{i: i, j: j})
					}
				}
				if len(local) > 0 {
					mu.Lock()
					pairs = append(pairs, local...)
					mu.Unlock()
				}

				report(progress.Percent(int(done.Add(1)), n))
			}
		})
	}

	if err := group.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, model.ErrCancelled
		}
		return nil, err
	}
	return pairs, nil
}
