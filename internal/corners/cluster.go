package corners

import (
	"sort"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
)

// Cluster is a group of corner-response points believed to mark one
// physical corner.
type Cluster []geometry.Point

// Centroid averages the cluster members.
func (c Cluster) Centroid() geometry.Point { return geometry.Centroid(c) }

// ClusterPoints groups points by transitive closure: a point joins a cluster
// when it lies within maxDistance (inclusive) of any member already in it.
// Clusters are returned largest first; equal sizes keep discovery order.
func ClusterPoints(points []geometry.Point, maxDistance float64) []Cluster {
	unassigned := append([]geometry.Point(nil), points...)
	var clusters []Cluster

	for len(unassigned) > 0 {
		current := Cluster{unassigned[0]}
		unassigned = unassigned[1:]

		for idx := 0; idx < len(current); idx++ {
			member := current[idx]
			for i := len(unassigned) - 1; i >= 0; i-- {
				if geometry.Distance(member, unassigned[i]) <= maxDistance {
					current = append(current, unassigned[i])
					unassigned = append(unassigned[:i], unassigned[i+1:]...)
				}
			}
		}
		clusters = append(clusters, current)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i]) > len(clusters[j])
	})
	return clusters
}

// Centroids averages each cluster into a single point.
func Centroids(clusters []Cluster) []geometry.Point {
	out := make([]geometry.Point, len(clusters))
	for i, c := range clusters {
		out[i] = c.Centroid()
	}
	return out
}
