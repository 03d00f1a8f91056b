package propose

import (
	"github.com/kerimala/MKUEMRLP/internal/textutil"
)

// group collects all candidate occurrences sharing one key within a
// category, in first-seen order.
type group struct {
	key     string
	members []SourcedCandidate
}

// best returns the member with the highest confidence, ties going to
// the earliest occurrence.
func (g *group) best() SourcedCandidate {
	best := g.members[0]
	for _, m := range g.members[1:] {
		if m.Candidate.Confidence > best.Candidate.Confidence {
			best = m
		}
	}
	return best
}

func (g *group) docCount() int {
	docs := make(map[string]bool, len(g.members))
	for _, m := range g.members {
		docs[m.DocID] = true
	}
	return len(docs)
}

// groupByKey partitions candidates by key, preserving the order in
// which keys first appear.
func groupByKey(candidates []SourcedCandidate) []*group {
	index := make(map[string]*group)
	var groups []*group
	for _, sc := range candidates {
		g, seen := index[sc.Candidate.Key]
		if !seen {
			g = &group{key: sc.Candidate.Key}
			index[sc.Candidate.Key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, sc)
	}
	return groups
}

// cluster joins groups whose keys are at least threshold similar.
// Greedy and single-pass in first-seen order: once a key is absorbed it
// is not reconsidered, so the partition depends on traversal order.
// That approximation is inherited behavior, kept stable by the
// first-seen ordering of groupByKey.
func cluster(groups []*group, threshold int) []*group {
	var clusters []*group
	for _, g := range groups {
		attached := false
		for _, cl := range clusters {
			if textutil.Ratio(g.key, cl.key) >= threshold {
				cl.members = append(cl.members, g.members...)
				attached = true
				break
			}
		}
		if !attached {
			seed := &group{key: g.key, members: append([]SourcedCandidate(nil), g.members...)}
			clusters = append(clusters, seed)
		}
	}
	return clusters
}
