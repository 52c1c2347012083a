// Package hierarchy builds category trees with rolled-up totals and merges
// trees computed independently per bank account.
package hierarchy

import (
	"fmt"
	"sort"

	"github.com/rumor-ml/commons.systems/pjledger/internal/classify"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

// Node is a category with its computed totals. Outflows are magnitudes.
type Node struct {
	domain.CategoryDefinition
	Inflows        domain.Cents `json:"inflows"`
	Outflows       domain.Cents `json:"outflows"`
	Net            domain.Cents `json:"net"`
	DirectInflows  domain.Cents `json:"directInflows"`
	DirectOutflows domain.Cents `json:"directOutflows"`
	Children       []*Node      `json:"children"`
}

// Totals are the report-wide sums over all roots.
type Totals struct {
	Inflows  domain.Cents `json:"inflows"`
	Outflows domain.Cents `json:"outflows"`
	Net      domain.Cents `json:"net"`
}

// Tree is a forest with one root per ledger group that has activity.
type Tree struct {
	Roots             []*Node                      `json:"roots"`
	NodesByPath       map[string]*Node             `json:"-"`
	RootByLedgerGroup map[domain.LedgerGroup]*Node `json:"-"`
	Totals            Totals                       `json:"totals"`
	Warnings          []domain.Warning             `json:"warnings,omitempty"`
}

type flow struct {
	in, out domain.Cents
}

func (f *flow) add(c domain.Cents) {
	if c > 0 {
		f.in += c
	} else {
		f.out -= c
	}
}

// BuildCostTree classifies txns against idx and rolls totals up the category
// hierarchy. Direct totals are recorded only on the node a transaction posts
// to; every ancestor receives the same amounts as rolled-up totals. Paths
// without activity are not materialized.
//
// A cyclic ancestor chain or a missing parent returns a *domain.StructuralError.
func BuildCostTree(txns []domain.Transaction, idx classify.Index) (*Tree, error) {
	direct := make(map[string]*flow)
	var warnings []domain.Warning

	for _, txn := range txns {
		res := classify.Classify(txn, idx)
		c := txn.Cents()
		if c == 0 {
			continue
		}
		if res.Redirected {
			warnings = append(warnings, domain.Warning{
				Code:    domain.WarnPostingRedirected,
				Entity:  "transaction",
				ID:      txn.ID,
				Message: fmt.Sprintf("%s does not accept postings, posted to %s", res.RequestedPath, res.Path),
			})
		}
		f, ok := direct[res.Path]
		if !ok {
			f = &flow{}
			direct[res.Path] = f
		}
		f.add(c)
	}

	// Walk leaves in path order so a structural error is reported deterministically.
	leaves := make([]string, 0, len(direct))
	for p := range direct {
		leaves = append(leaves, p)
	}
	sort.Strings(leaves)

	nodes := make(map[string]*Node)
	for _, leaf := range leaves {
		f := direct[leaf]
		visited := make(map[string]bool)
		for cur := leaf; cur != ""; {
			if visited[cur] {
				return nil, &domain.StructuralError{Path: cur, Reason: "category is its own ancestor"}
			}
			visited[cur] = true

			def, ok := idx.Lookup(cur)
			if !ok {
				return nil, &domain.StructuralError{Path: cur, Reason: "category referenced by " + leaf + " not found"}
			}
			n, ok := nodes[cur]
			if !ok {
				n = &Node{CategoryDefinition: def}
				nodes[cur] = n
			}
			n.Inflows += f.in
			n.Outflows += f.out
			if cur == leaf {
				n.DirectInflows += f.in
				n.DirectOutflows += f.out
			}
			cur = def.ParentPath
		}
	}

	tree, err := assemble(nodes)
	if err != nil {
		return nil, err
	}
	tree.Warnings = warnings
	return tree, nil
}

// assemble links materialized nodes to their parents, derives net, sorts every
// level and computes totals.
func assemble(nodes map[string]*Node) (*Tree, error) {
	tree := &Tree{
		Roots:             []*Node{},
		NodesByPath:       nodes,
		RootByLedgerGroup: make(map[domain.LedgerGroup]*Node),
	}

	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		n := nodes[p]
		n.Children = nil
	}
	for _, p := range paths {
		n := nodes[p]
		n.Net = n.Inflows - n.Outflows
		if n.ParentPath == "" {
			tree.Roots = append(tree.Roots, n)
			tree.RootByLedgerGroup[n.LedgerGroup] = n
			continue
		}
		parent, ok := nodes[n.ParentPath]
		if !ok {
			return nil, &domain.StructuralError{Path: p, Reason: "missing parent " + n.ParentPath}
		}
		parent.Children = append(parent.Children, n)
	}

	for _, n := range nodes {
		sortChildren(n.Children)
	}
	sort.Slice(tree.Roots, func(i, j int) bool {
		a, b := tree.Roots[i], tree.Roots[j]
		if a.LedgerGroup.SortOrder() != b.LedgerGroup.SortOrder() {
			return a.LedgerGroup.SortOrder() < b.LedgerGroup.SortOrder()
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Path < b.Path
	})

	for _, r := range tree.Roots {
		tree.Totals.Inflows += r.Inflows
		tree.Totals.Outflows += r.Outflows
	}
	tree.Totals.Net = tree.Totals.Inflows - tree.Totals.Outflows
	return tree, nil
}

func sortChildren(children []*Node) {
	sort.Slice(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Path < b.Path
	})
}

// Verify checks the rollup invariant at every node: inflows equal the sum of
// the children's inflows plus direct inflows, and likewise for outflows.
func Verify(tree *Tree) error {
	var check func(n *Node) error
	check = func(n *Node) error {
		in, out := n.DirectInflows, n.DirectOutflows
		for _, c := range n.Children {
			if err := check(c); err != nil {
				return err
			}
			in += c.Inflows
			out += c.Outflows
		}
		if in != n.Inflows || out != n.Outflows {
			return fmt.Errorf("rollup mismatch at %s: inflows %s vs %s, outflows %s vs %s",
				n.Path, n.Inflows, in, n.Outflows, out)
		}
		if n.Net != n.Inflows-n.Outflows {
			return fmt.Errorf("net mismatch at %s", n.Path)
		}
		return nil
	}
	for _, r := range tree.Roots {
		if err := check(r); err != nil {
			return err
		}
	}
	return nil
}

// Walk visits every node depth-first in sorted order.
func (t *Tree) Walk(fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range t.Roots {
		visit(r, 0)
	}
}
