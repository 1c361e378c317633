package content

import (
	"cmp"
	"slices"
	"strings"

	"github.com/integreat/contentapi/internal/store"
)

// Tree indexes the parent hierarchy of one content type across all languages and answers
// visibility questions with memoised ancestor walks.
type Tree struct {
	nodes     map[int64]store.TreeNode
	published map[int64]int
	visible   map[int64]bool
	issues    map[int64]*DataIntegrityError
}

func NewTree(nodes []store.TreeNode) *Tree {
	t := &Tree{
		nodes:     make(map[int64]store.TreeNode, len(nodes)),
		published: make(map[int64]int),
		visible:   make(map[int64]bool, len(nodes)),
		issues:    make(map[int64]*DataIntegrityError),
	}
	for _, n := range nodes {
		t.Ensure(n)
	}
	return t
}

// Ensure adds n unless a node with the same id is already known.
func (t *Tree) Ensure(n store.TreeNode) {
	if _, ok := t.nodes[n.ID]; ok {
		return
	}
	t.nodes[n.ID] = n
	if n.Status == store.StatusPublish && n.Parent != 0 {
		t.published[n.Parent]++
	}
}

// PublishedChildren counts the published direct children of id.
func (t *Tree) PublishedChildren(id int64) int {
	return t.published[id]
}

// Visible reports whether id is published and every ancestor up to the root is published.
// A missing parent ends the walk; a parent cycle makes every node on it invisible.
func (t *Tree) Visible(id int64) bool {
	if v, ok := t.visible[id]; ok {
		return v
	}
	if _, ok := t.nodes[id]; !ok {
		return false
	}

	var chain []int64
	onChain := make(map[int64]int)
	ancestorsOK := true
	cur := id
	for {
		if v, ok := t.visible[cur]; ok {
			ancestorsOK = v
			break
		}
		node, ok := t.nodes[cur]
		if !ok {
			orphan := chain[len(chain)-1]
			t.issues[orphan] = &DataIntegrityError{ItemID: orphan, Kind: KindOrphanedParent, Reason: "parent does not exist"}
			break
		}
		if at, seen := onChain[cur]; seen {
			for _, member := range chain[at:] {
				t.issues[member] = &DataIntegrityError{ItemID: member, Kind: KindParentCycle, Reason: "parent chain loops back to this item"}
			}
			ancestorsOK = false
			break
		}
		onChain[cur] = len(chain)
		chain = append(chain, cur)
		if node.Parent == 0 {
			break
		}
		cur = node.Parent
	}

	for i := len(chain) - 1; i >= 0; i-- {
		ancestorsOK = ancestorsOK && t.nodes[chain[i]].Status == store.StatusPublish
		t.visible[chain[i]] = ancestorsOK
	}
	return t.visible[id]
}

// Issues returns the integrity problems met by the walks performed so far.
func (t *Tree) Issues() []*DataIntegrityError {
	out := make([]*DataIntegrityError, 0, len(t.issues))
	for _, issue := range t.issues {
		out = append(out, issue)
	}
	slices.SortFunc(out, func(a, b *DataIntegrityError) int { return cmp.Compare(a.ItemID, b.ItemID) })
	return out
}

// Path joins the slugs from the root down to id. The walk stops at a missing parent or a cycle.
func (t *Tree) Path(id int64) string {
	var slugs []string
	seen := make(map[int64]bool)
	for cur := id; cur != 0 && !seen[cur]; {
		node, ok := t.nodes[cur]
		if !ok {
			break
		}
		seen[cur] = true
		slugs = append(slugs, node.Slug)
		cur = node.Parent
	}
	for i, j := 0, len(slugs)-1; i < j; i, j = i+1, j-1 {
		slugs[i], slugs[j] = slugs[j], slugs[i]
	}
	return strings.Join(slugs, "/")
}

// Node returns the indexed node for id.
func (t *Tree) Node(id int64) (store.TreeNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}
