package aggregate

import (
	"slices"

	"github.com/TobiSchelling/surveylens/internal/survey"
)

// TopicNode is one node of a TopicTree. Children and Parent are arena
// indices; Parent is -1 for roots.
type TopicNode struct {
	Name     string
	Count    int
	RowIDs   []int
	Parent   int
	Children []int
	// Expanded is display state only.
	Expanded bool
}

// TopicTree is a forest of topic paths stored in a flat arena. A tree is
// never mutated after it is built except for Expanded flags.
type TopicTree struct {
	nodes []TopicNode
	roots []int
}

type nodeKey struct {
	parent int
	name   string
}

// BuildTopicTree walks each record's topic list as a path from the root.
// Every node along the path counts the record once and remembers its row
// ID. Roots are ordered by descending count, ties in first-seen order;
// children keep first-seen order.
func BuildTopicTree(records []survey.ClassifiedRecord) *TopicTree {
	t := &TopicTree{}
	index := make(map[nodeKey]int)

	for i := range records {
		c := records[i].Classification
		if c == nil {
			continue
		}
		parent := -1
		for _, name := range c.Topics {
			if name == "" {
				break
			}
			key := nodeKey{parent: parent, name: name}
			n, ok := index[key]
			if !ok {
				n = len(t.nodes)
				index[key] = n
				t.nodes = append(t.nodes, TopicNode{Name: name, Parent: parent})
				if parent < 0 {
					t.roots = append(t.roots, n)
				} else {
					t.nodes[parent].Children = append(t.nodes[parent].Children, n)
				}
			}
			t.nodes[n].Count++
			t.nodes[n].RowIDs = append(t.nodes[n].RowIDs, records[i].RowID)
			parent = n
		}
	}

	slices.SortStableFunc(t.roots, func(a, b int) int { return t.nodes[b].Count - t.nodes[a].Count })
	return t
}

// Len returns the number of nodes.
func (t *TopicTree) Len() int { return len(t.nodes) }

// Roots returns the root indices in display order.
func (t *TopicTree) Roots() []int { return t.roots }

// Node returns the node at index i.
func (t *TopicTree) Node(i int) TopicNode { return t.nodes[i] }

// Children returns the child indices of node i in first-seen order.
func (t *TopicTree) Children(i int) []int { return t.nodes[i].Children }

// Path returns the topic names from the root down to node i.
func (t *TopicTree) Path(i int) []string {
	var path []string
	for ; i >= 0; i = t.nodes[i].Parent {
		path = append(path, t.nodes[i].Name)
	}
	slices.Reverse(path)
	return path
}

// Find returns the index of the node at path.
func (t *TopicTree) Find(path []string) (int, bool) {
	level := t.roots
	found := -1
	for _, name := range path {
		found = -1
		for _, n := range level {
			if t.nodes[n].Name == name {
				found = n
				break
			}
		}
		if found < 0 {
			return -1, false
		}
		level = t.nodes[found].Children
	}
	return found, found >= 0
}

// SetExpanded sets the display flag of node i.
func (t *TopicTree) SetExpanded(i int, expanded bool) {
	t.nodes[i].Expanded = expanded
}

// TreeView is a nested rendering of a TopicTree for JSON and templates.
type TreeView struct {
	Name     string     `json:"name"`
	Count    int        `json:"count"`
	RowIDs   []int      `json:"row_ids"`
	Expanded bool       `json:"expanded"`
	Children []TreeView `json:"children,omitempty"`
}

// View returns the forest as nested values in display order.
func (t *TopicTree) View() []TreeView {
	return t.view(t.roots)
}

func (t *TopicTree) view(idx []int) []TreeView {
	if len(idx) == 0 {
		return nil
	}
	out := make([]TreeView, 0, len(idx))
	for _, i := range idx {
		n := t.nodes[i]
		out = append(out, TreeView{
			Name:     n.Name,
			Count:    n.Count,
			RowIDs:   n.RowIDs,
			Expanded: n.Expanded,
			Children: t.view(n.Children),
		})
	}
	return out
}
