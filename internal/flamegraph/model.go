// Package flamegraph builds flame graph data from allocation stack traces,
// weighted by allocated bytes.
package flamegraph

// Node represents a node in the flame graph tree. Each node is one stack
// frame; Value is the total bytes allocated through it.
type Node struct {
	Name     string  `json:"name"`
	Value    int64   `json:"value"`
	Count    int64   `json:"count"`
	Children []*Node `json:"children,omitempty"`

	// Internal use only, not serialized
	childrenMap map[string]int `json:"-"`
}

// NewNode creates a new flame graph node.
func NewNode(name string, value int64) *Node {
	return &Node{
		Name:        name,
		Value:       value,
		Children:    make([]*Node, 0),
		childrenMap: make(map[string]int),
	}
}

// Child returns the child with the given frame name, creating it if needed.
func (n *Node) Child(name string) *Node {
	if idx, exists := n.childrenMap[name]; exists {
		return n.Children[idx]
	}
	child := NewNode(name, 0)
	n.childrenMap[name] = len(n.Children)
	n.Children = append(n.Children, child)
	return child
}

// GetChild returns a child node by name, or nil if not found.
func (n *Node) GetChild(name string) *Node {
	if idx, exists := n.childrenMap[name]; exists {
		return n.Children[idx]
	}
	return nil
}

// FlameGraph represents the complete flame graph structure.
type FlameGraph struct {
	Root       *Node `json:"root"`
	TotalBytes int64 `json:"totalBytes"`
	MaxDepth   int   `json:"maxDepth,omitempty"`
}

// NewFlameGraph creates a new flame graph with an empty root node.
func NewFlameGraph() *FlameGraph {
	return &FlameGraph{
		Root: NewNode("root", 0),
	}
}

// Cleanup removes internal maps and filters nodes below threshold.
// minPercent is the minimum percentage (0-100) for a node to be kept.
func (fg *FlameGraph) Cleanup(minPercent float64) {
	if fg.Root == nil {
		return
	}

	threshold := int64(float64(fg.TotalBytes) * minPercent / 100.0)
	fg.cleanupNode(fg.Root, threshold)
}

func (fg *FlameGraph) cleanupNode(node *Node, threshold int64) {
	node.childrenMap = nil

	if len(node.Children) == 0 {
		node.Children = nil
		return
	}

	filtered := make([]*Node, 0, len(node.Children))
	for _, child := range node.Children {
		if child.Value >= threshold {
			fg.cleanupNode(child, threshold)
			filtered = append(filtered, child)
		}
	}

	if len(filtered) == 0 {
		node.Children = nil
	} else {
		node.Children = filtered
	}
}

// CalculateMaxDepth calculates the maximum depth of the flame graph.
func (fg *FlameGraph) CalculateMaxDepth() int {
	if fg.Root == nil {
		return 0
	}
	fg.MaxDepth = fg.calculateDepth(fg.Root, 0)
	return fg.MaxDepth
}

func (fg *FlameGraph) calculateDepth(node *Node, currentDepth int) int {
	if len(node.Children) == 0 {
		return currentDepth
	}

	maxChildDepth := currentDepth
	for _, child := range node.Children {
		childDepth := fg.calculateDepth(child, currentDepth+1)
		if childDepth > maxChildDepth {
			maxChildDepth = childDepth
		}
	}
	return maxChildDepth
}
