package markup

import (
	"sort"

	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/stephanus/core/errors"
)

// part says which piece of a node a navigator stands on. Text and tail
// runs are exposed to XPath as text nodes.
type part int

const (
	partNode part = iota
	partText
	partTail
)

// Navigator implements xpath.NodeNavigator over a Document.
type Navigator struct {
	doc  *Document
	node *Node // nil for the document node
	part part
	attr int
}

// NewNavigator returns a navigator positioned on the document node.
func NewNavigator(doc *Document) *Navigator {
	return &Navigator{doc: doc, attr: -1}
}

// CreateNavigator returns a navigator positioned on n.
func (d *Document) CreateNavigator(n *Node) *Navigator {
	return &Navigator{doc: d, node: n, attr: -1}
}

// Current returns the node the navigator stands on. For text runs it is
// the node owning the run; it is nil on the document node.
func (x *Navigator) Current() *Node {
	return x.node
}

func (x *Navigator) NodeType() xpath.NodeType {
	switch {
	case x.node == nil:
		return xpath.RootNode
	case x.part != partNode:
		return xpath.TextNode
	case x.attr != -1:
		return xpath.AttributeNode
	case x.node.Kind == CommentNode:
		return xpath.CommentNode
	}
	return xpath.ElementNode
}

func (x *Navigator) LocalName() string {
	if x.node == nil || x.part != partNode {
		return ""
	}
	name := x.node.Tag
	if x.attr != -1 {
		name = x.node.Attrs[x.attr].Name
	}
	if _, local := splitName(name); local != "" {
		return local
	}
	return name
}

func (x *Navigator) Prefix() string {
	if x.node == nil || x.part != partNode {
		return ""
	}
	name := x.node.Tag
	if x.attr != -1 {
		name = x.node.Attrs[x.attr].Name
	}
	prefix, _ := splitName(name)
	return prefix
}

func (x *Navigator) Value() string {
	switch {
	case x.node == nil:
		return x.doc.Itertext()
	case x.part == partText:
		return x.node.Text
	case x.part == partTail:
		return x.node.Tail
	case x.attr != -1:
		return x.node.Attrs[x.attr].Value
	case x.node.Kind != ElementNode:
		return x.node.Text
	}
	return x.node.Itertext()
}

func (x *Navigator) Copy() xpath.NodeNavigator {
	n := *x
	return &n
}

func (x *Navigator) MoveToRoot() {
	x.node, x.part, x.attr = nil, partNode, -1
}

func (x *Navigator) MoveToParent() bool {
	switch {
	case x.node == nil:
		return false
	case x.attr != -1:
		x.attr = -1
	case x.part == partText:
		x.part = partNode
	case x.part == partTail:
		x.node, x.part = x.node.Parent, partNode
	default:
		x.node = x.node.Parent
	}
	return true
}

func (x *Navigator) MoveToNextAttribute() bool {
	if x.node == nil || x.part != partNode || x.node.Kind != ElementNode {
		return false
	}
	if x.attr >= len(x.node.Attrs)-1 {
		return false
	}
	x.attr++
	return true
}

func (x *Navigator) MoveToChild() bool {
	if x.attr != -1 || x.part != partNode {
		return false
	}
	if x.node == nil {
		x.node = x.doc.Root
		return true
	}
	if x.node.Kind != ElementNode {
		return false
	}
	if x.node.Text != "" {
		x.part = partText
		return true
	}
	if len(x.node.Children) > 0 {
		x.node = x.node.Children[0]
		return true
	}
	return false
}

func (x *Navigator) MoveToFirst() bool {
	if x.attr != -1 || x.node == nil || x.node == x.doc.Root && x.part == partNode {
		return false
	}
	parent := x.node.Parent
	if x.part == partText {
		return false
	}
	if parent.Text != "" {
		x.node, x.part = parent, partText
		return true
	}
	first := parent.Children[0]
	if first == x.node && x.part == partNode {
		return false
	}
	x.node, x.part = first, partNode
	return true
}

func (x *Navigator) MoveToNext() bool {
	if x.attr != -1 || x.node == nil {
		return false
	}
	switch x.part {
	case partText:
		if len(x.node.Children) == 0 {
			return false
		}
		x.node, x.part = x.node.Children[0], partNode
		return true
	case partNode:
		if x.node.Parent == nil {
			return false
		}
		if x.node.Tail != "" {
			x.part = partTail
			return true
		}
	}
	siblings := x.node.Parent.Children
	i := x.node.Index()
	if i+1 >= len(siblings) {
		return false
	}
	x.node, x.part = siblings[i+1], partNode
	return true
}

func (x *Navigator) MoveToPrevious() bool {
	if x.attr != -1 || x.node == nil {
		return false
	}
	switch x.part {
	case partText:
		return false
	case partTail:
		x.part = partNode
		return true
	}
	parent := x.node.Parent
	if parent == nil {
		return false
	}
	i := x.node.Index()
	if i == 0 {
		if parent.Text == "" {
			return false
		}
		x.node, x.part = parent, partText
		return true
	}
	prev := parent.Children[i-1]
	x.node, x.part = prev, partNode
	if prev.Tail != "" {
		x.part = partTail
	}
	return true
}

func (x *Navigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*Navigator)
	if !ok || o.doc != x.doc {
		return false
	}
	*x = *o
	return true
}

func splitName(name string) (prefix, local string) {
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

// Select evaluates an XPath expression against the document and returns
// the element nodes it selects, in document order.
func (d *Document) Select(expr string) ([]*Node, error) {
	return d.SelectFrom(nil, expr)
}

// SelectFrom evaluates expr with n as the context node. A nil n means the
// document node.
func (d *Document) SelectFrom(n *Node, expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, errors.NewValidation("xpath", err.Error())
	}
	return d.SelectCompiled(n, compiled), nil
}

// SelectCompiled is SelectFrom for a precompiled expression.
func (d *Document) SelectCompiled(n *Node, expr *xpath.Expr) []*Node {
	var nodes []*Node
	seen := make(map[*Node]bool)
	it := expr.Select(d.CreateNavigator(n))
	for it.MoveNext() {
		nav, ok := it.Current().(*Navigator)
		if !ok || nav.node == nil || nav.part != partNode || nav.attr != -1 {
			continue
		}
		if !seen[nav.node] {
			seen[nav.node] = true
			nodes = append(nodes, nav.node)
		}
	}
	if len(nodes) > 1 {
		d.sortByPosition(nodes)
	}
	return nodes
}

// sortByPosition puts nodes in document order. Iterators over "//x[p]"
// yield matches in evaluation order.
func (d *Document) sortByPosition(nodes []*Node) {
	order := make(map[*Node]int, len(nodes))
	for _, n := range nodes {
		order[n] = -1
	}
	i := 0
	d.Walk(func(n *Node) bool {
		if _, ok := order[n]; ok {
			order[n] = i
		}
		i++
		return true
	})
	sort.SliceStable(nodes, func(a, b int) bool { return order[nodes[a]] < order[nodes[b]] })
}

// SelectOne returns the first element selected by expr, or nil.
func (d *Document) SelectOne(expr string) (*Node, error) {
	nodes, err := d.Select(expr)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}
