// Package markup is an XML document tree with text/tail runs.
//
// Character data is not stored as separate nodes. An element owns the run
// before its first child (Text) and the run after its own end tag up to
// the next sibling (Tail). Splitting a run around a span and splicing a
// new element between the halves is then a matter of reassigning two
// strings and inserting one child, which is what citation annotation
// does.
//
// Comments and processing instructions inside the root element are nodes
// of their own kind. They own a tail like elements do; their Text is the
// comment body or the instruction.
package markup

import (
	"strconv"
	"strings"
)

// Kind distinguishes element nodes from comments and processing
// instructions.
type Kind int

const (
	ElementNode Kind = iota
	CommentNode
	ProcInstNode
)

func (k Kind) String() string {
	switch k {
	case ElementNode:
		return "element"
	case CommentNode:
		return "comment"
	case ProcInstNode:
		return "processing-instruction"
	default:
		return "unknown"
	}
}

// Attr is an attribute. Name carries its prefix, e.g. "xml:lang".
type Attr struct {
	Name  string
	Value string
}

// Node is an element, comment or processing instruction.
type Node struct {
	Kind     Kind
	Tag      string // element name or instruction target
	Attrs    []Attr
	Text     string
	Tail     string
	Children []*Node
	Parent   *Node
}

// NewElement returns a detached element.
func NewElement(tag string, attrs ...Attr) *Node {
	return &Node{Kind: ElementNode, Tag: tag, Attrs: attrs}
}

// IsElement reports whether n is an element named tag. An empty tag
// matches any element.
func (n *Node) IsElement(tag string) bool {
	return n != nil && n.Kind == ElementNode && (tag == "" || n.Tag == tag)
}

// Get returns the value of attribute name.
func (n *Node) Get(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attr returns the value of attribute name, or "".
func (n *Node) Attr(name string) string {
	v, _ := n.Get(name)
	return v
}

// Set adds or replaces attribute name, keeping attribute order.
func (n *Node) Set(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Index returns the position of n among its parent's children, or -1
// for a detached node.
func (n *Node) Index() int {
	if n.Parent == nil {
		return -1
	}
	for i, c := range n.Parent.Children {
		if c == n {
			return i
		}
	}
	return -1
}

// Insert places child at position i of n's children. The child is
// detached from any previous parent first.
func (n *Node) Insert(i int, child *Node) {
	child.Detach()
	if i < 0 {
		i = 0
	}
	if i > len(n.Children) {
		i = len(n.Children)
	}
	n.Children = append(n.Children, nil)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = child
	child.Parent = n
}

// Append adds child as the last child of n.
func (n *Node) Append(child *Node) {
	n.Insert(len(n.Children), child)
}

// InsertAfter places sibling right after n. n must have a parent.
func (n *Node) InsertAfter(sibling *Node) {
	n.Parent.Insert(n.Index()+1, sibling)
}

// Detach removes n from its parent. Its tail goes with it.
func (n *Node) Detach() {
	if n.Parent == nil {
		return
	}
	if i := n.Index(); i >= 0 {
		p := n.Parent
		p.Children = append(p.Children[:i], p.Children[i+1:]...)
	}
	n.Parent = nil
}

// Find returns the first child element named tag.
func (n *Node) Find(tag string) *Node {
	for _, c := range n.Children {
		if c.IsElement(tag) {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants in document order. Returning false
// from fn skips the node's descendants.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Ancestor returns the nearest ancestor element whose tag is one of tags.
func (n *Node) Ancestor(tags ...string) *Node {
	for p := n.Parent; p != nil; p = p.Parent {
		for _, t := range tags {
			if p.Tag == t && p.Kind == ElementNode {
				return p
			}
		}
	}
	return nil
}

// HasAncestor reports whether an ancestor element is named tag.
func (n *Node) HasAncestor(tag string) bool {
	return n.Ancestor(tag) != nil
}

// Itertext returns the text of n's subtree in document order, without
// n's own tail. Comment and instruction bodies are not text; their tails
// are.
func (n *Node) Itertext() string {
	var sb strings.Builder
	n.itertext(&sb)
	return sb.String()
}

func (n *Node) itertext(sb *strings.Builder) {
	if n.Kind == ElementNode {
		sb.WriteString(n.Text)
	}
	for _, c := range n.Children {
		c.itertext(sb)
		sb.WriteString(c.Tail)
	}
}

// Path returns an XPath-like location such as
// "/TEI.2/text[1]/body[1]/entryFree[3]/author[2]". Positions count
// siblings of the same name, starting at 1.
func (n *Node) Path() string {
	var steps []string
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Parent == nil {
			steps = append(steps, cur.step())
			break
		}
		steps = append(steps, cur.step()+"["+strconv.Itoa(cur.position())+"]")
	}
	var sb strings.Builder
	for i := len(steps) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(steps[i])
	}
	return sb.String()
}

func (n *Node) step() string {
	switch n.Kind {
	case CommentNode:
		return "comment()"
	case ProcInstNode:
		return "processing-instruction()"
	}
	return n.Tag
}

func (n *Node) position() int {
	pos := 0
	for _, c := range n.Parent.Children {
		if c.Kind == n.Kind && c.Tag == n.Tag {
			pos++
		}
		if c == n {
			break
		}
	}
	return pos
}

// Clone returns a deep copy of n without a parent.
func (n *Node) Clone() *Node {
	c := &Node{Kind: n.Kind, Tag: n.Tag, Text: n.Text, Tail: n.Tail}
	if n.Attrs != nil {
		c.Attrs = append([]Attr(nil), n.Attrs...)
	}
	for _, child := range n.Children {
		cc := child.Clone()
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}
