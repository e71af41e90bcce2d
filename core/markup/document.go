package markup

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html/charset"

	"github.com/FocuswithJustin/stephanus/core/encoding"
	"github.com/FocuswithJustin/stephanus/core/errors"
)

// Document is a parsed XML file. Everything before the root start tag
// (XML declaration, DOCTYPE, comments) and everything after the root end
// tag is kept verbatim.
type Document struct {
	Prolog []byte
	Root   *Node
	Epilog []byte
}

// Parse reads an XML document.
//
// Named HTML entities are expanded; everything else follows
// encoding/xml, which never fetches external entities.
func Parse(data []byte) (*Document, error) {
	prolog, epilog, err := frame(data)
	if err != nil {
		return nil, errors.NewParse("XML", "", err.Error())
	}

	top, err := xmlquery.ParseWithOptions(bytes.NewReader(data), xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict:        true,
			Entity:        xml.HTMLEntity,
			CharsetReader: charset.NewReaderLabel,
		},
	})
	if err != nil {
		return nil, errors.NewParse("XML", "", err.Error())
	}

	root := findRoot(top)
	if root == nil {
		return nil, errors.NewParse("XML", "", "no root element")
	}

	return &Document{
		Prolog: prolog,
		Root:   convert(root),
		Epilog: epilog,
	}, nil
}

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read", "", err)
	}
	return Parse(data)
}

// frame returns the bytes before the root start tag and after the root
// end tag.
func frame(data []byte) (prolog, epilog []byte, err error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	// Offsets must count input bytes, so no transcoding here.
	d.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	depth := 0
	start := int64(-1)
	for {
		offset := d.InputOffset()
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		switch tok.(type) {
		case xml.StartElement:
			if start < 0 {
				start = offset
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				end := d.InputOffset()
				return clip(data[:start]), clip(data[end:]), nil
			}
		}
	}
	if start < 0 {
		return nil, nil, errors.ErrInvalidInput
	}
	return nil, nil, io.ErrUnexpectedEOF
}

// clip copies b, returning nil for an empty slice.
func clip(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// findRoot returns the first element below the xmlquery document node.
func findRoot(top *xmlquery.Node) *xmlquery.Node {
	for c := top.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
		if c.Type == xmlquery.DeclarationNode {
			if r := findRoot(c); r != nil {
				return r
			}
		}
	}
	return nil
}

// convert folds xmlquery's text nodes into text and tail runs.
func convert(x *xmlquery.Node) *Node {
	n := &Node{Kind: ElementNode, Tag: qualified(x.Prefix, x.Data)}
	for _, a := range x.Attr {
		n.Attrs = append(n.Attrs, Attr{Name: qualified(a.Name.Space, a.Name.Local), Value: a.Value})
	}

	var last *Node
	addText := func(s string) {
		if last == nil {
			n.Text += s
		} else {
			last.Tail += s
		}
	}
	for c := x.FirstChild; c != nil; c = c.NextSibling {
		var child *Node
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			addText(c.Data)
			continue
		case xmlquery.ElementNode:
			child = convert(c)
		case xmlquery.CommentNode:
			child = &Node{Kind: CommentNode, Text: c.Data}
		case xmlquery.ProcessingInstruction:
			child = &Node{Kind: ProcInstNode, Tag: c.Data}
			if c.ProcInst != nil {
				child.Tag, child.Text = c.ProcInst.Target, c.ProcInst.Inst
			}
		default:
			continue
		}
		child.Parent = n
		n.Children = append(n.Children, child)
		last = child
	}
	return n
}

func qualified(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// Bytes serializes the document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = d.WriteTo(&buf)
	return buf.Bytes()
}

// WriteTo serializes the document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Write(d.Prolog)
	writeNode(&buf, d.Root, false)
	buf.Write(d.Epilog)
	return buf.WriteTo(w)
}

// Serialize returns the XML of n and its subtree. withTail appends n's
// tail.
func Serialize(n *Node, withTail bool) string {
	var buf bytes.Buffer
	writeNode(&buf, n, withTail)
	return buf.String()
}

func writeNode(buf *bytes.Buffer, n *Node, withTail bool) {
	switch n.Kind {
	case CommentNode:
		buf.WriteString("<!--")
		buf.WriteString(encoding.EscapeComment(n.Text))
		buf.WriteString("-->")
	case ProcInstNode:
		buf.WriteString("<?")
		buf.WriteString(n.Tag)
		if n.Text != "" {
			buf.WriteByte(' ')
			buf.WriteString(n.Text)
		}
		buf.WriteString("?>")
	default:
		buf.WriteByte('<')
		buf.WriteString(n.Tag)
		for _, a := range n.Attrs {
			buf.WriteByte(' ')
			buf.WriteString(a.Name)
			buf.WriteString(`="`)
			buf.WriteString(encoding.EscapeXMLAttr(a.Value))
			buf.WriteByte('"')
		}
		if n.Text == "" && len(n.Children) == 0 {
			buf.WriteString("/>")
			break
		}
		buf.WriteByte('>')
		buf.WriteString(encoding.EscapeXMLText(n.Text))
		for _, c := range n.Children {
			writeNode(buf, c, true)
		}
		buf.WriteString("</")
		buf.WriteString(n.Tag)
		buf.WriteByte('>')
	}
	if withTail {
		buf.WriteString(encoding.EscapeXMLText(n.Tail))
	}
}

// Itertext returns the text of the whole document in document order.
func (d *Document) Itertext() string {
	return d.Root.Itertext()
}

// Walk visits every node of the document in document order.
func (d *Document) Walk(fn func(*Node) bool) {
	d.Root.Walk(fn)
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	return &Document{
		Prolog: clip(d.Prolog),
		Root:   d.Root.Clone(),
		Epilog: clip(d.Epilog),
	}
}
