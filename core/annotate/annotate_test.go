package annotate

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	sterrors "github.com/FocuswithJustin/stephanus/core/errors"
	"github.com/FocuswithJustin/stephanus/core/markup"
	"github.com/FocuswithJustin/stephanus/core/stephanus"
	"github.com/FocuswithJustin/stephanus/core/worktable"
)

func newAnnotator(t *testing.T) *Annotator {
	t.Helper()
	a, err := New(DefaultProfile(), worktable.MustDefault())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a
}

func parse(t *testing.T, s string) *markup.Document {
	t.Helper()
	doc, err := markup.Parse([]byte(s))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return doc
}

func candidateTexts(cands []Candidate) []string {
	var out []string
	for _, c := range cands {
		out = append(out, c.Node.Tag+":"+c.Node.Text)
	}
	return out
}

func TestRunWrapsQualifiedAndBare(t *testing.T) {
	a := newAnnotator(t)
	doc := parse(t, `<r><entryFree><head>ὠνή</head> <author>Plu.</author> 2.510f, 625b, 693a.</entryFree></r>`)

	res := a.Run(doc)
	if res.Wrapped != 3 || res.Rejected != 0 || res.Aborted != 0 {
		t.Fatalf("Run() = wrapped %d rejected %d aborted %d, want 3/0/0", res.Wrapped, res.Rejected, res.Aborted)
	}

	want := `<r><entryFree><head>ὠνή</head> <author>Plu.</author> ` +
		`<bibl n="Perseus:abo:tlg,0007,102:510f">2.510f</bibl>, ` +
		`<bibl n="Perseus:abo:tlg,0007,112:625b">625b</bibl>, ` +
		`<bibl n="Perseus:abo:tlg,0007,112:693a">693a</bibl>.</entryFree></r>`
	if got := string(doc.Bytes()); got != want {
		t.Errorf("Bytes() mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}

	for _, d := range res.Diagnostics {
		if d.Headword != "ὠνή" {
			t.Errorf("diagnostic headword = %q, want %q", d.Headword, "ὠνή")
		}
		if d.Path != "/r/entryFree[1]/author[1]" {
			t.Errorf("diagnostic path = %q", d.Path)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	a := newAnnotator(t)
	input := `<r><div2><head>a</head><author>Plu.</author> 2.37b; <author>Id.</author> 1.38c, 2.1148a; <title>IG</title> 12.38c</div2></r>`
	doc := parse(t, input)
	first := a.Run(doc)
	if first.Wrapped != 2 {
		t.Fatalf("first Run() wrapped %d, want 2", first.Wrapped)
	}
	once := string(doc.Bytes())

	again := parse(t, once)
	second := a.Run(again)
	if second.Wrapped != 0 {
		t.Errorf("second Run() wrapped %d, want 0", second.Wrapped)
	}
	if got := string(again.Bytes()); got != once {
		t.Errorf("second Run() changed the document (-want +got):\n%s", cmp.Diff(once, got))
	}
}

func TestRunPreservesText(t *testing.T) {
	inputs := []string{
		`<r><author>Plu.</author> 2.510f, 625b, 693a</r>`,
		`<r><author>Plu.</author> <i>refinement,</i> 2.972d; cf. 973a, 1148a</r>`,
		`<r><p><author>Plu.</author> text <i>x</i> 2.14c</p> 15a <author>Hdt.</author> 1.38c</r>`,
		`<r><author>Plu.</author> ὠνίους ἐξάγειν 2.680e; <author>Id.</author><author>Id.</author> 681a &amp; 1.2.510f</r>`,
	}
	a := newAnnotator(t)
	for _, in := range inputs {
		doc := parse(t, in)
		before := doc.Itertext()
		a.Run(doc)
		if after := doc.Itertext(); after != before {
			t.Errorf("Itertext changed:\nbefore %q\nafter  %q", before, after)
		}
	}
}

func TestBackReferenceChain(t *testing.T) {
	a := newAnnotator(t)
	doc := parse(t, `<r><author>Plu.</author> x <author>Id.</author> y <author>Id.</author> 2.37b</r>`)

	cands := a.Candidates(doc)
	if len(cands) != 1 {
		t.Fatalf("Candidates() = %v, want one", candidateTexts(cands))
	}
	third := doc.Root.Children[2]
	if cands[0].Node != third {
		t.Errorf("candidate = %s, want the third marker", cands[0].Node.Path())
	}
}

func TestOtherAuthorEndsContext(t *testing.T) {
	a := newAnnotator(t)
	doc := parse(t, `<r><author>Plu.</author> 2.37b <author>Pl.</author> <title>R.</title> 510c <author>Id.</author> 511a</r>`)
	got := candidateTexts(a.Candidates(doc))
	if diff := cmp.Diff([]string{"author:Plu."}, got); diff != "" {
		t.Errorf("Candidates() mismatch (-want +got):\n%s", diff)
	}
}

func TestTitleExclusion(t *testing.T) {
	a := newAnnotator(t)
	doc := parse(t, `<r><author>Plu.</author><title>38c</title> 38c</r>`)
	for _, c := range a.Candidates(doc) {
		if c.Node.Tag == "title" {
			t.Errorf("title element %s is a candidate", c.Path)
		}
	}

	doc = parse(t, `<r><author>Plu.</author><title>Inscr.</title> 38c</r>`)
	if n := len(a.Candidates(doc)); n != 0 {
		t.Errorf("Candidates() returned %d nodes for a title tail, want 0", n)
	}
}

func TestCitationSubtreeSkipped(t *testing.T) {
	a := newAnnotator(t)
	doc := parse(t, `<r><bibl n="x"><author>Plu.</author> 2.37b <i>y</i> 625b</bibl></r>`)
	if n := len(a.Candidates(doc)); n != 0 {
		t.Errorf("Candidates() returned %d nodes inside a citation, want 0", n)
	}
}

func TestPostOrder(t *testing.T) {
	a := newAnnotator(t)
	doc := parse(t, `<r><author>Plu.</author><p><i>a</i> 2.37b<b>c</b> 38c</p> 39a</r>`)
	got := candidateTexts(a.Candidates(doc))
	want := []string{"i:a", "b:c", "p:"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Candidates() order mismatch (-want +got):\n%s", diff)
	}

	res := a.Run(doc)
	if res.Wrapped != 3 {
		t.Errorf("Run() wrapped %d, want 3", res.Wrapped)
	}
}

func TestAmbiguousSplitAbortsNode(t *testing.T) {
	a := newAnnotator(t)
	input := `<r><author>Plu.</author> cf. 1.2.510f<author>Id.</author> 2.37b</r>`
	doc := parse(t, input)

	res := a.Run(doc)
	if res.Aborted != 1 || res.Wrapped != 1 {
		t.Fatalf("Run() = aborted %d wrapped %d, want 1/1", res.Aborted, res.Wrapped)
	}
	if !errors.Is(res.Errors[0], sterrors.ErrAmbiguousSplit) {
		t.Errorf("error = %v, want ErrAmbiguousSplit", res.Errors[0])
	}
	var nodeErr *sterrors.NodeError
	if !errors.As(res.Errors[0], &nodeErr) || nodeErr.Path != "/r/author[1]" {
		t.Errorf("error = %#v, want NodeError at /r/author[1]", res.Errors[0])
	}
	if got := doc.Root.Children[0].Tail; got != " cf. 1.2.510f" {
		t.Errorf("aborted node tail = %q, want it untouched", got)
	}
}

func TestRejectionsAreReported(t *testing.T) {
	a := newAnnotator(t)
	doc := parse(t, `<r><author>Plu.</author> 2.37b, 1148a, 38c</r>`)

	res := a.Run(doc)
	if res.Wrapped != 2 || res.Rejected != 1 {
		t.Fatalf("Run() = wrapped %d rejected %d, want 2/1", res.Wrapped, res.Rejected)
	}
	var rejected []Diagnostic
	for _, d := range res.Diagnostics {
		if d.Kind == KindRejected {
			rejected = append(rejected, d)
		}
	}
	if len(rejected) != 1 || rejected[0].Token != "1148a" {
		t.Errorf("rejected diagnostics = %+v", rejected)
	}

	want := `<r><author>Plu.</author> <bibl n="Perseus:abo:tlg,0007,068:37b">2.37b</bibl>, 1148a, <bibl n="Perseus:abo:tlg,0007,069:38c">38c</bibl></r>`
	if got := string(doc.Bytes()); got != want {
		t.Errorf("Bytes() = %s\nwant      %s", got, want)
	}
}

func TestTableRejectsBelowCeiling(t *testing.T) {
	table, err := worktable.New([]worktable.Entry{
		{Author: 7, Work: 1, Abbreviation: "A", Start: stephanus.MustParse("1a"), End: stephanus.MustParse("100f")},
	})
	if err != nil {
		t.Fatalf("worktable.New() error: %v", err)
	}
	a, err := New(DefaultProfile(), table)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	doc := parse(t, `<r><author>Plu.</author> 50a, 500a</r>`)
	res := a.Run(doc)
	if res.Wrapped != 1 || res.Rejected != 1 {
		t.Fatalf("Run() = wrapped %d rejected %d, want 1/1", res.Wrapped, res.Rejected)
	}
	for _, d := range res.Diagnostics {
		if d.Kind == KindRejected && !strings.Contains(d.Reason, "500a") {
			t.Errorf("rejection reason = %q", d.Reason)
		}
	}
}

func TestPlan(t *testing.T) {
	a := newAnnotator(t)
	m := a.mutator

	plan, err := m.Plan(" 2.510f, 625b, 693a")
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.Prefix != " " {
		t.Errorf("Prefix = %q, want %q", plan.Prefix, " ")
	}
	var raws, tails, ids []string
	for _, w := range plan.Wraps {
		raws = append(raws, w.Raw)
		tails = append(tails, w.Tail)
		ids = append(ids, w.Identifier.Token)
	}
	if diff := cmp.Diff([]string{"2.510f", "625b", "693a"}, raws); diff != "" {
		t.Errorf("raw tokens mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{", ", ", ", ""}, tails); diff != "" {
		t.Errorf("tails mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"510f", "625b", "693a"}, ids); diff != "" {
		t.Errorf("canonical tokens mismatch (-want +got):\n%s", diff)
	}

	empty, err := m.Plan(" nothing")
	if err != nil || len(empty.Wraps) != 0 || empty.Prefix != " nothing" {
		t.Errorf("Plan(no tokens) = %+v, %v", empty, err)
	}
}

func TestWrapAllRootFails(t *testing.T) {
	a := newAnnotator(t)
	doc := parse(t, `<r>2.37b</r>`)
	if _, _, err := a.mutator.WrapAll(doc.Root); !errors.Is(err, sterrors.ErrInvalidInput) {
		t.Errorf("WrapAll(root) error = %v, want ErrInvalidInput", err)
	}
}

func TestIdentifier(t *testing.T) {
	id := Identifier{Namespace: "Perseus:abo", Scheme: "tlg", Author: 7, Work: 69, Token: "38c"}
	if got := id.String(); got != "Perseus:abo:tlg,0007,069:38c" {
		t.Errorf("String() = %q", got)
	}
	parsed, err := ParseIdentifier(id.String())
	if err != nil {
		t.Fatalf("ParseIdentifier() error: %v", err)
	}
	if parsed != id {
		t.Errorf("ParseIdentifier() = %+v, want %+v", parsed, id)
	}

	for _, bad := range []string{"", "Perseus:abo:tlg,7,69:38c", "Perseus:abo:tlg,0007,069:38g", "tlg,0007,069:38c"} {
		if _, err := ParseIdentifier(bad); !errors.Is(err, sterrors.ErrInvalidInput) {
			t.Errorf("ParseIdentifier(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestProfileValidate(t *testing.T) {
	if err := DefaultProfile().Validate(); err != nil {
		t.Fatalf("DefaultProfile().Validate() error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"empty author", func(p *Profile) { p.TargetAuthor = "" }},
		{"same back reference", func(p *Profile) { p.BackReference = p.TargetAuthor }},
		{"bad ceiling", func(p *Profile) { p.Ceiling = "2.1147a" }},
		{"empty tag", func(p *Profile) { p.CitationTag = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, sterrors.ErrInvalidInput) {
				t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}
