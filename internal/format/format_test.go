package format

import (
	"math/rand"
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Hi there", "Hi there"},
		{"double star bold", "**Bold** and *kept*", "*Bold* and *kept*"},
		{"bold italic", "***both***", "*_both_*"},
		{"double underscore bold", "a __strong__ word", "a *strong* word"},
		{"strikethrough", "~~old~~ new", "~old~ new"},
		{"heading", "## **Plan**\n\nSome text", "*Plan*\n\nSome text"},
		{"bullets", "- one\n* two\n+ three", "• one\n• two\n• three"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"two blank lines kept as one", "a\n\n\nb", "a\n\nb"},
		{"trailing spaces", "a   \nb\t", "a\nb"},
		{"html paragraphs and lists", "<p>Hello <b>world</b></p><ul><li>one</li><li>two</li></ul>", "Hello *world*\n\n• one\n• two"},
		{"html emphasis", "<em>soft</em> <strong>hard</strong> <code>x</code> <del>gone</del>", "_soft_ *hard* `x` ~gone~"},
		{"html heading", "<h2>Plan</h2>text", "*Plan*\ntext"},
		{"html link", `<a href="https://example.com/a_b">site</a>`, "[site](https://example.com/a%5Fb)"},
		{"html image", `<img src="map.png" alt="Campus map">`, "🖼 Campus map"},
		{"html rule", "a<hr>b", "a\n---\nb"},
		{"html entities", "<i>x</i> &amp; y", "_x_ & y"},
		{"unknown tags", "<span class=\"k\">kept</span> text", "kept text"},
		{"pre block", "<pre><code>x := a*b\n</code></pre>", "```\nx := a*b\n```"},
		{"comparison is not a tag", "a < b and c > d", "a < b and c > d"},
		{"unbalanced bold", "*bold", "bold"},
		{"snake case outside code", "use my_var", "use myvar"},
		{"snake case inside code", "use `my_var`", "use `my_var`"},
		{"bare url", "see https://example.com/a_b", "see https://example.com/a%5Fb"},
		{"fenced block untouched", "```\n**x** <b>y</b> _z\n```", "```\n**x** <b>y</b> _z\n```"},
		{"long closing fence", "```go\nx := 1\n````", "```go\nx := 1\n```"},
		{
			"nested fence example",
			"Example:\n````markdown\n# Title\n```go\nx := 1\n```\n````\nDone",
			"Example:\n```markdown\n# Title\nˋˋˋgo\nx := 1\nˋˋˋ\n```\nDone",
		},
		{"generic type in code", "Use `Vec<String>` or `HashMap<K, V>`", "Use `Vec<String>` or `HashMap<K, V>`"},
		{"comparison without spaces", "if a<b and c>d then", "if a<b and c>d then"},
		{"html next to code span", "<b>bold</b> and `<i>x</i>`", "*bold* and `<i>x</i>`"},
		{
			"numbered steps stay prose",
			"Steps:\n1. Install: run `npm i`\n2. Build: run `npm run build`\n3. Test: run **all** tests",
			"Steps:\n1. Install: run `npm i`\n2. Build: run `npm run build`\n3. Test: run *all* tests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.input); got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormat_IdempotentOnCleanInput(t *testing.T) {
	inputs := []string{
		"Hi there",
		"*bold* and _italic_",
		"• one\n• two",
		"Use `go test ./...` here",
		"```\ncode *x\n```",
		"[site](https://example.com)",
		"*Title*\n\nBody ~old~",
		"Results:\n| Name | Age |\n|------|-----|\n| Bob | 30 |\nDone",
	}
	for _, in := range inputs {
		once := Format(in)
		if twice := Format(once); twice != once {
			t.Errorf("Format not idempotent for %q:\nonce:  %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestFormat_RecoversFromPanic(t *testing.T) {
	orig := stages
	stages = []func(string) string{func(string) string { panic("boom") }}
	defer func() { stages = orig }()

	if got := Format("<b>*Hi*</b> `x`"); got != "Hi x" {
		t.Errorf("Format = %q, want stripped text", got)
	}
}

func TestDetectTables(t *testing.T) {
	t.Run("aligned pipe table", func(t *testing.T) {
		got := DetectTables("Results:\n| Name | Age |\n|------|-----|\n| **Bob** | 30 |\nDone")
		if !strings.HasPrefix(got, "Results:\n```\n") || !strings.HasSuffix(got, "\n```\nDone") {
			t.Fatalf("table not fenced:\n%s", got)
		}
		for _, want := range []string{"| Name | Age |", "| Bob  | 30  |"} {
			if !strings.Contains(got, want) {
				t.Errorf("missing %q in:\n%s", want, got)
			}
		}
		if strings.Contains(got, "---|") {
			t.Errorf("markdown separator row should be replaced:\n%s", got)
		}
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"ragged pipe table kept verbatim",
			"| a | b |\n| c |",
			"```\n| a | b |\n| c |\n```",
		},
		{
			"single pipe lines",
			"Mon | Math\nTue | Physics",
			"```\nMon | Math\nTue | Physics\n```",
		},
		{
			"one single pipe line is not a table",
			"this | that",
			"this | that",
		},
		{
			"key value bullets",
			"Profile:\n- **Name**: Bob\n- Age: 30\n- City: Kyiv",
			"Profile:\n```\n- Name: Bob\n- Age: 30\n- City: Kyiv\n```",
		},
		{
			"two key value bullets are not a table",
			"- Age: 30\n- City: Kyiv",
			"- Age: 30\n- City: Kyiv",
		},
		{
			"numbered key value items are not a table",
			"1. Install: run `npm i`\n2. Build: run **make**\n3. Test: run all",
			"1. Install: run `npm i`\n2. Build: run **make**\n3. Test: run all",
		},
		{
			"already fenced",
			"```\n| a | b |\n| c | d |\n```",
			"```\n| a | b |\n| c | d |\n```",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectTables(tt.input); got != tt.want {
				t.Errorf("DetectTables(%q) =\n%q\nwant\n%q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRepairDelimiters(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"*a* *b", "*a* b"},
		{"a ** b", "a  b"},
		{"___x___", "_x_"},
		{"~~~", ""},
		{"`code", "code"},
		{"``", ""},
		{"````", ""},
		{"`a_b` and _c", "`a_b` and c"},
		{"text ```go\nfmt.Println()", "text go\nfmt.Println()"},
		{"[*bold* link](https://x.com/a_b)", "[bold link](https://x.com/a%5Fb)"},
		{"```\n*a\n```", "```\n*a\n```"},
		{"*a\n```\nx\n```\nb*", "a\n```\nx\n```\nb"},
		{"*fine* _fine_ ~fine~ `fine`", "*fine* _fine_ ~fine~ `fine`"},
		{"````\nx\n````", "```\nx\n```"},
		{"```` a ``` b", "``` a ``` b"},
		{"`a`*```\nx\n```", "`a`\n```\nx\n```"},
	}
	for _, tt := range tests {
		if got := RepairDelimiters(tt.input); got != tt.want {
			t.Errorf("RepairDelimiters(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// Nested and overlapping spans have no defined result beyond being balanced,
// so they are only checked by this property.
func TestRepairDelimiters_Balanced(t *testing.T) {
	inputs := []string{
		"*_a*_",
		"_*a_ b*",
		"**a*",
		"`a *b` c*",
		"[a](b_c) _d",
		"x ``` y ``` z ```",
		"*a `b* c` d*",
		"~_*`",
		"```` *a ``` b* ``` c ```",
		"````x```y````z",
		"`q`*```` w ````",
	}
	rng := rand.New(rand.NewSource(1))
	alphabet := []rune("ab *_~`[]()\nя")
	for i := 0; i < 500; i++ {
		n := rng.Intn(30)
		r := make([]rune, n)
		for j := range r {
			r[j] = alphabet[rng.Intn(len(alphabet))]
		}
		inputs = append(inputs, string(r))
	}

	for _, in := range inputs {
		out := RepairDelimiters(in)
		for _, seg := range splitFences(out) {
			if seg.fenced {
				body := strings.TrimSuffix(strings.TrimPrefix(seg.text, "```"), "```")
				if !strings.HasPrefix(seg.text, "```") || !strings.HasSuffix(seg.text, "```") ||
					strings.HasPrefix(body, "`") || strings.HasSuffix(body, "`") || strings.Contains(body, "```") {
					t.Errorf("RepairDelimiters(%q) = %q has fence %q not delimited by exactly ```", in, out, seg.text)
				}
				continue
			}
			if strings.Contains(seg.text, "```") {
				t.Errorf("RepairDelimiters(%q) = %q leaves a dangling fence", in, out)
			}
			if strings.Count(seg.text, "`")%2 != 0 {
				t.Errorf("RepairDelimiters(%q) = %q has unpaired backticks", in, out)
			}
			m := newMarked(seg.text)
			for _, d := range []byte("*_~") {
				if m.count(d)%2 != 0 {
					t.Errorf("RepairDelimiters(%q) = %q has odd %q count", in, out, d)
				}
			}
		}
		if again := RepairDelimiters(out); again != out {
			t.Errorf("RepairDelimiters not stable for %q: %q then %q", in, out, again)
		}
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"*Hi* _there_ ~x~ `y`", "Hi there x y"},
		{"```go\nfmt.Println(1)\n```", "fmt.Println(1)"},
		{"[site](https://e.com)", "site (https://e.com)"},
		{"[https://e.com](https://e.com)", "https://e.com"},
		{"• one\n• two", "• one\n• two"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.input); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStripMarkup(t *testing.T) {
	if got := StripMarkup("<p><b>*Bold*</b> and <i>_it_</i></p>"); got != "Bold and it" {
		t.Errorf("StripMarkup = %q", got)
	}
}
