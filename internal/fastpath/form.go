package fastpath

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// dayFieldPattern matches the per-day unit inputs of the Days Attend form.
var dayFieldPattern = regexp.MustCompile(`^day(\d{1,2})$`)

// FormField is one input of a parsed portal form, in document order.
type FormField struct {
	Name     string
	Value    string
	Disabled bool
}

// ParsedForm is a portal HTML form with every input preserved in document
// order. The portal trusts the client to echo hidden state back verbatim,
// so nothing may be dropped between fetch and submit.
type ParsedForm struct {
	// Action is the form's submit target, possibly relative.
	Action string
	Method string

	fields []FormField
	index  map[string]int
}

// ParseForm extracts the first form from an HTML document.
func ParseForm(body []byte) (*ParsedForm, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "fastpath: parse form html")
	}

	form := findForm(doc)
	if form == nil {
		return nil, eris.New("fastpath: no form in document")
	}

	pf := &ParsedForm{
		Action: attr(form, "action"),
		Method: strings.ToUpper(attr(form, "method")),
		index:  make(map[string]int),
	}
	if pf.Method == "" {
		pf.Method = "POST"
	}

	collectInputs(form, pf)
	return pf, nil
}

func findForm(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "form" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findForm(c); f != nil {
			return f
		}
	}
	return nil
}

func collectInputs(n *html.Node, pf *ParsedForm) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "input":
			name := attr(n, "name")
			if name != "" {
				pf.append(FormField{
					Name:     name,
					Value:    attr(n, "value"),
					Disabled: hasAttr(n, "disabled") || hasAttr(n, "readonly"),
				})
			}
		case "select":
			name := attr(n, "name")
			if name != "" {
				pf.append(FormField{
					Name:     name,
					Value:    selectedOption(n),
					Disabled: hasAttr(n, "disabled"),
				})
			}
		case "textarea":
			name := attr(n, "name")
			if name != "" {
				pf.append(FormField{
					Name:     name,
					Value:    textContent(n),
					Disabled: hasAttr(n, "disabled"),
				})
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectInputs(c, pf)
	}
}

func selectedOption(sel *html.Node) string {
	var first, selected string
	seen := false
	for c := sel.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "option" {
			continue
		}
		v := attr(c, "value")
		if v == "" {
			v = textContent(c)
		}
		if !seen {
			first = v
			seen = true
		}
		if hasAttr(c, "selected") {
			selected = v
		}
	}
	if selected != "" {
		return selected
	}
	return first
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func (f *ParsedForm) append(field FormField) {
	if _, ok := f.index[field.Name]; !ok {
		f.index[field.Name] = len(f.fields)
	}
	f.fields = append(f.fields, field)
}

// Get returns the current value of the named field.
func (f *ParsedForm) Get(name string) (string, bool) {
	i, ok := f.index[name]
	if !ok {
		return "", false
	}
	return f.fields[i].Value, true
}

// Set overwrites the named field's value. Setting an absent field is an
// error: the submit must echo exactly the fields the portal rendered.
func (f *ParsedForm) Set(name, value string) error {
	i, ok := f.index[name]
	if !ok {
		return eris.Errorf("fastpath: form has no field %q", name)
	}
	f.fields[i].Value = value
	return nil
}

// Has reports whether the form rendered the named field.
func (f *ParsedForm) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Fields returns the fields in document order.
func (f *ParsedForm) Fields() []FormField {
	return f.fields
}

// DayFields returns day number → field for every per-day input, including
// disabled ones. Day availability is decided here: a rendered, enabled
// input is enterable; a missing or disabled input is unavailable.
func (f *ParsedForm) DayFields() map[int]FormField {
	out := make(map[int]FormField)
	for _, field := range f.fields {
		m := dayFieldPattern.FindStringSubmatch(field.Name)
		if m == nil {
			continue
		}
		day, err := strconv.Atoi(m[1])
		if err != nil || day < 1 || day > 31 {
			continue
		}
		out[day] = field
	}
	return out
}

// DayFieldName returns the input name for a day of the month.
func DayFieldName(day int) string {
	return "day" + strconv.Itoa(day)
}

// Values encodes the form for submission, preserving document order and
// duplicate names.
func (f *ParsedForm) Values() url.Values {
	vals := make(url.Values, len(f.fields))
	for _, field := range f.fields {
		vals[field.Name] = append(vals[field.Name], field.Value)
	}
	return vals
}
