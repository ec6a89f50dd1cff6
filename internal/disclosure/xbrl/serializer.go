package xbrl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Serialize renders the document as inline XBRL (XHTML). Namespaces are
// written once, on the root element only.
func Serialize(doc *Document) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	w := &xmlWriter{enc: xml.NewEncoder(&buf)}
	w.enc.Indent("", "  ")

	rootAttrs := []xml.Attr{attr("xmlns", NamespaceXHTML)}
	for _, ns := range doc.Namespaces {
		rootAttrs = append(rootAttrs, attr("xmlns:"+ns.Prefix, ns.URI))
	}
	rootAttrs = append(rootAttrs, attr("xml:lang", doc.Lang))

	w.start("html", rootAttrs...)

	w.start("head")
	w.start("meta", attr("http-equiv", "Content-Type"), attr("content", "text/html; charset=UTF-8"))
	w.end("meta")
	w.leaf("title", doc.Title)
	w.end("head")

	w.start("body")
	w.start("div", attr("style", "display:none"))
	w.start("ix:header")
	w.start("ix:references")
	w.start("link:schemaRef", attr("xlink:type", "simple"), attr("xlink:href", doc.SchemaRef))
	w.end("link:schemaRef")
	w.end("ix:references")
	w.start("ix:resources")
	for _, c := range doc.Contexts {
		writeContext(w, c)
	}
	for _, u := range doc.Units {
		writeUnit(w, u)
	}
	w.end("ix:resources")
	w.end("ix:header")
	w.end("div")

	if doc.Title != "" {
		w.leaf("h1", doc.Title)
	}
	w.start("table")
	w.start("tbody")
	for _, f := range doc.Facts {
		w.start("tr")
		label := f.Label
		if label == "" {
			label = localName(f.Concept)
		}
		w.leaf("td", label)
		w.start("td")
		writeFact(w, f)
		w.end("td")
		w.end("tr")
	}
	w.end("tbody")
	w.end("table")
	w.end("body")
	w.end("html")

	if err := w.flush(); err != nil {
		return "", &StructuralError{Kind: KindMalformedOutput, Detail: err.Error()}
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

func writeContext(w *xmlWriter, c Context) {
	w.start("xbrli:context", attr("id", c.ID))
	w.start("xbrli:entity")
	w.leaf("xbrli:identifier", c.Entity.Identifier, attr("scheme", c.Entity.Scheme))
	w.end("xbrli:entity")
	w.start("xbrli:period")
	if c.Period.IsInstant() {
		w.leaf("xbrli:instant", c.Period.Instant.Format(DateLayout))
	} else {
		w.leaf("xbrli:startDate", c.Period.Start.Format(DateLayout))
		w.leaf("xbrli:endDate", c.Period.End.Format(DateLayout))
	}
	w.end("xbrli:period")
	w.end("xbrli:context")
}

func writeUnit(w *xmlWriter, u Unit) {
	w.start("xbrli:unit", attr("id", u.ID))
	if u.Measure.IsDivide() {
		w.start("xbrli:divide")
		w.start("xbrli:unitNumerator")
		w.leaf("xbrli:measure", u.Measure.Numerator)
		w.end("xbrli:unitNumerator")
		w.start("xbrli:unitDenominator")
		w.leaf("xbrli:measure", u.Measure.Denominator)
		w.end("xbrli:unitDenominator")
		w.end("xbrli:divide")
	} else {
		w.leaf("xbrli:measure", u.Measure.Numerator)
	}
	w.end("xbrli:unit")
}

func writeFact(w *xmlWriter, f Fact) {
	if f.Kind == KindText {
		w.leaf("ix:nonNumeric", f.Text,
			attr("id", f.ID),
			attr("name", f.Concept),
			attr("contextRef", f.ContextRef),
			attr("xml:lang", f.Lang))
		return
	}

	attrs := []xml.Attr{
		attr("id", f.ID),
		attr("name", f.Concept),
		attr("contextRef", f.ContextRef),
		attr("unitRef", f.UnitRef),
	}
	if f.Decimals != nil {
		attrs = append(attrs, attr("decimals", strconv.Itoa(*f.Decimals)))
	}
	if f.Format != "" {
		attrs = append(attrs, attr("format", f.Format))
	}
	attrs = append(attrs, attr("scale", "0"))
	if f.Negative {
		attrs = append(attrs, attr("sign", "-"))
	}
	w.leaf("ix:nonFraction", f.Text, attrs...)
}

// xmlWriter wraps an encoder and keeps the first error
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (w *xmlWriter) token(t xml.Token) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(t)
}

func (w *xmlWriter) start(name string, attrs ...xml.Attr) {
	w.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (w *xmlWriter) end(name string) {
	w.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (w *xmlWriter) leaf(name, text string, attrs ...xml.Attr) {
	w.start(name, attrs...)
	if text != "" {
		w.token(xml.CharData(text))
	}
	w.end(name)
}

func (w *xmlWriter) flush() error {
	if w.err != nil {
		return w.err
	}
	return w.enc.Flush()
}

// VerifyWellFormed re-parses serialized output and checks that it has a
// single root, declares each prefix once on that root, uses no undeclared
// prefix in element names, attributes, concept names or measures, and that
// every contextRef and unitRef resolves to a unique id
func VerifyWellFormed(text string) error {
	malformed := func(format string, args ...any) error {
		return &StructuralError{Kind: KindMalformedOutput, Detail: fmt.Sprintf(format, args...)}
	}

	dec := xml.NewDecoder(strings.NewReader(text))
	declared := map[string]bool{"xml": true}
	ids := make(map[string]bool)
	var contextRefs, unitRefs []string

	var stack []xml.Name
	roots := 0
	inMeasure, inNonFraction := false, false
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return malformed("output is not well-formed: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 {
				roots++
				if roots > 1 {
					return malformed("output has more than one root element")
				}
				for _, a := range t.Attr {
					if a.Name.Space != "xmlns" {
						continue
					}
					if declared[a.Name.Local] {
						return &StructuralError{Kind: KindDuplicateNamespace, Detail: fmt.Sprintf("xmlns:%s declared more than once", a.Name.Local)}
					}
					declared[a.Name.Local] = true
				}
			}
			stack = append(stack, t.Name)

			if t.Name.Space != "" && !declared[t.Name.Space] {
				return &StructuralError{Kind: KindUndeclaredNamespace, Detail: fmt.Sprintf("element %s:%s uses an undeclared prefix", t.Name.Space, t.Name.Local)}
			}
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "xmlns":
					if len(stack) > 1 {
						return &StructuralError{Kind: KindDuplicateNamespace, Detail: fmt.Sprintf("xmlns:%s declared below the root", a.Name.Local)}
					}
					continue
				case a.Name.Space != "" && !declared[a.Name.Space]:
					return &StructuralError{Kind: KindUndeclaredNamespace, Detail: fmt.Sprintf("attribute %s:%s uses an undeclared prefix", a.Name.Space, a.Name.Local)}
				}
				switch a.Name.Local {
				case "id":
					if ids[a.Value] {
						return &StructuralError{Kind: KindDuplicateID, Detail: fmt.Sprintf("id %q appears more than once", a.Value)}
					}
					ids[a.Value] = true
				case "contextRef":
					contextRefs = append(contextRefs, a.Value)
				case "unitRef":
					unitRefs = append(unitRefs, a.Value)
				case "name", "format":
					if t.Name.Space == "ix" {
						if p := prefixOf(a.Value); p == "" || !declared[p] {
							return &StructuralError{Kind: KindUndeclaredNamespace, Concept: a.Value, Detail: "qualified name uses an undeclared prefix"}
						}
					}
				}
			}
			inMeasure = t.Name.Space == "xbrli" && t.Name.Local == "measure"
			inNonFraction = t.Name.Space == "ix" && t.Name.Local == "nonFraction"

		case xml.EndElement:
			if len(stack) == 0 || stack[len(stack)-1] != t.Name {
				return malformed("unexpected end tag %s", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
			inMeasure, inNonFraction = false, false

		case xml.CharData:
			if inMeasure {
				m := strings.TrimSpace(string(t))
				if p := prefixOf(m); p == "" || !declared[p] {
					return &StructuralError{Kind: KindUndeclaredNamespace, Detail: fmt.Sprintf("measure %q uses an undeclared prefix", m)}
				}
			}
			if inNonFraction && ContainsExoticSpace(string(t)) {
				return &StructuralError{Kind: KindInvalidWhitespace, Detail: fmt.Sprintf("numeric text %q contains a non-standard space", string(t))}
			}
		}
	}

	if roots != 1 || len(stack) != 0 {
		return malformed("output must have exactly one complete root element")
	}
	for _, ref := range contextRefs {
		if !ids[ref] {
			return &StructuralError{Kind: KindUnresolvedReference, ContextID: ref, Detail: "contextRef does not resolve"}
		}
	}
	for _, ref := range unitRefs {
		if !ids[ref] {
			return &StructuralError{Kind: KindUnresolvedReference, UnitID: ref, Detail: "unitRef does not resolve"}
		}
	}
	return nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
