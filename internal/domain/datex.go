package domain

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Envelope is the SOAP wrapper around the DATEX II payload.
type Envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    Body     `xml:"Body"`
}

// Body holds the single d2LogicalModel element of the publication.
type Body struct {
	Model D2LogicalModel `xml:"d2LogicalModel"`
}

// D2LogicalModel is the DATEX II document root.
type D2LogicalModel struct {
	Publication PayloadPublication `xml:"payloadPublication"`
}

// PayloadPublication carries the snapshot's situations.
type PayloadPublication struct {
	PublicationTime string      `xml:"publicationTime"`
	Situations      []Situation `xml:"situation"`
}

// Situation groups one or more records under a shared identifier and an
// overall severity classification.
type Situation struct {
	ID              string            `xml:"id,attr"`
	OverallSeverity string            `xml:"overallSeverity"`
	Records         []SituationRecord `xml:"situationRecord"`
}

// SituationRecord maps the fields that live at fixed paths and retains the
// raw inner XML for descendant lookups. Geometry, road numbers, and comments
// sit at depths that vary with the concrete record class, so they are
// resolved by scanning Inner rather than by struct tags.
type SituationRecord struct {
	ID       string `xml:"id,attr"`
	Type     string `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	Source   string `xml:"source>sourceIdentification"`
	StartRaw string `xml:"validity>validityTimeSpecification>overallStartTime"`
	EndRaw   string `xml:"validity>validityTimeSpecification>overallEndTime"`
	Inner    []byte `xml:",innerxml"`
}

// ParseDocument unmarshals a raw feed snapshot. A failure here is fatal for
// the whole run; there is no partial output from a malformed document.
func ParseDocument(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse datex document: %w", err)
	}
	return &env, nil
}

// TypeName returns the record's xsi:type discriminator with any namespace
// prefix stripped, e.g. "ns2:Accident" -> "Accident".
func (r *SituationRecord) TypeName() string {
	t := strings.TrimSpace(r.Type)
	if i := strings.LastIndex(t, ":"); i >= 0 {
		t = t[i+1:]
	}
	return t
}

// eachElement walks the record's inner XML and calls fn once per closing
// element with the open-element stack (the ending element last) and its
// trimmed character data. Returning false from fn stops the walk. Malformed
// trailing content ends the walk silently; descendant lookups are
// best-effort by design, only document-level parsing is strict.
func (r *SituationRecord) eachElement(fn func(stack []xml.StartElement, text string) bool) {
	dec := xml.NewDecoder(bytes.NewReader(r.Inner))
	var stack []xml.StartElement
	var texts []string

	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Copy())
			texts = append(texts, "")
		case xml.CharData:
			if n := len(texts); n > 0 {
				texts[n-1] += string(t)
			}
		case xml.EndElement:
			n := len(stack) - 1
			if n < 0 {
				return
			}
			keep := fn(stack, strings.TrimSpace(texts[n]))
			stack = stack[:n]
			texts = texts[:n]
			if !keep {
				return
			}
		}
	}
}

// firstText returns the character data of the first non-empty descendant
// element with the given local name, in document order.
func (r *SituationRecord) firstText(local string) (string, bool) {
	var out string
	var found bool
	r.eachElement(func(stack []xml.StartElement, text string) bool {
		if stack[len(stack)-1].Name.Local != local || text == "" {
			return true
		}
		out, found = text, true
		return false
	})
	return out, found
}

// firstTextOr is firstText with a fallback value.
func (r *SituationRecord) firstTextOr(local, fallback string) string {
	if v, ok := r.firstText(local); ok {
		return v
	}
	return fallback
}

// localizedComments collects the values of <value lang="..."> elements found
// under a generalPublicComment, in document order.
func (r *SituationRecord) localizedComments(lang string) []string {
	var out []string
	r.eachElement(func(stack []xml.StartElement, text string) bool {
		last := stack[len(stack)-1]
		if last.Name.Local != "value" || text == "" {
			return true
		}
		if attrValue(last, "lang") != lang {
			return true
		}
		for _, anc := range stack[:len(stack)-1] {
			if anc.Name.Local == "generalPublicComment" {
				out = append(out, text)
				break
			}
		}
		return true
	})
	return out
}

// containsAnyKeyword reports whether the serialized record matches any of the
// given keywords, case-insensitively. Used both for the flooding subtype
// fallback and for the generic problem labelling.
func (r *SituationRecord) containsAnyKeyword(keywords []string) (string, bool) {
	if len(keywords) == 0 {
		return "", false
	}
	haystack := strings.ToLower(string(r.Inner))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func attrValue(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
