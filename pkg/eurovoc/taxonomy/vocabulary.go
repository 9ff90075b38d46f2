package taxonomy

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// vocabularyDoc mirrors the XML schema that publishes the thesaurus as an
// enumeration: schema/simpleType/restriction/enumeration.
type vocabularyDoc struct {
	XMLName     xml.Name         `xml:"schema"`
	SimpleTypes []vocabularyType `xml:"simpleType"`
}

type vocabularyType struct {
	Enumerations []vocabularyEntry `xml:"restriction>enumeration"`
}

type vocabularyEntry struct {
	Value         string   `xml:"value,attr"`
	Documentation []string `xml:"annotation>documentation"`
}

// ErrNoEntries means the document parsed but held no usable terms.
var ErrNoEntries = errors.New("vocabulary has no enumeration entries")

// ParseVocabulary builds the lower-cased label → identifier table.
//
// The label is the documentation text before the first "/"; the identifier
// is the part of the value attribute after "prefix:". Entries missing either
// are skipped.
func ParseVocabulary(data []byte) (map[string]string, error) {
	var doc vocabularyDoc
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}

	terms := make(map[string]string)
	seen := 0
	for _, st := range doc.SimpleTypes {
		for _, e := range st.Enumerations {
			seen++
			if len(e.Documentation) == 0 {
				continue
			}
			label, _, _ := strings.Cut(e.Documentation[0], "/")
			label = strings.ToLower(strings.TrimSpace(label))
			_, id, ok := strings.Cut(e.Value, ":")
			if label == "" || !ok || id == "" {
				continue
			}
			terms[label] = id
		}
	}

	if seen == 0 || len(terms) == 0 {
		return nil, ErrNoEntries
	}
	return terms, nil
}
