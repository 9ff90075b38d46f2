package body

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const documentPart = "word/document.xml"

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// ExtractWordML returns the paragraph text of a WordprocessingML document.
// content is either a zipped package or its bare main document part.
// Legacy binary documents are reported as unsupported.
func ExtractWordML(content []byte) (string, error) {
	switch {
	case bytes.HasPrefix(content, oleMagic):
		return "", fmt.Errorf("%w: legacy binary document", internalerr.ErrUnsupportedFormat)
	case bytes.HasPrefix(content, zipMagic):
		part, err := readDocumentPart(content)
		if err != nil {
			return "", err
		}
		return wordText(bytes.NewReader(part))
	default:
		return wordText(bytes.NewReader(content))
	}
}

func readDocumentPart(content []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	f, err := zr.Open(documentPart)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", documentPart, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func wordText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var sb strings.Builder
	inText := false
	sawDocument := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "document":
				sawDocument = true
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	if !sawDocument {
		return "", fmt.Errorf("%w: no WordprocessingML document element", internalerr.ErrUnsupportedFormat)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
