package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxDefaultPart  = "word/document.xml"
	contentTypesPart = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// contentTypes is the subset of [Content_Types].xml needed to locate the
// main document part.
type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// extractDOCX reads the main document part of an OOXML package and returns
// its text, one paragraph per line.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	part := docxDefaultPart
	if raw, err := readZipFile(zr, contentTypesPart); err == nil {
		var ct contentTypes
		if xml.Unmarshal(raw, &ct) == nil {
			for _, o := range ct.Overrides {
				if o.ContentType == docxMainType {
					part = strings.TrimPrefix(o.PartName, "/")
					break
				}
			}
		}
	}

	raw, err := readZipFile(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	return docxText(raw)
}

// docxText walks WordprocessingML and collects w:t runs, breaking lines at
// paragraph ends, w:br and w:tab.
func docxText(raw []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("extract DOCX: parse: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br":
				b.WriteByte('\n')
			case "tab":
				b.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}
