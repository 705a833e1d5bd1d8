package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name    string
		content string
		ext     string
		want    string
	}{
		{"text", "Hello world\nLine 2", ".txt", "Hello world\nLine 2"},
		{"markdown utf8", "caf\xc3\xa9", ".MD", "café"},
		{"invalid utf8", "hello\x80world", ".rst", "hello�world"},
		{"bom", "\xEF\xBB\xBFbaşlık", ".txt", "başlık"},
		{"no extension", "raw", "", "raw"},
		{"blank lines collapse", "a  \r\n\r\n\r\n\nb\n", ".txt", "a\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes([]byte(tt.content), tt.ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_unsupported(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("x"), ".exe")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestSupports(t *testing.T) {
	e := NewExtractor()
	for _, p := range []string{"a.txt", "b.PDF", "c.docx", "d.xlsx", "e.md"} {
		if !e.Supports(p) {
			t.Errorf("Supports(%q) = false", p)
		}
	}
	for _, p := range []string{"a.pptx", "b.exe", "noext"} {
		if e.Supports(p) {
			t.Errorf("Supports(%q) = true", p)
		}
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Şehir")
	f.SetCellValue("Sheet1", "B1", "Nüfus")
	f.SetCellValue("Sheet1", "A2", "İstanbul")
	f.SetCellValue("Sheet1", "B2", "15655924")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Şehir | Nüfus\nİstanbul | 15655924" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_excelMultipleSheets(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "bir")
	if _, err := f.NewSheet("Veri"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Veri", "A1", "iki")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if got != "# Sheet1\nbir\n\n# Veri\niki" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_files(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "not.txt")
	if err := os.WriteFile(txt, []byte("File content\n"), 0600); err != nil {
		t.Fatal(err)
	}
	xlsx := filepath.Join(dir, "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Searchable text")
	if err := f.SaveAs(xlsx); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	e := NewExtractor()
	for path, want := range map[string]string{txt: "File content", xlsx: "Searchable text"} {
		got, err := e.Extract(path)
		if err != nil {
			t.Fatalf("Extract(%s): %v", path, err)
		}
		if got != want {
			t.Errorf("Extract(%s) = %q, want %q", path, got, want)
		}
	}
}

func TestExtract_errors(t *testing.T) {
	e := NewExtractor(WithMaxBytes(4))
	if _, err := e.Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte("too large"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Extract(path); err == nil || !strings.Contains(err.Error(), "limit") {
		t.Errorf("err = %v, want size limit error", err)
	}
}

func docxZip(files map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(body))
	}
	_ = w.Close()
	return buf.Bytes()
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func TestExtractBytes_docx(t *testing.T) {
	body := `<w:document ` + wordNS + `><w:body>` +
		`<w:p w:rsidR="00AB"><w:r><w:t>Birinci</w:t></w:r><w:r><w:t xml:space="preserve"> paragraf</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>İkinci</w:t><w:tab/><w:t>satır</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	got, err := NewExtractor().ExtractBytes(docxZip(map[string]string{"word/document.xml": body}), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Birinci paragraf\nİkinci\tsatır" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxContentTypes(t *testing.T) {
	ct := `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Override ContentType="` + docxMainType + `" PartName="/word/document2.xml"/></Types>`
	body := `<w:document ` + wordNS + `><w:body><w:p><w:r><w:t>alternatif</w:t></w:r></w:p></w:body></w:document>`
	got, err := NewExtractor().ExtractBytes(docxZip(map[string]string{
		"[Content_Types].xml": ct,
		"word/document2.xml":  body,
	}), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "alternatif" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip input")
	}
	if _, err := e.ExtractBytes(docxZip(map[string]string{"other.xml": "<a/>"}), ".docx"); err == nil {
		t.Error("expected error for missing document part")
	}
}

func TestExtractBytes_pdfInvalid(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("%PDF-broken"), ".pdf"); err == nil {
		t.Error("expected error for invalid PDF")
	}
}
