package transcript

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Format names an output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts text, json or pdf (any case). Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json or pdf)", s)
	}
}

// Ext returns the file extension for f, dot included.
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatPDF:
		return ".pdf"
	default:
		return ".txt"
	}
}

// Write renders t in format f.
func Write(w io.Writer, f Format, t *Transcript) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, t)
	case FormatPDF:
		return WritePDF(w, t)
	default:
		return WriteText(w, t)
	}
}

// WritePDF renders one A4 document: a bold role label per turn followed by
// its text, paragraphs kept. Characters outside cp1252 cannot be drawn with
// the core fonts and come out as '?'.
func WritePDF(w io.Writer, t *Transcript) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Transcript", true)
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if t != nil {
		for i, turn := range t.Turns {
			if i > 0 {
				pdf.Ln(4)
			}
			pdf.SetFont("Helvetica", "B", 11)
			pdf.CellFormat(0, 6, string(turn.Role)+":", "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 11)
			for _, para := range strings.Split(turn.Text, "\n\n") {
				pdf.MultiCell(0, 5, tr(para), "", "L", false)
				pdf.Ln(2)
			}
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
