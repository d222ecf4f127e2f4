package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"

	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/shared/util"
)

const MimePDF = "application/pdf"

var (
	ErrUnknownExportType = errors.New("unknown export type")
	ErrInvalidOutput     = errors.New("generated artifact is not a readable pdf")
)

// Artifact is a rendered export ready to store.
type Artifact struct {
	Data     []byte
	FileName string
	MimeType string
}

// Generator renders confirmed analyses to PDF. Output depends only on the
// snapshot and the export type: the PDF creation date is the snapshot time
// and questions are laid out by number.
type Generator struct{}

// Generate renders one export type and checks the result reads back as a PDF.
func (Generator) Generate(ctx context.Context, a confirmations.ConfirmedAnalysis, t exportqueue.ExportType) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	var (
		title  string
		render func(*fpdf.Fpdf, func(string) string, confirmations.ConfirmedAnalysis)
	)
	switch t {
	case exportqueue.TypeRubric:
		title, render = "Assessment Rubric", renderRubric
	case exportqueue.TypeCoverSheet:
		title, render = "Assessment Cover Sheet", renderCoverSheet
	default:
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownExportType, t)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(a.CreatedAt.UTC())
	pdf.SetModificationDate(a.CreatedAt.UTC())
	pdf.SetCatalogSort(true)
	pdf.SetTitle(title, true)
	pdf.SetCreator("assessment-backend", true)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 6, tr(displayName(a)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Accepted "+a.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	render(pdf, tr, a)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Artifact{}, fmt.Errorf("render %s: %w", t, err)
	}
	data := buf.Bytes()
	if err := Verify(data); err != nil {
		return Artifact{}, err
	}
	return Artifact{Data: data, FileName: FileName(a, t), MimeType: MimePDF}, nil
}

// FileName is the download name for an export of the snapshot's document.
func FileName(a confirmations.ConfirmedAnalysis, t exportqueue.ExportType) string {
	base := strings.TrimSuffix(a.FileName, path.Ext(a.FileName))
	name, err := util.SanitizeFileName(base)
	if err != nil {
		name = "assessment"
	}
	return name + "-" + strings.ReplaceAll(string(t), "_", "-") + ".pdf"
}

func displayName(a confirmations.ConfirmedAnalysis) string {
	if a.FileName != "" {
		return a.FileName
	}
	return "Document " + a.DocumentID
}

func renderRubric(pdf *fpdf.Fpdf, tr func(string) string, a confirmations.ConfirmedAnalysis) {
	for _, q := range a.Ordered() {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetFillColor(235, 238, 245)
		header := fmt.Sprintf("Question %d   Rigor: %s", q.QuestionNumber, rigorLabel(q.FinalRigor))
		if q.HasOverride {
			header += "   (teacher override)"
		}
		pdf.CellFormat(0, 8, tr(header), "", 1, "L", true, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		if q.QuestionText != "" {
			pdf.MultiCell(0, 5, tr(q.QuestionText), "", "L", false)
		}
		standards := "none"
		if len(q.FinalStandards) > 0 {
			standards = strings.Join(q.FinalStandards, ", ")
		}
		pdf.MultiCell(0, 5, tr("Standards: "+standards), "", "L", false)
		pdf.CellFormat(0, 5, fmt.Sprintf("Confidence: %.0f%%   Source: %s", q.SourceConfidence*100, sourceLabel(q.Source)), "", 1, "L", false, 0, "")
		if q.Justification != "" {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.MultiCell(0, 5, tr(q.Justification), "", "L", false)
		}
		pdf.Ln(3)
	}
}

func renderCoverSheet(pdf *fpdf.Fpdf, tr func(string) string, a confirmations.ConfirmedAnalysis) {
	ordered := a.Ordered()
	rigor := map[string]int{}
	standards := map[string]bool{}
	for _, q := range ordered {
		rigor[rigorLabel(q.FinalRigor)]++
		for _, s := range q.FinalStandards {
			standards[s] = true
		}
	}

	row := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(60, 7, tr(label), "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, tr(value), "B", 1, "L", false, 0, "")
	}
	row("Questions", fmt.Sprintf("%d", len(ordered)))
	row("Teacher overrides", fmt.Sprintf("%d", a.OverrideCount))
	row("Review status", string(a.ReviewStatus()))
	for _, level := range []string{"Mild", "Medium", "Spicy", "Not analyzed"} {
		row("Rigor: "+level, fmt.Sprintf("%d", rigor[level]))
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Standards covered", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	codes := make([]string, 0, len(standards))
	for s := range standards {
		codes = append(codes, s)
	}
	sort.Strings(codes)
	if len(codes) == 0 {
		pdf.CellFormat(0, 6, "None", "", 1, "L", false, 0, "")
	}
	for _, c := range codes {
		pdf.CellFormat(0, 6, tr("- "+c), "", 1, "L", false, 0, "")
	}
}

func rigorLabel(r documents.RigorLevel) string {
	switch r {
	case documents.RigorMild:
		return "Mild"
	case documents.RigorMedium:
		return "Medium"
	case documents.RigorSpicy:
		return "Spicy"
	}
	return "Not analyzed"
}

func sourceLabel(s confirmations.Source) string {
	switch s {
	case confirmations.SourceOverride:
		return "teacher override"
	case confirmations.SourceAIConsensus:
		return "AI consensus"
	}
	return "not analyzed"
}
