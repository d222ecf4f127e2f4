package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"

	"github.com/ledongthuc/pdf"
)

// plainText reads back the text layer of a rendered PDF.
func plainText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func snapshot() confirmations.ConfirmedAnalysis {
	return confirmations.ConfirmedAnalysis{
		DocumentID:    "doc-1",
		CustomerUUID:  "cust-1",
		FileName:      "Unit 3 Quiz.pdf",
		OverrideCount: 1,
		CreatedAt:     time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC),
		Questions: map[string]confirmations.QuestionResolution{
			"q-2": {QuestionID: "q-2", QuestionNumber: 2, QuestionText: "Explain photosynthesis.", FinalRigor: documents.RigorMedium,
				FinalStandards: []string{"MS-LS1-6"}, SourceConfidence: 0.7, Source: confirmations.SourceAIConsensus},
			"q-1": {QuestionID: "q-1", QuestionNumber: 1, QuestionText: "Design an experiment.", FinalRigor: documents.RigorSpicy,
				FinalStandards: []string{"MS-LS1-1", "MS-ETS1-2"}, HasOverride: true, SourceConfidence: 0.9, Source: confirmations.SourceOverride,
				Justification: "Requires planning an investigation."},
			"q-3": {QuestionID: "q-3", QuestionNumber: 3, QuestionText: "Label the diagram.", FinalStandards: []string{}, Source: confirmations.SourceNotAnalyzed},
		},
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	for _, typ := range exportqueue.AllExportTypes {
		first, err := Generator{}.Generate(context.Background(), snapshot(), typ)
		if err != nil {
			t.Fatalf("generate %s: %v", typ, err)
		}
		second, err := Generator{}.Generate(context.Background(), snapshot(), typ)
		if err != nil {
			t.Fatalf("generate %s: %v", typ, err)
		}
		if !bytes.Equal(first.Data, second.Data) {
			t.Fatalf("%s output differs between runs", typ)
		}
		if first.MimeType != MimePDF {
			t.Fatalf("unexpected mime %s", first.MimeType)
		}
	}
}

func TestGenerateRubricContent(t *testing.T) {
	art, err := Generator{}.Generate(context.Background(), snapshot(), exportqueue.TypeRubric)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if art.FileName != "Unit_3_Quiz-rubric.pdf" {
		t.Fatalf("unexpected file name %q", art.FileName)
	}
	text, err := plainText(art.Data)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(text, "Spicy") {
		t.Fatalf("expected rigor label in output, got %q", text)
	}
}

func TestGenerateCoverSheetName(t *testing.T) {
	art, err := Generator{}.Generate(context.Background(), snapshot(), exportqueue.TypeCoverSheet)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if art.FileName != "Unit_3_Quiz-cover-sheet.pdf" {
		t.Fatalf("unexpected file name %q", art.FileName)
	}
}

func TestGenerateRejectsUnknownType(t *testing.T) {
	_, err := Generator{}.Generate(context.Background(), snapshot(), "poster")
	if !errors.Is(err, ErrUnknownExportType) {
		t.Fatalf("expected ErrUnknownExportType, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if err := Verify(nil); !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput for empty data, got %v", err)
	}
	if err := Verify([]byte("not a pdf")); !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Generator{}).Generate(ctx, snapshot(), exportqueue.TypeRubric); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
