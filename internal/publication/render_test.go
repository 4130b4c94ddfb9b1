package publication

import (
	"testing"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/pkg/external"
)

func TestRenderReferenceHTML(t *testing.T) {
	journal := "Nature"
	doi := "10.1038/s41586-018-0461-z"
	year := 2018

	record := &external.PublicationRecord{
		Title:   "Accurate classification of BRCA1 variants with saturation genome editing",
		Authors: []domain.Author{{Name: "Findlay GM", Primary: true}, {Name: "Daza RM"}},
		Journal: &journal,
		Year:    &year,
		Volume:  "562",
		Pages:   "217-222",
		DOI:     &doi,
	}

	got := RenderReferenceHTML(record)
	want := "Findlay GM, Daza RM. " +
		"Accurate classification of BRCA1 variants with saturation genome editing. " +
		"<i>Nature</i>. 2018;562:217-222. " +
		"doi:10.1038/s41586-018-0461-z"
	if got != want {
		t.Errorf("RenderReferenceHTML = %q, want %q", got, want)
	}
}

func TestRenderReferenceHTMLTruncatesAuthors(t *testing.T) {
	record := &external.PublicationRecord{
		Title: "A title",
		Authors: []domain.Author{
			{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"},
		},
	}

	got := RenderReferenceHTML(record)
	want := "A, B, C, <i>et al</i>. A title."
	if got != want {
		t.Errorf("RenderReferenceHTML = %q, want %q", got, want)
	}
}

func TestRenderReferenceHTMLSparseRecord(t *testing.T) {
	got := RenderReferenceHTML(&external.PublicationRecord{Title: "Only a title"})
	if got != "Only a title." {
		t.Errorf("RenderReferenceHTML = %q", got)
	}
}
