package publication

import (
	"fmt"
	"strings"

	"github.com/VariantEffect/mavedb-core/pkg/external"
)

// RenderReferenceHTML produces a stable citation string from a normalized
// publication record: authors, title, journal, year, volume:pages, DOI.
func RenderReferenceHTML(record *external.PublicationRecord) string {
	var parts []string

	if names := authorList(record); names != "" {
		parts = append(parts, names+".")
	}
	if record.Title != "" {
		parts = append(parts, record.Title+".")
	}

	var source []string
	if record.Journal != nil && *record.Journal != "" {
		source = append(source, fmt.Sprintf("<i>%s</i>", *record.Journal))
	}
	if record.Year != nil {
		source = append(source, fmt.Sprintf("%d", *record.Year))
	}
	if len(source) > 0 {
		citation := strings.Join(source, ". ")
		if record.Volume != "" {
			citation += ";" + record.Volume
			if record.Pages != "" {
				citation += ":" + record.Pages
			}
		}
		parts = append(parts, citation+".")
	}

	if record.DOI != nil && *record.DOI != "" {
		parts = append(parts, fmt.Sprintf("doi:%s", *record.DOI))
	}

	return strings.Join(parts, " ")
}

// authorList renders up to three authors, then "et al".
func authorList(record *external.PublicationRecord) string {
	var names []string
	for _, a := range record.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	if len(names) > 3 {
		return strings.Join(names[:3], ", ") + ", <i>et al</i>"
	}
	return strings.Join(names, ", ")
}
