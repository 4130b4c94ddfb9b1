// Package publication normalizes external publication identifiers and
// resolves them against their source databases.
package publication

import (
	"regexp"
	"strings"
	"time"
)

// Supported publication database names.
const (
	DBPubMed   = "PubMed"
	DBBioRxiv  = "bioRxiv"
	DBMedRxiv  = "medRxiv"
	DBCrossref = "Crossref"
)

var (
	pubMedPattern = regexp.MustCompile(`^[1-9]\d*$`)
	// Standard Crossref DOI pattern.
	doiPattern = regexp.MustCompile(`^10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+$`)

	rxivLegacyPattern  = regexp.MustCompile(`^\d{6}$`)
	bioRxivNewPattern  = regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})\.(\d{6})$`)
	medRxivNewPattern  = regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})\.(\d{8})$`)
	medRxivLegacyEight = regexp.MustCompile(`^\d{8}$`)

	urlPrefixPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(?:dx\.)?doi\.org/`),
		regexp.MustCompile(`^https?://(?:www\.)?(?:biorxiv|medrxiv)\.org/content/(?:10\.1101/)?`),
		regexp.MustCompile(`^https?://(?:www\.)?ncbi\.nlm\.nih\.gov/pubmed/`),
		regexp.MustCompile(`^https?://pubmed\.ncbi\.nlm\.nih\.gov/`),
	}
)

// The bioRxiv/medRxiv identifier changeover date: submissions after this
// date use the dated suffix format.
var rxivChangeover = time.Date(2019, time.December, 11, 0, 0, 0, 0, time.UTC)

// NormalizeIdentifier strips recognized URL prefixes from an identifier,
// reducing it to its bare database form.
func NormalizeIdentifier(raw string) string {
	identifier := strings.TrimSpace(raw)
	for _, pattern := range urlPrefixPatterns {
		if loc := pattern.FindStringIndex(identifier); loc != nil {
			identifier = identifier[loc[1]:]
			break
		}
	}
	identifier = strings.TrimSuffix(identifier, "/")
	// Drop a preprint version suffix (e.g. "...123456v2").
	if stripped := versionSuffixPattern.ReplaceAllString(identifier, ""); stripped != identifier {
		if ValidBioRxivID(stripped) || ValidMedRxivID(stripped) {
			identifier = stripped
		}
	}
	return identifier
}

var versionSuffixPattern = regexp.MustCompile(`v\d+$`)

// ValidPubMedID reports whether the identifier is a PubMed id: an integer
// with no leading zeros.
func ValidPubMedID(identifier string) bool {
	return pubMedPattern.MatchString(identifier)
}

// ValidDOI reports whether the identifier matches the standard DOI pattern.
func ValidDOI(identifier string) bool {
	return doiPattern.MatchString(identifier)
}

// ValidBioRxivID reports whether the identifier is a bioRxiv id: a 6-digit
// legacy integer, or YYYY.MM.DD.NNNNNN for submissions after the changeover
// date.
func ValidBioRxivID(identifier string) bool {
	if rxivLegacyPattern.MatchString(identifier) {
		return true
	}
	return datedRxivValid(identifier, bioRxivNewPattern)
}

// ValidMedRxivID reports whether the identifier is a medRxiv id: an 8-digit
// legacy integer, or YYYY.MM.DD.NNNNNNNN after the changeover date.
func ValidMedRxivID(identifier string) bool {
	if medRxivLegacyEight.MatchString(identifier) {
		return true
	}
	return datedRxivValid(identifier, medRxivNewPattern)
}

func datedRxivValid(identifier string, pattern *regexp.Regexp) bool {
	m := pattern.FindStringSubmatch(identifier)
	if m == nil {
		return false
	}
	date, err := time.Parse("2006.01.02", m[1]+"."+m[2]+"."+m[3])
	if err != nil {
		return false
	}
	return !date.Before(rxivChangeover)
}

// ApplicableDatabases returns the databases whose identifier format matches,
// in a fixed order.
func ApplicableDatabases(identifier string) []string {
	var out []string
	if ValidPubMedID(identifier) {
		out = append(out, DBPubMed)
	}
	if ValidBioRxivID(identifier) {
		out = append(out, DBBioRxiv)
	}
	if ValidMedRxivID(identifier) {
		out = append(out, DBMedRxiv)
	}
	if ValidDOI(identifier) {
		out = append(out, DBCrossref)
	}
	return out
}

// ValidForDatabase reports whether an identifier is well formed for the
// named database.
func ValidForDatabase(identifier, dbName string) bool {
	switch dbName {
	case DBPubMed:
		return ValidPubMedID(identifier)
	case DBBioRxiv:
		return ValidBioRxivID(identifier)
	case DBMedRxiv:
		return ValidMedRxivID(identifier)
	case DBCrossref:
		return ValidDOI(identifier)
	}
	return false
}
