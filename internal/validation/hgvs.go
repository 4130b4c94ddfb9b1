package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// Recognized HGVS column names and their allowed prefixes.
const (
	ColumnHgvsNt     = "hgvs_nt"
	ColumnHgvsSplice = "hgvs_splice"
	ColumnHgvsPro    = "hgvs_pro"
	ColumnScore      = "score"
)

var allowedPrefixes = map[string]string{
	ColumnHgvsNt:     "cngmo",
	ColumnHgvsSplice: "cn",
	ColumnHgvsPro:    "p",
}

// MAVE-HGVS grammar. Variants carry no accession; positions in c./n. space
// may carry intronic offsets and UTR markers, which are accepted but not
// checked against the target.
var (
	ntPosition = `[-*]?\d+(?:[+-]\d+)?`

	ntSubstitutionPattern = regexp.MustCompile(`^(` + ntPosition + `)([ACGT])>([ACGT])$`)
	ntDeletionPattern     = regexp.MustCompile(`^(` + ntPosition + `)(?:_(` + ntPosition + `))?del$`)
	ntDuplicationPattern  = regexp.MustCompile(`^(` + ntPosition + `)(?:_(` + ntPosition + `))?dup$`)
	ntInsertionPattern    = regexp.MustCompile(`^(` + ntPosition + `)_(` + ntPosition + `)ins([ACGT]+)$`)
	ntDelinsPattern       = regexp.MustCompile(`^(` + ntPosition + `)(?:_(` + ntPosition + `))?delins([ACGT]+)$`)
	ntEqualityPattern     = regexp.MustCompile(`^(?:(` + ntPosition + `)(?:_(` + ntPosition + `))?)?=$`)

	aminoAcid = `[A-Z][a-z]{2}`

	proSubstitutionPattern = regexp.MustCompile(`^(` + aminoAcid + `)(\d+)(` + aminoAcid + `|\*)$`)
	proEqualityPattern     = regexp.MustCompile(`^(?:(` + aminoAcid + `)(\d+))?=$`)
	proDeletionPattern     = regexp.MustCompile(`^(` + aminoAcid + `)(\d+)(?:_(` + aminoAcid + `)(\d+))?del$`)
	proDuplicationPattern  = regexp.MustCompile(`^(` + aminoAcid + `)(\d+)(?:_(` + aminoAcid + `)(\d+))?dup$`)
	proInsertionPattern    = regexp.MustCompile(`^(` + aminoAcid + `)(\d+)_(` + aminoAcid + `)(\d+)ins((?:` + aminoAcid + `)+)$`)
	proDelinsPattern       = regexp.MustCompile(`^(` + aminoAcid + `)(\d+)(?:_(` + aminoAcid + `)(\d+))?delins((?:` + aminoAcid + `)+)$`)
	proFrameshiftPattern   = regexp.MustCompile(`^(` + aminoAcid + `)(\d+)(?:` + aminoAcid + `)?fs(?:\*\d+)?$`)
)

// VariantPrefix returns the single-letter HGVS prefix of a variant string
// (the letter before the first "."), or 0 if none is present. An optional
// accession before a colon is ignored.
func VariantPrefix(variant string) byte {
	if idx := strings.Index(variant, ":"); idx >= 0 {
		variant = variant[idx+1:]
	}
	if len(variant) < 2 || variant[1] != '.' {
		return 0
	}
	return variant[0]
}

// ValidatePrefixCombination enforces the legal single-row combinations of
// (hgvs_nt, hgvs_splice, hgvs_pro) prefixes. A zero byte means the column is
// null for this row.
func ValidatePrefixCombination(nt, splice, pro byte) error {
	genomic := nt == 'g' || nt == 'm' || nt == 'o'

	switch {
	case genomic && splice == 'c' && pro == 'p':
		return nil
	case genomic && splice == 'n' && pro == 0:
		return nil
	case nt == 'n' && splice == 0 && pro == 0:
		return nil
	case nt == 'c' && splice == 0 && pro == 'p':
		return nil
	case nt == 0 && splice == 0 && pro == 'p':
		return nil
	case nt == 0 && splice == 0 && pro == 0:
		// Fully-null rows are rejected separately by the dataframe validator.
		return nil
	}

	return domain.NewValidationError(fmt.Sprintf(
		"invalid combination of HGVS prefixes (%s, %s, %s)",
		prefixLabel(nt), prefixLabel(splice), prefixLabel(pro)))
}

func prefixLabel(p byte) string {
	if p == 0 {
		return "none"
	}
	return string(p) + "."
}

// parsedEvent is one variant event extracted from a MAVE-HGVS string.
type parsedEvent struct {
	start, end   int
	offset       bool // intronic offset or UTR marker present
	refBase      byte // nucleotide substitution reference, 0 if none
	refResidue   byte // protein one-letter reference, 0 if none
	fullSequence bool // target-identity event (c.= / p.=)
}

// parseNucleotideVariant parses the body of a nucleotide variant (after the
// "x." prefix) into events. Allele strings "[event;event]" are supported.
func parseNucleotideVariant(body string) ([]parsedEvent, error) {
	events, err := splitAllele(body)
	if err != nil {
		return nil, err
	}

	parsed := make([]parsedEvent, 0, len(events))
	for _, ev := range events {
		var pe parsedEvent
		switch {
		case ntSubstitutionPattern.MatchString(ev):
			m := ntSubstitutionPattern.FindStringSubmatch(ev)
			pe.start, pe.offset = parseNtPosition(m[1])
			pe.end = pe.start
			pe.refBase = m[2][0]
		case ntDelinsPattern.MatchString(ev):
			m := ntDelinsPattern.FindStringSubmatch(ev)
			pe.start, pe.offset = parseNtPosition(m[1])
			pe.end = pe.start
			if m[2] != "" {
				end, off := parseNtPosition(m[2])
				pe.end = end
				pe.offset = pe.offset || off
			}
		case ntDeletionPattern.MatchString(ev), ntDuplicationPattern.MatchString(ev):
			var m []string
			if mm := ntDeletionPattern.FindStringSubmatch(ev); mm != nil {
				m = mm
			} else {
				m = ntDuplicationPattern.FindStringSubmatch(ev)
			}
			pe.start, pe.offset = parseNtPosition(m[1])
			pe.end = pe.start
			if m[2] != "" {
				end, off := parseNtPosition(m[2])
				pe.end = end
				pe.offset = pe.offset || off
			}
		case ntInsertionPattern.MatchString(ev):
			m := ntInsertionPattern.FindStringSubmatch(ev)
			pe.start, pe.offset = parseNtPosition(m[1])
			end, off := parseNtPosition(m[2])
			pe.end = end
			pe.offset = pe.offset || off
		case ntEqualityPattern.MatchString(ev):
			m := ntEqualityPattern.FindStringSubmatch(ev)
			if m[1] == "" {
				pe.fullSequence = true
			} else {
				pe.start, pe.offset = parseNtPosition(m[1])
				pe.end = pe.start
				if m[2] != "" {
					end, off := parseNtPosition(m[2])
					pe.end = end
					pe.offset = pe.offset || off
				}
			}
		default:
			return nil, fmt.Errorf("invalid variant event %q", ev)
		}
		parsed = append(parsed, pe)
	}
	return parsed, nil
}

// parseProteinVariant parses the body of a protein variant (after "p.").
func parseProteinVariant(body string) ([]parsedEvent, error) {
	events, err := splitAllele(body)
	if err != nil {
		return nil, err
	}

	parsed := make([]parsedEvent, 0, len(events))
	for _, ev := range events {
		var pe parsedEvent
		var startResidue, startPos string
		switch {
		case proSubstitutionPattern.MatchString(ev):
			m := proSubstitutionPattern.FindStringSubmatch(ev)
			startResidue, startPos = m[1], m[2]
		case proEqualityPattern.MatchString(ev):
			m := proEqualityPattern.FindStringSubmatch(ev)
			if m[1] == "" {
				pe.fullSequence = true
				parsed = append(parsed, pe)
				continue
			}
			startResidue, startPos = m[1], m[2]
		case proDelinsPattern.MatchString(ev):
			m := proDelinsPattern.FindStringSubmatch(ev)
			startResidue, startPos = m[1], m[2]
		case proDeletionPattern.MatchString(ev), proDuplicationPattern.MatchString(ev):
			var m []string
			if mm := proDeletionPattern.FindStringSubmatch(ev); mm != nil {
				m = mm
			} else {
				m = proDuplicationPattern.FindStringSubmatch(ev)
			}
			startResidue, startPos = m[1], m[2]
		case proInsertionPattern.MatchString(ev):
			m := proInsertionPattern.FindStringSubmatch(ev)
			startResidue, startPos = m[1], m[2]
		case proFrameshiftPattern.MatchString(ev):
			m := proFrameshiftPattern.FindStringSubmatch(ev)
			startResidue, startPos = m[1], m[2]
		default:
			return nil, fmt.Errorf("invalid variant event %q", ev)
		}

		pos, err := strconv.Atoi(startPos)
		if err != nil {
			return nil, fmt.Errorf("invalid position in %q", ev)
		}
		pe.start, pe.end = pos, pos
		if one, ok := aminoAcidThreeToOne[startResidue]; ok {
			pe.refResidue = one
		} else {
			return nil, fmt.Errorf("unknown amino acid %q in %q", startResidue, ev)
		}
		parsed = append(parsed, pe)
	}
	return parsed, nil
}

// splitAllele splits a MAVE-HGVS body into its events, handling the
// bracketed multi-event allele form "[a;b;c]".
func splitAllele(body string) ([]string, error) {
	if strings.HasPrefix(body, "[") {
		if !strings.HasSuffix(body, "]") {
			return nil, fmt.Errorf("unterminated allele %q", body)
		}
		inner := body[1 : len(body)-1]
		if inner == "" {
			return nil, fmt.Errorf("empty allele %q", body)
		}
		return strings.Split(inner, ";"), nil
	}
	return []string{body}, nil
}

// parseNtPosition parses a nucleotide position, reporting whether it carries
// an intronic offset or UTR marker. Offset positions return the anchor.
func parseNtPosition(pos string) (int, bool) {
	offset := false
	if strings.HasPrefix(pos, "-") || strings.HasPrefix(pos, "*") {
		return 0, true
	}
	if idx := strings.IndexAny(pos, "+-"); idx > 0 {
		offset = true
		pos = pos[:idx]
	}
	n, err := strconv.Atoi(pos)
	if err != nil {
		return 0, true
	}
	return n, offset
}

// ValidateHgvsVariant validates a single MAVE-HGVS string for the given
// column. When targetSequence is non-empty, positions and stated reference
// bases or residues are checked against it. For hgvs_pro the caller supplies
// the protein sequence (translated when the target is DNA).
func ValidateHgvsVariant(variant, column, targetSequence string) error {
	prefix := VariantPrefix(variant)
	if prefix == 0 {
		return fmt.Errorf("%q is not a valid HGVS string", variant)
	}
	if !strings.ContainsRune(allowedPrefixes[column], rune(prefix)) {
		return fmt.Errorf("invalid prefix %q for column %s in %q", string(prefix)+".", column, variant)
	}

	body := variant
	if idx := strings.Index(body, ":"); idx >= 0 {
		body = body[idx+1:]
	}
	body = body[2:]

	var events []parsedEvent
	var err error
	if prefix == 'p' {
		events, err = parseProteinVariant(body)
	} else {
		events, err = parseNucleotideVariant(body)
	}
	if err != nil {
		return fmt.Errorf("%q: %w", variant, err)
	}

	if targetSequence == "" {
		return nil
	}

	for _, ev := range events {
		if ev.fullSequence || ev.offset {
			continue
		}
		if ev.start < 1 || ev.end > len(targetSequence) {
			return fmt.Errorf("%q: position %d is outside the target sequence (length %d)",
				variant, ev.end, len(targetSequence))
		}
		if ev.refBase != 0 && targetSequence[ev.start-1] != ev.refBase {
			return fmt.Errorf("%q: target has %q at position %d, not %q",
				variant, string(targetSequence[ev.start-1]), ev.start, string(ev.refBase))
		}
		if ev.refResidue != 0 && targetSequence[ev.start-1] != ev.refResidue {
			stated := aminoAcidOneToThree[ev.refResidue]
			actual := aminoAcidOneToThree[targetSequence[ev.start-1]]
			return fmt.Errorf("%q: target encodes %s at residue %d, not %s",
				variant, actual, ev.start, stated)
		}
	}
	return nil
}

// ValidateHgvsColumn validates every non-null value of one HGVS column:
// a consistent prefix across the column, grammar per value, and target
// consistency for hgvs_nt and hgvs_pro (never hgvs_splice). It returns all
// row-indexed failures rather than stopping at the first.
func ValidateHgvsColumn(values []*string, column, targetSequence string) []string {
	if column == ColumnHgvsSplice {
		targetSequence = ""
	}

	var detail []string
	var columnPrefix byte
	for i, v := range values {
		if v == nil {
			continue
		}
		prefix := VariantPrefix(*v)
		if columnPrefix == 0 {
			columnPrefix = prefix
		} else if prefix != 0 && prefix != columnPrefix {
			kind := "nucleotide"
			if column == ColumnHgvsPro {
				kind = "protein"
			}
			detail = append(detail, fmt.Sprintf(
				"row %d: inconsistent %s prefix: %q does not match column prefix %q",
				i, kind, string(prefix)+".", string(columnPrefix)+"."))
			continue
		}
		if err := ValidateHgvsVariant(*v, column, targetSequence); err != nil {
			detail = append(detail, fmt.Sprintf("row %d: %v", i, err))
		}
	}
	return detail
}
