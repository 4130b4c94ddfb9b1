package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// nullTokens is the fixed set of strings treated as null during ingestion,
// matched case-insensitively after trimming.
var nullTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "null": {}, "none": {},
	"nan": {}, "undefined": {}, "nil": {},
}

// IsNullToken reports whether a raw cell value is treated as null.
func IsNullToken(value string) bool {
	_, ok := nullTokens[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// Dataframe is an ordered, column-named table of nullable string cells, the
// in-memory form of an uploaded CSV.
type Dataframe struct {
	Columns []string
	Rows    [][]*string
}

// ColumnIndex returns the position of a column, or -1.
func (df *Dataframe) ColumnIndex(name string) int {
	for i, c := range df.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the cells of a named column, or nil if absent.
func (df *Dataframe) Column(name string) []*string {
	idx := df.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]*string, len(df.Rows))
	for i, row := range df.Rows {
		out[i] = row[idx]
	}
	return out
}

// standardColumns are the recognized column names that are lowercased during
// standardization; all other column names keep their case.
var standardColumns = map[string]struct{}{
	ColumnHgvsNt: {}, ColumnHgvsSplice: {}, ColumnHgvsPro: {}, ColumnScore: {},
}

// canonicalOrder assigns sort ranks to the standard columns; extras keep
// their relative input order after them.
var canonicalOrder = map[string]int{
	ColumnHgvsNt:     0,
	ColumnHgvsSplice: 1,
	ColumnHgvsPro:    2,
	ColumnScore:      3,
}

// StandardizeDataframe lowercases the recognized standard column names and
// sorts columns into canonical order. The operation is idempotent.
func StandardizeDataframe(df *Dataframe) *Dataframe {
	names := make([]string, len(df.Columns))
	for i, c := range df.Columns {
		trimmed := strings.TrimSpace(c)
		if _, ok := standardColumns[strings.ToLower(trimmed)]; ok {
			names[i] = strings.ToLower(trimmed)
		} else {
			names[i] = trimmed
		}
	}

	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, oka := canonicalOrder[names[order[a]]]
		rb, okb := canonicalOrder[names[order[b]]]
		if oka && okb {
			return ra < rb
		}
		if oka != okb {
			return oka
		}
		return false // extras keep input order
	})

	out := &Dataframe{Columns: make([]string, len(names)), Rows: make([][]*string, len(df.Rows))}
	for i, src := range order {
		out.Columns[i] = names[src]
	}
	for r, row := range df.Rows {
		newRow := make([]*string, len(order))
		for i, src := range order {
			newRow[i] = row[src]
		}
		out.Rows[r] = newRow
	}
	return out
}

// ValidateColumnNames enforces the structural column rules: non-empty names,
// no case-insensitive duplicates, at least one HGVS column, at least one data
// column, the hgvs_splice dependency rule, and the score-column contract for
// the dataset kind ("scores" requires a score column, "counts" forbids it).
func ValidateColumnNames(df *Dataframe, kind string) error {
	seen := map[string]struct{}{}
	hgvsCount, dataCount := 0, 0
	hasSplice, hasNt, hasPro, hasScore := false, false, false, false

	for _, c := range df.Columns {
		if strings.TrimSpace(c) == "" {
			return domain.NewValidationError("column names must not be empty or whitespace")
		}
		lower := strings.ToLower(c)
		if _, dup := seen[lower]; dup {
			return domain.NewValidationError(fmt.Sprintf("duplicate column name %q", c))
		}
		seen[lower] = struct{}{}

		switch c {
		case ColumnHgvsNt:
			hgvsCount++
			hasNt = true
		case ColumnHgvsSplice:
			hgvsCount++
			hasSplice = true
		case ColumnHgvsPro:
			hgvsCount++
			hasPro = true
		case ColumnScore:
			hasScore = true
			dataCount++
		default:
			dataCount++
		}
	}

	if hgvsCount == 0 {
		return domain.NewValidationError("dataset must include at least one HGVS column")
	}
	if dataCount == 0 {
		return domain.NewValidationError("dataset must include at least one data column beyond its HGVS columns")
	}
	if hasSplice && (!hasNt || !hasPro) {
		return domain.NewValidationError("dataset with an hgvs_splice column must also define hgvs_nt and hgvs_pro")
	}

	switch kind {
	case "scores":
		if !hasScore {
			return domain.NewValidationError("scores dataset must define a score column")
		}
	case "counts":
		if hasScore {
			return domain.NewValidationError("counts dataset must not define a score column")
		}
	}
	return nil
}

// ChooseIndexColumn returns the first of (hgvs_nt, hgvs_splice, hgvs_pro)
// that has at least one non-null value.
func ChooseIndexColumn(df *Dataframe) (string, error) {
	for _, name := range []string{ColumnHgvsNt, ColumnHgvsSplice, ColumnHgvsPro} {
		col := df.Column(name)
		if col == nil {
			continue
		}
		for _, v := range col {
			if v != nil {
				return name, nil
			}
		}
	}
	return "", domain.NewValidationError("no HGVS column contains any values")
}

// validateIndexColumn enforces that the index column is complete and unique.
func validateIndexColumn(df *Dataframe, index string) []string {
	var detail []string
	seen := map[string]int{}
	for i, v := range df.Column(index) {
		if v == nil {
			detail = append(detail, fmt.Sprintf("row %d: missing value in index column %s", i, index))
			continue
		}
		if prev, dup := seen[*v]; dup {
			detail = append(detail, fmt.Sprintf("row %d: duplicate index value %q (first seen at row %d)", i, *v, prev))
			continue
		}
		seen[*v] = i
	}
	return detail
}

// validateScoreColumn enforces that every non-null score coerces to a float.
func validateScoreColumn(df *Dataframe) []string {
	var detail []string
	for i, v := range df.Column(ColumnScore) {
		if v == nil {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(*v), 64); err != nil {
			detail = append(detail, fmt.Sprintf("row %d: score %q is not numeric", i, *v))
		}
	}
	return detail
}

// validateNoNullRows rejects rows in which every cell is null.
func validateNoNullRows(df *Dataframe) []string {
	var detail []string
	for i, row := range df.Rows {
		allNull := true
		for _, cell := range row {
			if cell != nil {
				allNull = false
				break
			}
		}
		if allNull {
			detail = append(detail, fmt.Sprintf("row %d: every value is null", i))
		}
	}
	return detail
}

// validateVariantAgreement checks that every shared HGVS column holds the
// same set of values (order-independent) in both dataframes.
func validateVariantAgreement(scores, counts *Dataframe) []string {
	var detail []string
	for _, name := range []string{ColumnHgvsNt, ColumnHgvsSplice, ColumnHgvsPro} {
		sc, cc := scores.Column(name), counts.Column(name)
		if sc == nil || cc == nil {
			continue
		}
		if !sameValueSet(sc, cc) {
			detail = append(detail, fmt.Sprintf(
				"column %s defines different variants in the scores and counts files", name))
		}
	}
	return detail
}

func sameValueSet(a, b []*string) bool {
	set := func(vals []*string) map[string]int {
		m := map[string]int{}
		for _, v := range vals {
			if v != nil {
				m[*v]++
			}
		}
		return m
	}
	sa, sb := set(a), set(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

// ValidatedDataset is the result of the full dataset validation pipeline.
type ValidatedDataset struct {
	Scores      *Dataframe
	Counts      *Dataframe
	IndexColumn string
	Columns     domain.DatasetColumns
}

// ValidateDataframes runs the full ingestion pipeline over the scores
// dataframe and optional counts dataframe against a score set's target
// genes: standardization, structural column rules, null-row rejection, index
// selection, HGVS validation per target, score numeric checks, and
// cross-file variant agreement. All failures are aggregated into one
// ValidationError rather than stopping at the first.
func ValidateDataframes(scores, counts *Dataframe, targets []domain.TargetGene) (*ValidatedDataset, error) {
	if scores == nil || len(scores.Rows) == 0 {
		return nil, domain.NewValidationError("scores dataset must not be empty")
	}
	if len(targets) == 0 {
		return nil, domain.NewValidationError("score set has no target genes to validate against")
	}

	scores = StandardizeDataframe(scores)
	if err := ValidateColumnNames(scores, "scores"); err != nil {
		return nil, err
	}
	if counts != nil {
		counts = StandardizeDataframe(counts)
		if err := ValidateColumnNames(counts, "counts"); err != nil {
			return nil, err
		}
	}

	var detail []string
	detail = append(detail, validateNoNullRows(scores)...)

	index, err := ChooseIndexColumn(scores)
	if err != nil {
		return nil, err
	}
	detail = append(detail, validateIndexColumn(scores, index)...)

	ntTarget, proTarget, err := targetSequences(targets)
	if err != nil {
		return nil, err
	}

	for _, name := range []string{ColumnHgvsNt, ColumnHgvsSplice, ColumnHgvsPro} {
		col := scores.Column(name)
		if col == nil {
			continue
		}
		target := ntTarget
		if name == ColumnHgvsPro {
			target = proTarget
		}
		detail = append(detail, ValidateHgvsColumn(col, name, target)...)
	}

	detail = append(detail, validatePrefixRows(scores)...)
	detail = append(detail, validateScoreColumn(scores)...)

	if counts != nil {
		detail = append(detail, validateNoNullRows(counts)...)
		detail = append(detail, validateVariantAgreement(scores, counts)...)
	}

	if len(detail) > 0 {
		return nil, &domain.ValidationError{
			Message: "dataset validation failed",
			Detail:  detail,
		}
	}

	return &ValidatedDataset{
		Scores:      scores,
		Counts:      counts,
		IndexColumn: index,
		Columns:     datasetColumns(scores, counts),
	}, nil
}

// validatePrefixRows checks the legal per-row prefix combinations.
func validatePrefixRows(df *Dataframe) []string {
	nt, splice, pro := df.Column(ColumnHgvsNt), df.Column(ColumnHgvsSplice), df.Column(ColumnHgvsPro)
	pick := func(col []*string, i int) byte {
		if col == nil || col[i] == nil {
			return 0
		}
		return VariantPrefix(*col[i])
	}

	var detail []string
	for i := range df.Rows {
		if err := ValidatePrefixCombination(pick(nt, i), pick(splice, i), pick(pro, i)); err != nil {
			detail = append(detail, fmt.Sprintf("row %d: %v", i, err))
		}
	}
	return detail
}

// targetSequences derives the nucleotide and protein target sequences the
// HGVS validator checks against. Multiple targets or accession-based targets
// yield empty sequences, which disables positional checking.
func targetSequences(targets []domain.TargetGene) (nt, pro string, err error) {
	if len(targets) != 1 || targets[0].TargetSequence == nil {
		return "", "", nil
	}

	seq := targets[0].TargetSequence
	st := seq.SequenceType
	if st == domain.SequenceTypeInfer || st == "" {
		st = InferSequenceType(seq.Sequence)
	}
	if err := ValidateTargetSequence(seq.Sequence, st); err != nil {
		return "", "", err
	}

	switch st {
	case domain.SequenceTypeDNA:
		translated, err := TranslateDNA(seq.Sequence)
		if err != nil {
			return "", "", err
		}
		return seq.Sequence, translated, nil
	case domain.SequenceTypeProtein:
		return "", seq.Sequence, nil
	}
	return "", "", nil
}

// datasetColumns builds the DatasetColumns metadata persisted on the score
// set: every non-HGVS column of each file, in standardized order.
func datasetColumns(scores, counts *Dataframe) domain.DatasetColumns {
	extract := func(df *Dataframe) []string {
		if df == nil {
			return nil
		}
		var out []string
		for _, c := range df.Columns {
			switch c {
			case ColumnHgvsNt, ColumnHgvsSplice, ColumnHgvsPro:
			default:
				out = append(out, c)
			}
		}
		return out
	}
	return domain.DatasetColumns{
		ScoreColumns: extract(scores),
		CountColumns: extract(counts),
	}
}
