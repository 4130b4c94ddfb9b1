// Package urn implements the MaveDB identifier scheme: temporary URNs
// assigned at creation, structured URNs assigned on publish, and variant
// URN renumbering.
package urn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// Namespace is the prefix of every published URN.
	Namespace = "urn:mavedb:"
	// TempNamespace marks identifiers that have not yet been published.
	TempNamespace = "tmp:"

	// MetaAnalysisSuffix is the experiment suffix reserved for
	// meta-analysis experiments.
	MetaAnalysisSuffix = "0"

	experimentSetDigits = 8
)

// IsTemporary reports whether a URN is in the temporary namespace.
func IsTemporary(urn string) bool {
	return strings.HasPrefix(urn, TempNamespace)
}

// NewTemporaryURN mints a fresh temporary URN.
func NewTemporaryURN() string {
	return TempNamespace + uuid.NewString()
}

// ForExperimentSet renders the URN of the nth experiment set.
func ForExperimentSet(n int64) string {
	return fmt.Sprintf("%s%0*d", Namespace, experimentSetDigits, n)
}

// ForExperiment renders an experiment URN under its experiment set.
func ForExperiment(experimentSetURN, suffix string) string {
	return experimentSetURN + "-" + suffix
}

// ForScoreSet renders a score set URN under its experiment.
func ForScoreSet(experimentURN string, n int) string {
	return fmt.Sprintf("%s-%d", experimentURN, n)
}

// ForVariant renders a variant URN with its 1-based suffix.
func ForVariant(scoreSetURN string, n int) string {
	return fmt.Sprintf("%s#%d", scoreSetURN, n)
}

// VariantSuffix extracts the 1-based numeric suffix of a variant URN.
func VariantSuffix(variantURN string) (int, error) {
	idx := strings.LastIndex(variantURN, "#")
	if idx < 0 {
		return 0, fmt.Errorf("variant URN %q has no numeric suffix", variantURN)
	}
	n, err := strconv.Atoi(variantURN[idx+1:])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("variant URN %q has an invalid numeric suffix", variantURN)
	}
	return n, nil
}

// RenumberVariant rewrites a variant URN under a new score set URN,
// preserving its original suffix. Renumbering is idempotent.
func RenumberVariant(variantURN, scoreSetURN string) (string, error) {
	n, err := VariantSuffix(variantURN)
	if err != nil {
		return "", err
	}
	return ForVariant(scoreSetURN, n), nil
}

// NextExperimentSuffix returns the letter suffix following the given one:
// "" → "a", "a" → "b", "z" → "aa". The meta-analysis suffix is never
// produced here.
func NextExperimentSuffix(previous string) string {
	if previous == "" {
		return "a"
	}

	chars := []byte(previous)
	for i := len(chars) - 1; i >= 0; i-- {
		if chars[i] < 'z' {
			chars[i]++
			return string(chars)
		}
		chars[i] = 'a'
	}
	return "a" + string(chars)
}
