package validation

import (
	"fmt"
	"strings"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// Standard genetic code: DNA codon to amino acid (single letter).
var codonTable = map[string]byte{
	"TTT": 'F', "TTC": 'F', "TTA": 'L', "TTG": 'L',
	"TCT": 'S', "TCC": 'S', "TCA": 'S', "TCG": 'S',
	"TAT": 'Y', "TAC": 'Y', "TAA": '*', "TAG": '*',
	"TGT": 'C', "TGC": 'C', "TGA": '*', "TGG": 'W',

	"CTT": 'L', "CTC": 'L', "CTA": 'L', "CTG": 'L',
	"CCT": 'P', "CCC": 'P', "CCA": 'P', "CCG": 'P',
	"CAT": 'H', "CAC": 'H', "CAA": 'Q', "CAG": 'Q',
	"CGT": 'R', "CGC": 'R', "CGA": 'R', "CGG": 'R',

	"ATT": 'I', "ATC": 'I', "ATA": 'I', "ATG": 'M',
	"ACT": 'T', "ACC": 'T', "ACA": 'T', "ACG": 'T',
	"AAT": 'N', "AAC": 'N', "AAA": 'K', "AAG": 'K',
	"AGT": 'S', "AGC": 'S', "AGA": 'R', "AGG": 'R',

	"GTT": 'V', "GTC": 'V', "GTA": 'V', "GTG": 'V',
	"GCT": 'A', "GCC": 'A', "GCA": 'A', "GCG": 'A',
	"GAT": 'D', "GAC": 'D', "GAA": 'E', "GAG": 'E',
	"GGT": 'G', "GGC": 'G', "GGA": 'G', "GGG": 'G',
}

// Three-letter to one-letter amino acid codes and back.
var (
	aminoAcidThreeToOne = map[string]byte{
		"Ala": 'A', "Arg": 'R', "Asn": 'N', "Asp": 'D', "Cys": 'C',
		"Gln": 'Q', "Glu": 'E', "Gly": 'G', "His": 'H', "Ile": 'I',
		"Leu": 'L', "Lys": 'K', "Met": 'M', "Phe": 'F', "Pro": 'P',
		"Ser": 'S', "Thr": 'T', "Trp": 'W', "Tyr": 'Y', "Val": 'V',
		"Ter": '*',
	}

	aminoAcidOneToThree = map[byte]string{
		'A': "Ala", 'C': "Cys", 'D': "Asp", 'E': "Glu",
		'F': "Phe", 'G': "Gly", 'H': "His", 'I': "Ile",
		'K': "Lys", 'L': "Leu", 'M': "Met", 'N': "Asn",
		'P': "Pro", 'Q': "Gln", 'R': "Arg", 'S': "Ser",
		'T': "Thr", 'V': "Val", 'W': "Trp", 'Y': "Tyr",
		'*': "Ter",
	}
)

const (
	dnaAlphabet     = "ACGT"
	proteinAlphabet = "ACDEFGHIKLMNPQRSTVWY"
)

// InferSequenceType infers the declared type of a bare sequence: if every
// character is a DNA base the sequence is DNA, otherwise protein.
func InferSequenceType(sequence string) domain.SequenceType {
	for i := 0; i < len(sequence); i++ {
		if !strings.ContainsRune(dnaAlphabet, rune(sequence[i])) {
			return domain.SequenceTypeProtein
		}
	}
	return domain.SequenceTypeDNA
}

// ValidateTargetSequence checks a target sequence against its declared type.
// DNA sequences consist only of uppercase A/C/G/T and must be a whole number
// of codons. Protein sequences use the standard amino acid alphabet.
func ValidateTargetSequence(sequence string, sequenceType domain.SequenceType) error {
	if sequence == "" {
		return domain.NewValidationError("target sequence must not be empty")
	}

	if sequenceType == domain.SequenceTypeInfer || sequenceType == "" {
		sequenceType = InferSequenceType(sequence)
	}

	switch sequenceType {
	case domain.SequenceTypeDNA:
		for i := 0; i < len(sequence); i++ {
			if !strings.ContainsRune(dnaAlphabet, rune(sequence[i])) {
				return domain.NewValidationError(
					fmt.Sprintf("invalid DNA character %q at position %d", sequence[i], i+1))
			}
		}
		if len(sequence)%3 != 0 {
			return domain.NewValidationError(
				fmt.Sprintf("DNA target sequence length %d is not a multiple of 3", len(sequence)))
		}
	case domain.SequenceTypeProtein:
		for i := 0; i < len(sequence); i++ {
			if !strings.ContainsRune(proteinAlphabet, rune(sequence[i])) {
				return domain.NewValidationError(
					fmt.Sprintf("invalid amino acid %q at position %d", sequence[i], i+1))
			}
		}
	default:
		return domain.NewValidationError(fmt.Sprintf("unknown sequence type %q", sequenceType))
	}

	return nil
}

// TranslateDNA translates a DNA sequence to its protein product using the
// first reading frame. The sequence length must be a multiple of 3.
func TranslateDNA(sequence string) (string, error) {
	if len(sequence)%3 != 0 {
		return "", fmt.Errorf("translating sequence: length %d is not a multiple of 3", len(sequence))
	}

	var b strings.Builder
	b.Grow(len(sequence) / 3)
	for i := 0; i < len(sequence); i += 3 {
		codon := sequence[i : i+3]
		aa, ok := codonTable[codon]
		if !ok {
			return "", fmt.Errorf("translating sequence: unknown codon %q at position %d", codon, i+1)
		}
		b.WriteByte(aa)
	}
	return b.String(), nil
}
