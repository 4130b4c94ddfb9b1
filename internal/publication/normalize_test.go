package publication

import (
	"testing"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"20711194", "20711194"},
		{" 20711194 ", "20711194"},
		{"https://doi.org/10.1038/s41586-018-0461-z", "10.1038/s41586-018-0461-z"},
		{"http://dx.doi.org/10.1038/s41586-018-0461-z", "10.1038/s41586-018-0461-z"},
		{"https://www.biorxiv.org/content/10.1101/2021.06.21.212332", "2021.06.21.212332"},
		{"https://www.biorxiv.org/content/2021.06.21.212332v2", "2021.06.21.212332"},
		{"https://www.ncbi.nlm.nih.gov/pubmed/20711194", "20711194"},
		{"https://pubmed.ncbi.nlm.nih.gov/20711194/", "20711194"},
		{"2021.06.21.212332v1", "2021.06.21.212332"},
		// A DOI ending in a version-like token keeps its suffix.
		{"10.1101/gr.3577405", "10.1101/gr.3577405"},
	}
	for _, tt := range tests {
		if got := NormalizeIdentifier(tt.raw); got != tt.want {
			t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestIdentifierValidators(t *testing.T) {
	tests := []struct {
		identifier string
		pubmed     bool
		biorxiv    bool
		medrxiv    bool
		doi        bool
	}{
		{"20711194", true, false, true, false},
		{"212332", true, true, false, false},
		{"0123", false, false, false, false},
		{"10.1038/s41586-018-0461-z", false, false, false, true},
		{"2021.06.21.212332", false, true, false, false},
		{"2021.06.21.21233200", false, false, true, false},
		// Dated form before the changeover date is invalid.
		{"2018.01.15.212332", false, false, false, false},
		{"not-an-id", false, false, false, false},
	}
	for _, tt := range tests {
		if got := ValidPubMedID(tt.identifier); got != tt.pubmed {
			t.Errorf("ValidPubMedID(%q) = %v, want %v", tt.identifier, got, tt.pubmed)
		}
		if got := ValidBioRxivID(tt.identifier); got != tt.biorxiv {
			t.Errorf("ValidBioRxivID(%q) = %v, want %v", tt.identifier, got, tt.biorxiv)
		}
		if got := ValidMedRxivID(tt.identifier); got != tt.medrxiv {
			t.Errorf("ValidMedRxivID(%q) = %v, want %v", tt.identifier, got, tt.medrxiv)
		}
		if got := ValidDOI(tt.identifier); got != tt.doi {
			t.Errorf("ValidDOI(%q) = %v, want %v", tt.identifier, got, tt.doi)
		}
	}
}

func TestApplicableDatabases(t *testing.T) {
	tests := []struct {
		identifier string
		want       []string
	}{
		{"10.1038/s41586-018-0461-z", []string{DBCrossref}},
		{"212332", []string{DBPubMed, DBBioRxiv}},
		{"20711194", []string{DBPubMed, DBMedRxiv}},
		{"2021.06.21.212332", []string{DBBioRxiv}},
		{"not-an-id", nil},
	}
	for _, tt := range tests {
		got := ApplicableDatabases(tt.identifier)
		if len(got) != len(tt.want) {
			t.Errorf("ApplicableDatabases(%q) = %v, want %v", tt.identifier, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ApplicableDatabases(%q) = %v, want %v", tt.identifier, got, tt.want)
				break
			}
		}
	}
}

func TestValidForDatabase(t *testing.T) {
	if !ValidForDatabase("20711194", DBPubMed) {
		t.Error("expected a valid PubMed id")
	}
	if ValidForDatabase("20711194", DBCrossref) {
		t.Error("a PubMed id is not a DOI")
	}
	if ValidForDatabase("20711194", "GenBank") {
		t.Error("unknown databases validate nothing")
	}
}
