package external

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VariantEffect/mavedb-core/internal/domain"
)

// clinvarArchiveFloor is the first month for which NCBI publishes a variant
// summary archive.
var clinvarArchiveFloor = time.Date(2015, time.February, 1, 0, 0, 0, 0, time.UTC)

// ClinVarSummaryRow is one row of the monthly variant_summary archive,
// reduced to the fields the core stores as clinical controls.
type ClinVarSummaryRow struct {
	VariationID          string
	GeneSymbol           string
	ClinicalSignificance string
	ReviewStatus         string
	Assembly             string
}

// ClinVarArchiveClient streams monthly ClinVar variant summary archives.
type ClinVarArchiveClient struct {
	baseURL string
	client  *http.Client
}

// NewClinVarArchiveClient creates an archive client.
func NewClinVarArchiveClient(cfg ClientConfig) *ClinVarArchiveClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://ftp.ncbi.nlm.nih.gov/pub/clinvar/tab_delimited/archive/"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		// Archives run to gigabytes; the stream outlives any API timeout.
		timeout = 30 * time.Minute
	}
	return &ClinVarArchiveClient{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}
}

// ValidateArchiveMonth rejects months before the first published archive or
// in the future.
func ValidateArchiveMonth(year, month int) error {
	if month < 1 || month > 12 {
		return domain.NewValidationError(fmt.Sprintf("month %d is not a calendar month", month))
	}
	requested := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	if requested.Before(clinvarArchiveFloor) {
		return domain.NewValidationError(
			fmt.Sprintf("ClinVar archives begin at 2015-02; %04d-%02d is unavailable", year, month))
	}
	if requested.After(time.Now().UTC()) {
		return domain.NewValidationError(
			fmt.Sprintf("ClinVar archive %04d-%02d is in the future", year, month))
	}
	return nil
}

// StreamMonth downloads the archive for one month and invokes fn per row.
// Rows are streamed; the archive is never held in memory whole.
func (c *ClinVarArchiveClient) StreamMonth(ctx context.Context, year, month int, fn func(row *ClinVarSummaryRow) error) error {
	if err := ValidateArchiveMonth(year, month); err != nil {
		return err
	}

	archiveURL := fmt.Sprintf("%svariant_summary_%02d_%04d.txt.gz", c.baseURL, month, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return fmt.Errorf("building archive request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.TransientExternalError{Service: "ClinVar", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return &domain.TransientExternalError{
			Service: "ClinVar",
			Err:     fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("ClinVar archive returned status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("opening archive stream: %w", err)
	}
	defer gz.Close()

	return streamSummaryRows(gz, fn)
}

// streamSummaryRows parses the tab-delimited summary format. The header line
// starts with '#' and names the columns.
func streamSummaryRows(r io.Reader, fn func(row *ClinVarSummaryRow) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var cols map[string]int
	for scanner.Scan() {
		line := scanner.Text()
		if cols == nil {
			if !strings.HasPrefix(line, "#") {
				return fmt.Errorf("archive stream missing header row")
			}
			cols = indexColumns(strings.TrimPrefix(line, "#"))
			continue
		}

		fields := strings.Split(line, "\t")
		row := &ClinVarSummaryRow{
			VariationID:          field(fields, cols, "VariationID"),
			GeneSymbol:           field(fields, cols, "GeneSymbol"),
			ClinicalSignificance: field(fields, cols, "ClinicalSignificance"),
			ReviewStatus:         field(fields, cols, "ReviewStatus"),
			Assembly:             field(fields, cols, "Assembly"),
		}
		if row.VariationID == "" {
			continue
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading archive stream: %w", err)
	}
	return nil
}

func indexColumns(header string) map[string]int {
	out := map[string]int{}
	for i, name := range strings.Split(header, "\t") {
		out[strings.TrimSpace(name)] = i
	}
	return out
}

func field(fields []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}
