package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/VariantEffect/mavedb-core/internal/calibration"
	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/validation"
)

const userContextKey = "user"

// userContext resolves the authenticated user from the X-User header.
// Requests without the header, or naming an unknown user, proceed
// anonymously; visibility rules downstream decide what they may see.
func (s *Server) userContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetHeader("X-User")
		if username == "" {
			c.Next()
			return
		}
		user, err := s.users.GetByUsername(c.Request.Context(), username)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				writeError(c, err)
				c.Abort()
				return
			}
			c.Next()
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	if v, ok := c.Get(userContextKey); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

func (s *Server) handleCreateScoreSet(c *gin.Context) {
	var scoreSet domain.ScoreSet
	if err := c.ShouldBindJSON(&scoreSet); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid score set payload: " + err.Error()})
		return
	}

	created, err := s.scoreSets.Create(c.Request.Context(), currentUser(c), &scoreSet)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleGetScoreSet(c *gin.Context) {
	scoreSet, err := s.scoreSets.Get(c.Request.Context(), currentUser(c), c.Param("urn"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scoreSet)
}

func (s *Server) handleDeleteScoreSet(c *gin.Context) {
	if err := s.scoreSets.Delete(c.Request.Context(), currentUser(c), c.Param("urn")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleUploadVariants accepts multipart scores_file and optional counts_file
// uploads and submits the asynchronous ingestion job. The response carries
// the job id to poll for the validation outcome.
func (s *Server) handleUploadVariants(c *gin.Context) {
	scoresCSV, err := readFormFile(c, "scores_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	countsCSV, err := readOptionalFormFile(c, "counts_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	job, err := s.scoreSets.UploadDataset(c.Request.Context(), currentUser(c), c.Param("urn"), scoresCSV, countsCSV)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *Server) handlePublishScoreSet(c *gin.Context) {
	scoreSet, err := s.scoreSets.Publish(c.Request.Context(), currentUser(c), c.Param("urn"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scoreSet)
}

func (s *Server) handleDownloadScores(c *gin.Context) {
	s.streamDataset(c, false)
}

func (s *Server) handleDownloadCounts(c *gin.Context) {
	s.streamDataset(c, true)
}

// streamDataset renders the stored variant data back as CSV. Missing values
// render as NA; start/limit select a window of rows, and drop_na_columns=true
// omits HGVS columns that are NA on every row of that window.
func (s *Server) streamDataset(c *gin.Context, counts bool) {
	user := currentUser(c)
	scoreSet, err := s.scoreSets.Get(c.Request.Context(), user, c.Param("urn"))
	if err != nil {
		writeError(c, err)
		return
	}
	if scoreSet.DatasetColumns == nil {
		writeError(c, fmt.Errorf("score set has no dataset: %w", domain.ErrNotFound))
		return
	}

	dataColumns := scoreSet.DatasetColumns.ScoreColumns
	if counts {
		dataColumns = scoreSet.DatasetColumns.CountColumns
	}
	if counts && len(dataColumns) == 0 {
		writeError(c, fmt.Errorf("score set has no count data: %w", domain.ErrNotFound))
		return
	}

	variants, err := s.scoreSets.Variants(c.Request.Context(), user, scoreSet.URN)
	if err != nil {
		writeError(c, err)
		return
	}

	window, err := sliceWindow(variants, c.Query("start"), c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	hgvsColumns := []string{"hgvs_nt", "hgvs_splice", "hgvs_pro"}
	if c.Query("drop_na_columns") == "true" {
		hgvsColumns = presentHgvsColumns(window)
	}

	filename := "scores.csv"
	if counts {
		filename = "counts.csv"
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	header := append([]string{"accession"}, hgvsColumns...)
	header = append(header, dataColumns...)
	if err := w.Write(header); err != nil {
		return
	}
	for i := range window {
		v := &window[i]
		row := []string{v.URN}
		for _, col := range hgvsColumns {
			row = append(row, naString(hgvsCell(v, col)))
		}
		data := v.Data.ScoreData
		if counts {
			data = v.Data.CountData
		}
		for _, col := range dataColumns {
			row = append(row, naValue(data[col]))
		}
		if err := w.Write(row); err != nil {
			return
		}
	}
	w.Flush()
}

// sliceWindow applies the start and limit query parameters to the variant
// list. start counts from zero; a window past the end yields no rows.
func sliceWindow(variants []domain.Variant, startStr, limitStr string) ([]domain.Variant, error) {
	start := 0
	if startStr != "" {
		n, err := strconv.Atoi(startStr)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("start must be a non-negative integer")
		}
		start = n
	}
	if start > len(variants) {
		start = len(variants)
	}
	end := len(variants)
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("limit must be a non-negative integer")
		}
		if start+n < end {
			end = start + n
		}
	}
	return variants[start:end], nil
}

// presentHgvsColumns returns the HGVS columns holding at least one value in
// the rendered window, in canonical order.
func presentHgvsColumns(variants []domain.Variant) []string {
	var out []string
	for _, col := range []string{"hgvs_nt", "hgvs_splice", "hgvs_pro"} {
		for i := range variants {
			if s := hgvsCell(&variants[i], col); s != nil && *s != "" {
				out = append(out, col)
				break
			}
		}
	}
	return out
}

func hgvsCell(v *domain.Variant, col string) *string {
	switch col {
	case "hgvs_nt":
		return v.HgvsNt
	case "hgvs_splice":
		return v.HgvsSplice
	default:
		return v.HgvsPro
	}
}

func naString(s *string) string {
	if s == nil || *s == "" {
		return "NA"
	}
	return *s
}

func naValue(v any) string {
	if v == nil {
		return "NA"
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "NA"
		}
		return t
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprintf("%v", t)
	}
}

// handleSetCalibration stores a score calibration. The calibration itself is
// a JSON body, or the "calibration_json" part of a multipart request;
// class-based calibrations supply their membership via the classes_file
// part, a CSV of variant identifiers and class labels.
func (s *Server) handleSetCalibration(c *gin.Context) {
	var cal domain.ScoreCalibration
	var classes calibration.VariantClasses

	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/") {
		calJSON := c.PostForm("calibration_json")
		if calJSON == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "multipart request requires a calibration_json field"})
			return
		}
		if err := json.Unmarshal([]byte(calJSON), &cal); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid calibration payload: " + err.Error()})
			return
		}
		classesCSV, err := readOptionalFormFile(c, "classes_file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if classesCSV != "" {
			classes, err = parseClassesFile(classesCSV)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid classes file: " + err.Error()})
				return
			}
		}
	} else {
		if err := c.ShouldBindJSON(&cal); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid calibration payload: " + err.Error()})
			return
		}
	}

	scoreSet, err := s.calibrations.Set(c.Request.Context(), currentUser(c), c.Param("urn"), &cal, classes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scoreSet)
}

// parseClassesFile reads class membership from CSV: the first column names
// the variant, the second its class label.
func parseClassesFile(content string) (calibration.VariantClasses, error) {
	df, err := validation.ReadCSV(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	if len(df.Columns) < 2 {
		return nil, fmt.Errorf("classes file requires a variant column and a class column")
	}
	classes := calibration.VariantClasses{}
	for i, row := range df.Rows {
		if row[0] == nil || row[1] == nil {
			return nil, fmt.Errorf("classes file row %d has an empty cell", i+1)
		}
		label := *row[1]
		classes[label] = append(classes[label], *row[0])
	}
	return classes, nil
}

func (s *Server) handleClassifyVariants(c *gin.Context) {
	classified, err := s.calibrations.Classify(c.Request.Context(), currentUser(c), c.Param("urn"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, classified)
}

func (s *Server) handleResolvePublication(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier"`
		DBName     string `json:"db_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid publication payload: " + err.Error()})
		return
	}

	pub, err := s.publications.FindOrCreate(c.Request.Context(), req.Identifier, req.DBName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pub)
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid job id"})
		return
	}
	job, err := s.jobRuns.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func readFormFile(c *gin.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("missing %s upload", field)
	}
	return readMultipartFile(fh, field)
}

func readOptionalFormFile(c *gin.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", nil
	}
	return readMultipartFile(fh, field)
}

func readMultipartFile(fh *multipart.FileHeader, field string) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s upload: %w", field, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading %s upload: %w", field, err)
	}
	return string(data), nil
}
