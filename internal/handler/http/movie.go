package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/utafrali/moviesearch/internal/dataset"
	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/query"
	"github.com/utafrali/moviesearch/internal/service"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
	"github.com/utafrali/moviesearch/pkg/httputil"
	"github.com/utafrali/moviesearch/pkg/validator"
)

const maxBodyBytes = 1 << 20

// MovieHandler handles HTTP requests for the movie endpoints.
type MovieHandler struct {
	service     *service.MovieService
	datasetPath string
	logger      *slog.Logger
}

// NewMovieHandler creates a movie handler. datasetPath is the CSV file
// POST /reindex loads.
func NewMovieHandler(svc *service.MovieService, datasetPath string, logger *slog.Logger) *MovieHandler {
	return &MovieHandler{service: svc, datasetPath: datasetPath, logger: logger}
}

// --- Request DTOs ---

// SearchRequest holds the search query parameters. Zero values are replaced
// by the defaults before validation.
type SearchRequest struct {
	Q              string  `query:"q" validate:"max=500"`
	YearFrom       int     `query:"year_from" validate:"gte=1900,lte=2100"`
	YearTo         int     `query:"year_to" validate:"gte=1900,lte=2100,gtefield=YearFrom"`
	MinPopularity  float64 `query:"min_popularity" validate:"gte=0,lte=100000"`
	MinVoteAverage float64 `query:"min_vote_average" validate:"gte=0,lte=10"`
	Size           int     `query:"size" validate:"gte=1,lte=50"`
	Rewrite        bool    `query:"rewrite"`
}

// ReindexRequest is the optional JSON body of POST /reindex.
type ReindexRequest struct {
	BatchSize int `json:"batch_size" validate:"gte=0,lte=10000"`
}

// UpsertRequest is the JSON body of POST /api/v1/movies. Each movie uses the
// dataset's column names.
type UpsertRequest struct {
	Movies []domain.RawRecord `json:"movies" validate:"required,min=1,max=500"`
}

// --- Handlers ---

// Search handles GET /api/v1/movies/search
func (h *MovieHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := parseSearchRequest(w, r)
	if !ok {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	from, to := domain.YearRange(req.YearFrom, req.YearTo)
	spec := domain.FilterSpec{
		Query:          strings.TrimSpace(req.Q),
		ReleaseFrom:    from,
		ReleaseTo:      to,
		MinPopularity:  req.MinPopularity,
		MinVoteAverage: req.MinVoteAverage,
		Limit:          req.Size,
	}

	if req.Rewrite {
		result, err := h.service.Ask(r.Context(), spec)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
		return
	}

	if err := spec.Validate(); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	results, err := h.service.Search(r.Context(), h.service.BuildQuery(spec.Query, spec))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: service.AskResult{
		Question: spec.Query,
		Query:    spec.Query,
		Results:  results,
	}})
}

func parseSearchRequest(w http.ResponseWriter, r *http.Request) (*SearchRequest, bool) {
	def := query.Defaults()
	req := &SearchRequest{Q: r.URL.Query().Get("q")}

	var ok bool
	if req.YearFrom, ok = httputil.QueryInt(w, r, "year_from", yearOf(def.ReleaseFrom)); !ok {
		return nil, false
	}
	if req.YearTo, ok = httputil.QueryInt(w, r, "year_to", yearOf(def.ReleaseTo)); !ok {
		return nil, false
	}
	if req.MinPopularity, ok = httputil.QueryFloat(w, r, "min_popularity", def.MinPopularity); !ok {
		return nil, false
	}
	if req.MinVoteAverage, ok = httputil.QueryFloat(w, r, "min_vote_average", def.MinVoteAverage); !ok {
		return nil, false
	}
	if req.Size, ok = httputil.QueryInt(w, r, "size", def.Limit); !ok {
		return nil, false
	}

	switch v := r.URL.Query().Get("rewrite"); v {
	case "", "true", "1":
		req.Rewrite = true
	case "false", "0":
		req.Rewrite = false
	default:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "rewrite must be true or false"},
		})
		return nil, false
	}
	return req, true
}

// yearOf reads the year of a YYYY-MM-DD date.
func yearOf(date string) int {
	y, _ := strconv.Atoi(date[:4])
	return y
}

// Reindex handles POST /api/v1/movies/reindex
func (h *MovieHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if h.service.Reindexing() {
		httputil.WriteError(w, r, apperrors.Conflict("a reindex is already running"), h.logger)
		return
	}

	var req ReindexRequest
	if r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	if h.datasetPath == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("no dataset path configured"), h.logger)
		return
	}
	src, err := dataset.OpenCSV(h.datasetPath)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	defer func() { _ = src.Close() }()

	report, err := h.service.Reindex(r.Context(), src, req.BatchSize)
	if err != nil {
		h.writeIndexError(w, r, report, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reportResponse(report)})
}

// Upsert handles POST /api/v1/movies
func (h *MovieHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req UpsertRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	report, err := h.service.Upsert(r.Context(), req.Movies)
	if err != nil {
		h.writeIndexError(w, r, report, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reportResponse(report)})
}

// writeIndexError keeps the partial report in the error envelope when the
// pass stopped early.
func (h *MovieHandler) writeIndexError(w http.ResponseWriter, r *http.Request, report *domain.IndexReport, err error) {
	if report == nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteErrorWithData(w, r, err, reportResponse(report), h.logger)
}

type indexReportResponse struct {
	*domain.IndexReport
	Outcome    domain.Outcome `json:"outcome"`
	DurationMS int64          `json:"duration_ms"`
}

func reportResponse(r *domain.IndexReport) indexReportResponse {
	return indexReportResponse{IndexReport: r, Outcome: r.Outcome(), DurationMS: r.Duration.Milliseconds()}
}
