package disclosure

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/factors"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
)

func setupRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(svc, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func perform(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func inlineBuildRequest(records []emissions.ActivityRecord) BuildRequest {
	return BuildRequest{
		Records:  records,
		Metadata: testMetadata(),
		Options:  BuildOptions{Method: uncertainty.MethodAnalytic},
		Factors:  &InlineFactors{Factors: testEntries()},
	}
}

func TestBuildEndpoint(t *testing.T) {
	router := setupRouter(testService(nil, nil, nil))

	w := perform(router, http.MethodPost, "/api/v1/disclosures/build", inlineBuildRequest(scenarioRecords()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary struct {
		Fingerprint   string         `json:"fingerprint"`
		ActivityCount int            `json:"activity_count"`
		Aggregation   map[string]any `json:"aggregation"`
		Document      string         `json:"document"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.ActivityCount)
	assert.Equal(t, "7000", summary.Aggregation["total"])
	assert.Len(t, summary.Fingerprint, 64)
	assert.Empty(t, summary.Document)
}

func TestBuildEndpointReturnsXHTML(t *testing.T) {
	router := setupRouter(testService(nil, nil, nil))

	w := perform(router, http.MethodPost, "/api/v1/disclosures/build?format=xhtml", inlineBuildRequest(scenarioRecords()))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/xhtml+xml"))
	assert.Contains(t, w.Body.String(), "ix:nonFraction")
}

func TestBuildEndpointMissingFactor(t *testing.T) {
	router := setupRouter(testService(nil, nil, nil))
	records := append(scenarioRecords(), record("a-4", emissions.Scope3, "waste", "landfill", "10", "tonne"))
	req := inlineBuildRequest(records)
	req.Options.MissingFactorPolicy = PolicyAbort

	w := perform(router, http.MethodPost, "/api/v1/disclosures/build", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "FACTOR_NOT_FOUND")
}

func TestBuildEndpointInvalidMetadata(t *testing.T) {
	router := setupRouter(testService(nil, nil, nil))
	req := inlineBuildRequest(scenarioRecords())
	req.Metadata.EntityIdentifier = ""

	w := perform(router, http.MethodPost, "/api/v1/disclosures/build", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}

func TestBuildEndpointRejectsUnknownScope(t *testing.T) {
	router := setupRouter(testService(nil, nil, nil))

	w := perform(router, http.MethodPost, "/api/v1/disclosures/build", `{"records":[{"scope":"scope 9","category":"x","activity_type":"y","quantity":"1","unit":"kg","year":2024}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "UNRECOGNIZED_SCOPE")
}

func TestBuildEndpointMalformedBody(t *testing.T) {
	router := setupRouter(testService(nil, nil, nil))

	w := perform(router, http.MethodPost, "/api/v1/disclosures/build", `{"records": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportEndpointCSV(t *testing.T) {
	router := setupRouter(testService(nil, nil, nil))

	w := perform(router, http.MethodPost, "/api/v1/disclosures/export?format=csv", inlineBuildRequest(scenarioRecords()))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Report-Fingerprint"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 4)
}

func TestExportEndpointUnknownFormat(t *testing.T) {
	router := setupRouter(testService(nil, nil, nil))

	w := perform(router, http.MethodPost, "/api/v1/disclosures/export?format=docx", inlineBuildRequest(scenarioRecords()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateEndpoint(t *testing.T) {
	org := uuid.New()
	req := generateRequest(org)

	repo := new(MockActivityRepository)
	repo.On("ListForPeriod", mock.Anything, org, mock.Anything, mock.Anything).Return(scenarioRecords(), nil)
	source := new(MockFactorSource)
	source.On("LoadTable", mock.Anything, 2024, 2024).Return(factors.NewMemoryTable(testEntries()), nil)
	source.On("LoadSectorMappings", mock.Anything).Return(map[string]string{}, nil)

	router := setupRouter(testService(repo, source, nil))
	w := perform(router, http.MethodPost, "/api/v1/disclosures/generate", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"BUILT"`)
}

func TestGenerateEndpointRequiresOrganization(t *testing.T) {
	router := setupRouter(testService(new(MockActivityRepository), nil, nil))

	w := perform(router, http.MethodPost, "/api/v1/disclosures/generate", `{"period_start":"2024-01-01T00:00:00Z","period_end":"2024-12-31T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveFactorEndpoint(t *testing.T) {
	source := new(MockFactorSource)
	source.On("LoadTable", mock.Anything, 2024, 2024).Return(factors.NewMemoryTable(testEntries()), nil)
	source.On("LoadSectorMappings", mock.Anything).Return(map[string]string{}, nil)
	router := setupRouter(testService(nil, source, nil))

	w := perform(router, http.MethodGet, "/api/v1/disclosures/factors/resolve?scope=1&category=stationary_combustion&activity_type=diesel&country=gb&unit=litre&year=2024", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"match_level":"exact"`)

	w = perform(router, http.MethodGet, "/api/v1/disclosures/factors/resolve?scope=1&category=stationary_combustion&activity_type=petrol&country=gb&year=2024", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = perform(router, http.MethodGet, "/api/v1/disclosures/factors/resolve?scope=banana&category=a&activity_type=b", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "UNRECOGNIZED_SCOPE")
}
