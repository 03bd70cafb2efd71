package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/venturely/venturely-backend/internal/clients/assistant"
	"github.com/venturely/venturely-backend/internal/platform/apierr"
)

func recordAPIError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondAPIError(c, err)
	return w
}

func TestRespondAPIErrorHidesUpstreamDetail(t *testing.T) {
	upstream := &assistant.HTTPError{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":{"message":"internal upstream detail: shard exhausted"}}`,
	}
	err := apierr.Unavailable("assistant_gateway", fmt.Errorf("create run: %w", upstream))

	w := recordAPIError(t, err)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "shard exhausted") || strings.Contains(body, "create run") {
		t.Fatalf("upstream detail leaked: %s", body)
	}
	var resp ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "assistant_gateway" {
		t.Fatalf("code = %q", resp.Error.Code)
	}
	if resp.Error.Message != curatedMessages["assistant_gateway"] {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestRespondAPIErrorCuratesEveryUnavailableCode(t *testing.T) {
	for code := range curatedMessages {
		err := apierr.Unavailable(code, fmt.Errorf("raw internal detail for %s", code))
		if code == "rate_limited" {
			err = apierr.RateLimited(fmt.Errorf("raw internal detail"))
		}
		w := recordAPIError(t, err)
		if strings.Contains(w.Body.String(), "raw internal detail") {
			t.Fatalf("code %s leaked internal text: %s", code, w.Body.String())
		}
	}
}

func TestRespondAPIErrorKeepsValidationMessages(t *testing.T) {
	err := apierr.Validation("missing_title", fmt.Errorf("plan title required"))
	w := recordAPIError(t, err)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "plan title required") {
		t.Fatalf("validation message should pass through: %s", w.Body.String())
	}
}
