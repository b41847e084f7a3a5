package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestCheckTimestampWithinWindow(t *testing.T) {
	c, rec := newTestContext()
	if !checkTimestamp(c, 1_000_000, 1_000_000+4000, 0) {
		t.Fatal("expected timestamp within default recvWindow to pass")
	}
	if rec.Code != 0 && rec.Code != http.StatusOK {
		t.Fatalf("unexpected response written: %d", rec.Code)
	}
}

func TestCheckTimestampOutsideWindowRejectsWithDashOneZeroTwoOne(t *testing.T) {
	c, rec := newTestContext()
	if checkTimestamp(c, 1_000_000, 1_000_000+6000, 0) {
		t.Fatal("expected timestamp outside default recvWindow to fail")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != -1021 {
		t.Fatalf("body code = %d (err %v), want -1021", body.Code, err)
	}
}

func TestCheckTimestampCustomRecvWindow(t *testing.T) {
	c, rec := newTestContext()
	if !checkTimestamp(c, 1_000_000, 1_000_000+9000, 10_000) {
		t.Fatal("expected timestamp within custom recvWindow to pass")
	}
	_ = rec
}

func TestCheckTimestampNegativeSkew(t *testing.T) {
	c, _ := newTestContext()
	if checkTimestamp(c, 1_000_000, 1_000_000-6000, 0) {
		t.Fatal("expected a request timestamped before the server's clock, past the window, to fail")
	}
}
