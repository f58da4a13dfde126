package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registrar-api/internal/middleware"
	"github.com/noah-isme/registrar-api/internal/models"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

var (
	studentClaims    = &models.JWTClaims{UserID: "user-7", Role: models.RoleStudent}
	accountingClaims = &models.JWTClaims{UserID: "acct-1", Role: models.RoleAccounting}
	adminClaims      = &models.JWTClaims{UserID: "reg-1", Role: models.RoleAdmin}
)

func newContext(method, target string, body io.Reader, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func jsonContext(method, target string, payload interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	var body io.Reader
	switch v := payload.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(v)
	default:
		raw, _ := json.Marshal(v)
		body = bytes.NewReader(raw)
	}
	c, rec := newContext(method, target, body, claims)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

func decode(rec *httptest.ResponseRecorder) responseEnvelope {
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	return envelope
}

func withParams(c *gin.Context, kv ...string) {
	for i := 0; i+1 < len(kv); i += 2 {
		c.Params = append(c.Params, gin.Param{Key: kv[i], Value: kv[i+1]})
	}
}
