package intake

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/fhir"
	"github.com/ehr/intake/internal/platform/i18n"
	"github.com/ehr/intake/internal/platform/middleware"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService(), i18n.MustDefault())
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return h, e
}

func intakeBody(t *testing.T, in FlatIntake) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal intake: %v", err)
	}
	return bytes.NewReader(data)
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func postJSON(path string, body *bytes.Reader) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

// =========== $convert ===========

func TestHandler_Convert_Success(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, postJSON("/api/v1/intake/$convert", intakeBody(t, mariaIntake())))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/fhir+json" {
		t.Errorf("expected application/fhir+json, got %q", ct)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/api/v1/intake/last" {
		t.Errorf("unexpected Location %q", loc)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["resourceType"] != "Patient" {
		t.Errorf("expected Patient, got %v", got["resourceType"])
	}
	telecom := got["telecom"].([]interface{})
	if telecom[0].(map[string]interface{})["system"] != "phone" {
		t.Errorf("expected phone first, got %v", telecom)
	}
	if !strings.HasSuffix(rec.Body.String(), "}\n") || !strings.Contains(rec.Body.String(), "\n  \"id\"") {
		t.Errorf("expected pretty-printed body, got %s", rec.Body.String())
	}
}

func TestHandler_Convert_ValidationFailure(t *testing.T) {
	_, e := newTestHandler()
	in := mariaIntake()
	in.FirstName = ""
	in.Phone = "555"

	req := postJSON("/api/v1/intake/$convert?lang=es", intakeBody(t, in))
	rec := serve(e, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if cl := rec.Header().Get("Content-Language"); cl != "es" {
		t.Errorf("expected Content-Language es, got %q", cl)
	}

	var outcome fhir.OperationOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(outcome.Issue) != 3 {
		t.Fatalf("expected 3 issues, got %d: %+v", len(outcome.Issue), outcome.Issue)
	}

	first := outcome.Issue[0]
	if first.Code != fhir.IssueTypeRequired || first.Expression[0] != "firstName" {
		t.Errorf("unexpected first issue %+v", first)
	}
	if first.Details.Coding[0].Code != "required" {
		t.Errorf("expected detail code required, got %+v", first.Details)
	}
	if first.Diagnostics != "Este campo es obligatorio" {
		t.Errorf("expected Spanish diagnostics, got %q", first.Diagnostics)
	}

	second := outcome.Issue[1]
	if second.Code != fhir.IssueTypeValue || second.Expression[0] != "phone" || second.Details.Coding[0].Code != "invalid_phone" {
		t.Errorf("unexpected second issue %+v", second)
	}

	notice := outcome.Issue[2]
	if notice.Severity != fhir.IssueSeverityInformation {
		t.Errorf("expected information notice, got %+v", notice)
	}
	if notice.Diagnostics != "Corrija los campos resaltados antes de convertir" {
		t.Errorf("unexpected notice %q", notice.Diagnostics)
	}
}

func TestHandler_Convert_AcceptLanguage(t *testing.T) {
	_, e := newTestHandler()

	req := postJSON("/api/v1/intake/$convert", intakeBody(t, FlatIntake{}))
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9")
	rec := serve(e, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Este campo es obligatorio") {
		t.Errorf("expected Spanish messages, got %s", rec.Body.String())
	}
}

func TestHandler_Convert_NonStringField(t *testing.T) {
	_, e := newTestHandler()

	body := bytes.NewReader([]byte(`{"firstName":"Ana","lastName":"Lopez","dob":"1990-01-01","gender":"male","phone":5551234567}`))
	rec := serve(e, postJSON("/api/v1/intake/$convert", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var outcome fhir.OperationOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.Issue[0].Code != fhir.IssueTypeStructure {
		t.Errorf("expected structure issue, got %+v", outcome.Issue[0])
	}
}

func TestHandler_Convert_NullField(t *testing.T) {
	_, e := newTestHandler()

	body := bytes.NewReader([]byte(`{"firstName":null,"lastName":"Lopez","dob":"1990-01-01","gender":"male"}`))
	rec := serve(e, postJSON("/api/v1/intake/$convert", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Convert_OversizedBodyWithoutLength(t *testing.T) {
	e := echo.New()
	e.Use(middleware.BodyLimit("1K"))
	NewHandler(newTestService(), i18n.MustDefault()).RegisterRoutes(e.Group("/api/v1"))

	body := `{"firstName":"` + strings.Repeat("x", 4096) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/intake/$convert", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.ContentLength = -1
	rec := serve(e, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	var outcome fhir.OperationOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.Issue[0].Code != fhir.IssueTypeTooCostly {
		t.Errorf("expected too-costly issue, got %+v", outcome.Issue[0])
	}
}

func TestHandler_Convert_MalformedJSON(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, postJSON("/api/v1/intake/$convert", bytes.NewReader([]byte(`{"firstName":`))))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// =========== $validate ===========

func TestHandler_Validate(t *testing.T) {
	_, e := newTestHandler()
	in := minimalIntake()
	in.Email = "bad"

	rec := serve(e, postJSON("/api/v1/intake/$validate", intakeBody(t, in)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result ValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Valid {
		t.Error("expected invalid result")
	}
	if result.Kinds["email"] != KindInvalidEmail {
		t.Errorf("expected invalid_email, got %v", result.Kinds)
	}
	if result.Errors["email"] != "Please enter a valid email address" {
		t.Errorf("unexpected message %q", result.Errors["email"])
	}
}

func TestHandler_Validate_DoesNotStoreRecord(t *testing.T) {
	h, e := newTestHandler()

	serve(e, postJSON("/api/v1/intake/$validate", intakeBody(t, mariaIntake())))

	if _, ok := h.svc.Last(); ok {
		t.Error("validate must not produce a record")
	}
}

// =========== last ===========

func TestHandler_GetLastRecord_NotFound(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/intake/last", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"not-found"`) {
		t.Errorf("expected not-found outcome, got %s", rec.Body.String())
	}
}

func TestHandler_GetLastRecord(t *testing.T) {
	_, e := newTestHandler()
	created := serve(e, postJSON("/api/v1/intake/$convert", intakeBody(t, mariaIntake())))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/intake/last", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != created.Body.String() {
		t.Error("expected last record to match the converted one")
	}
}

func TestHandler_DownloadLastRecord(t *testing.T) {
	_, e := newTestHandler()
	created := serve(e, postJSON("/api/v1/intake/$convert", intakeBody(t, mariaIntake())))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/intake/last/$export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := `attachment; filename="fhir-patient-2024-03-15.json"`
	if cd := rec.Header().Get(echo.HeaderContentDisposition); cd != want {
		t.Errorf("expected %s, got %q", want, cd)
	}
	if !bytes.Equal(rec.Body.Bytes(), created.Body.Bytes()) {
		t.Error("download body must equal the converted record")
	}
}

func TestHandler_DownloadLastRecord_NotFound(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/intake/last/$export", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// =========== locales ===========

func TestHandler_ListLocales(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/locales", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListLocales(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list LocaleList
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Default != "en" || len(list.Locales) != 2 {
		t.Errorf("unexpected locale list %+v", list)
	}
	if list.Locales[1].Code != "es" || list.Locales[1].Name != "Español" {
		t.Errorf("unexpected second locale %+v", list.Locales[1])
	}
}

func TestHandler_GetLocale(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("lang")
	c.SetParamValues("es")

	if err := h.GetLocale(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var info LocaleInfo
	json.Unmarshal(rec.Body.Bytes(), &info)
	if info.Labels["firstName"] != "Nombre" {
		t.Errorf("expected Spanish labels, got %v", info.Labels)
	}
	if info.Messages["required"] != "Este campo es obligatorio" {
		t.Errorf("expected Spanish messages, got %v", info.Messages)
	}
}

func TestHandler_GetLocale_Unknown(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("lang")
	c.SetParamValues("fr")

	err := h.GetLocale(c)
	if err == nil {
		t.Fatal("expected error for unsupported locale")
	}
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 HTTPError, got %v", err)
	}
}
