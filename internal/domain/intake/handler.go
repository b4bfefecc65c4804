package intake

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/export"
	"github.com/ehr/intake/internal/platform/fhir"
	"github.com/ehr/intake/internal/platform/i18n"
	"github.com/ehr/intake/internal/platform/middleware"
)

// Handler provides REST endpoints for the intake form.
type Handler struct {
	svc     *Service
	catalog *i18n.Catalog
}

// NewHandler creates a new intake handler.
func NewHandler(svc *Service, catalog *i18n.Catalog) *Handler {
	return &Handler{svc: svc, catalog: catalog}
}

// RegisterRoutes registers intake and locale routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/intake/$validate", h.ValidateIntake)
	api.POST("/intake/$convert", h.ConvertIntake)
	api.GET("/intake/last", h.GetLastRecord)
	api.GET("/intake/last/$export", h.DownloadLastRecord)

	api.GET("/locales", h.ListLocales)
	api.GET("/locales/:lang", h.GetLocale)
}

// LocaleInfo describes one supported form language.
type LocaleInfo struct {
	Code     string            `json:"code"`
	Name     string            `json:"name"`
	Labels   map[string]string `json:"labels,omitempty"`
	Messages map[string]string `json:"messages,omitempty"`
}

// LocaleList is the response of GET /locales.
type LocaleList struct {
	Default string       `json:"default"`
	Locales []LocaleInfo `json:"locales"`
}

// ValidateIntake handles POST /api/v1/intake/$validate.
func (h *Handler) ValidateIntake(c echo.Context) error {
	in, err := bindIntake(c)
	if err != nil {
		return badRequest(c, err)
	}
	locale := h.locale(c)
	result := h.svc.Validate(c.Request().Context(), in, locale)
	c.Response().Header().Set("Content-Language", result.Locale)
	return c.JSON(http.StatusOK, result)
}

// ConvertIntake handles POST /api/v1/intake/$convert.
func (h *Handler) ConvertIntake(c echo.Context) error {
	in, err := bindIntake(c)
	if err != nil {
		return badRequest(c, err)
	}
	locale := h.locale(c)
	c.Response().Header().Set("Content-Language", locale)

	rec, err := h.svc.Convert(c.Request().Context(), in, locale)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return writeFHIR(c, http.StatusUnprocessableEntity, h.validationOutcome(verr.Result))
		}
		return writeFHIR(c, http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error()))
	}

	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/intake/last")
	return writeFHIR(c, http.StatusCreated, rec)
}

// GetLastRecord handles GET /api/v1/intake/last.
func (h *Handler) GetLastRecord(c echo.Context) error {
	rec, ok := h.svc.Last()
	if !ok {
		return writeFHIR(c, http.StatusNotFound, fhir.NotFoundOutcome("no patient record has been generated yet"))
	}
	return writeFHIR(c, http.StatusOK, rec)
}

// DownloadLastRecord handles GET /api/v1/intake/last/$export. The body is
// byte-identical to what the file exporter would write.
func (h *Handler) DownloadLastRecord(c echo.Context) error {
	rec, ok := h.svc.Last()
	if !ok {
		return writeFHIR(c, http.StatusNotFound, fhir.NotFoundOutcome("no patient record has been generated yet"))
	}
	p, err := h.svc.Payload(rec)
	if err != nil {
		return writeFHIR(c, http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error()))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", p.Filename))
	return c.Blob(http.StatusOK, export.ContentType, p.Data)
}

// ListLocales handles GET /api/v1/locales.
func (h *Handler) ListLocales(c echo.Context) error {
	out := LocaleList{Default: h.catalog.DefaultLocale()}
	for _, code := range h.catalog.Supported() {
		out.Locales = append(out.Locales, LocaleInfo{Code: code, Name: h.catalog.Name(code)})
	}
	return c.JSON(http.StatusOK, out)
}

// GetLocale handles GET /api/v1/locales/:lang.
func (h *Handler) GetLocale(c echo.Context) error {
	code := c.Param("lang")
	if !h.catalog.Has(code) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("locale %q is not supported", code))
	}
	return c.JSON(http.StatusOK, LocaleInfo{
		Code:     code,
		Name:     h.catalog.Name(code),
		Labels:   h.catalog.Labels(code),
		Messages: h.catalog.Messages(code),
	})
}

// locale resolves ?lang= first, then Accept-Language.
func (h *Handler) locale(c echo.Context) string {
	return h.catalog.Match(c.QueryParam("lang"), c.Request().Header.Get("Accept-Language"))
}

func (h *Handler) validationOutcome(result *ValidationResult) *fhir.OperationOutcome {
	b := fhir.NewOutcomeBuilder()
	for _, field := range result.Fields() {
		kind := result.Kinds[field]
		code := fhir.IssueTypeValue
		if kind == KindRequired {
			code = fhir.IssueTypeRequired
		}
		b.AddFieldIssue(fhir.IssueSeverityError, code, field, string(kind), result.Errors[field])
	}
	b.AddIssue(fhir.IssueSeverityInformation, fhir.IssueTypeInformational, h.catalog.Message(result.Locale, "form_invalid"))
	return b.Build()
}

func bindIntake(c echo.Context) (FlatIntake, error) {
	var in FlatIntake
	if err := c.Bind(&in); err != nil {
		return FlatIntake{}, err
	}
	return in, nil
}

func badRequest(c echo.Context, err error) error {
	if errors.Is(err, middleware.ErrBodyTooLarge) {
		return writeFHIR(c, http.StatusRequestEntityTooLarge, fhir.NewOperationOutcome(
			fhir.IssueSeverityError,
			fhir.IssueTypeTooCostly,
			"request body exceeds the configured size limit",
		))
	}
	status := http.StatusBadRequest
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusUnsupportedMediaType {
		status = he.Code
	}
	return writeFHIR(c, status, fhir.NewOperationOutcome(
		fhir.IssueSeverityError,
		fhir.IssueTypeStructure,
		"request body must be a JSON object whose fields are all strings",
	))
}

func writeFHIR(c echo.Context, status int, v any) error {
	data, err := export.Serialize(v)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(status, export.ContentType, data)
}
