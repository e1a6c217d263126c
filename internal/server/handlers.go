package server

import (
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/cache"
	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/domain"
	"github.com/kapu/modeltrans-go/internal/feed"
	"github.com/kapu/modeltrans-go/internal/lang"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/store"
	"github.com/kapu/modeltrans-go/internal/translate"
	"github.com/kapu/modeltrans-go/pkg/errors"
)

type handlers struct {
	db              *store.Database
	repo            *store.Repository
	registry        *translate.Registry
	resolver        *lang.Resolver
	accessor        *translate.Accessor
	records         *cache.RecordCache
	redis           *cache.Service
	inspector       schema.Inspector
	syncer          *schema.Syncer
	hub             *feed.Hub
	sink            store.EventSink
	hideTranslation bool
	logger          *zap.Logger
}

func (h *handlers) register(e *echo.Echo, adminToken string) {
	e.GET("/healthz", h.health)

	v1 := e.Group("/v1")
	v1.GET("/languages", h.languages)
	v1.GET("/models", h.models)
	v1.GET("/records/:table", h.listRecords)
	v1.POST("/records/:table", h.createRecord)
	v1.GET("/records/:table/:id", h.getRecord)
	v1.PATCH("/records/:table/:id", h.patchRecord)
	v1.DELETE("/records/:table/:id", h.deleteRecord)
	v1.GET("/schema/changes", h.schemaChanges)
	v1.POST("/schema/sync", h.schemaSync, AdminOnly(adminToken))
	v1.GET("/feed", h.feedWS)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(c echo.Context, err error) error {
	return c.JSON(errors.HTTPStatus(err), errorResponse{
		Error: err.Error(),
		Code:  errors.GetCode(err),
	})
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

func (h *handlers) health(c echo.Context) error {
	ctx := c.Request().Context()

	out := healthResponse{Status: "ok", Database: "up", Redis: "disabled"}
	if err := h.db.Ping(ctx); err != nil {
		out.Status = "degraded"
		out.Database = "down"
	}
	if h.redis != nil {
		out.Redis = "up"
		if !h.redis.IsConnected(ctx) {
			out.Status = "degraded"
			out.Redis = "down"
		}
	}

	status := http.StatusOK
	if out.Database == "down" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, out)
}

type languagesResponse struct {
	Languages        []string            `json:"languages"`
	Default          string              `json:"default"`
	Fallbacks        map[string][]string `json:"fallbacks"`
	FallbacksEnabled bool                `json:"fallbacks_enabled"`
}

func (h *handlers) languages(c echo.Context) error {
	return c.JSON(http.StatusOK, languagesResponse{
		Languages:        h.resolver.Languages(),
		Default:          h.resolver.Default(),
		Fallbacks:        h.resolver.FallbackChains(),
		FallbacksEnabled: h.resolver.FallbacksEnabled(),
	})
}

type modelResponse struct {
	Table     string   `json:"table"`
	Fields    []string `json:"fields"`
	Languages []string `json:"languages"`
}

type modelsResponse struct {
	Models []modelResponse `json:"models"`
}

func (h *handlers) models(c echo.Context) error {
	models := h.registry.Models()
	out := make([]modelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, modelResponse{
			Table:     m.Table,
			Fields:    h.registry.TranslatedFields(m.Table),
			Languages: h.resolver.Languages(),
		})
	}
	return c.JSON(http.StatusOK, modelsResponse{Models: out})
}

type listResponse struct {
	Records []*domain.LocalizedRecord `json:"records"`
	Count   int                       `json:"count"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

func (h *handlers) listRecords(c echo.Context) error {
	ctx := c.Request().Context()
	table := c.Param("table")

	mt, err := h.registry.OptionsFor(table)
	if err != nil {
		return writeError(c, err)
	}

	q := store.Query{
		Table:  table,
		Limit:  intQuery(c, "limit", constants.ServerConfig.DefaultLimit),
		Offset: intQuery(c, "offset", 0),
		Conds:  parseFilters(c.QueryParams(), mt.Model),
	}
	if q.Limit <= 0 || q.Limit > constants.ServerConfig.MaxLimit {
		q.Limit = constants.ServerConfig.MaxLimit
	}
	if order := c.QueryParam("order"); order != "" {
		q.OrderBy = strings.Split(order, ",")
	}
	if fb := c.QueryParam("fallbacks"); fb != "" {
		enabled := fb != "0" && fb != "false"
		q.Fallbacks = &enabled
	}

	recs, err := h.repo.List(ctx, q)
	if err != nil {
		return writeError(c, err)
	}

	out := make([]*domain.LocalizedRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, h.accessor.Localize(ctx, rec))
	}
	return c.JSON(http.StatusOK, listResponse{
		Records: out,
		Count:   len(out),
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
}

type rawRecordResponse struct {
	Table  string         `json:"table"`
	PK     int64          `json:"pk"`
	Values map[string]any `json:"values"`
}

func (h *handlers) getRecord(c echo.Context) error {
	ctx := c.Request().Context()
	table := c.Param("table")

	if _, err := h.registry.OptionsFor(table); err != nil {
		return writeError(c, err)
	}
	pk, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httpError(c, http.StatusBadRequest, "invalid record id")
	}

	if c.QueryParam("raw") == "1" {
		rec, err := h.repo.Get(ctx, table, pk)
		if err != nil {
			return writeError(c, err)
		}
		if rec == nil {
			return httpError(c, http.StatusNotFound, "record not found")
		}
		return c.JSON(http.StatusOK, rawRecordResponse{Table: rec.Table, PK: rec.PK, Values: rec.Values})
	}

	var localized *domain.LocalizedRecord
	if h.records != nil {
		localized, err = h.records.GetLocalized(ctx, table, pk, h.resolver.Active(ctx))
	} else {
		var rec *domain.Record
		rec, err = h.repo.Get(ctx, table, pk)
		if rec != nil {
			localized = h.accessor.Localize(ctx, rec)
		}
	}
	if err != nil {
		return writeError(c, err)
	}
	if localized == nil {
		return httpError(c, http.StatusNotFound, "record not found")
	}
	return c.JSON(http.StatusOK, localized)
}

type createResponse struct {
	PK int64 `json:"pk"`
}

func (h *handlers) createRecord(c echo.Context) error {
	ctx := c.Request().Context()
	table := c.Param("table")

	mt, err := h.registry.OptionsFor(table)
	if err != nil {
		return writeError(c, err)
	}

	var body map[string]any
	if err := c.Bind(&body); err != nil {
		return httpError(c, http.StatusBadRequest, "invalid JSON body")
	}
	if len(body) == 0 {
		return httpError(c, http.StatusBadRequest, "empty record body")
	}

	rec := domain.NewRecord(table)
	for k, v := range body {
		rec.Set(k, coerceJSONValue(mt.Model, k, v))
	}

	pk, err := h.repo.Create(ctx, rec)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, createResponse{PK: pk})
}

type patchRequest struct {
	Field string `json:"field"`
	Lang  string `json:"lang,omitempty"`
	Value any    `json:"value"`
}

type patchResponse struct {
	Updated int64 `json:"updated"`
}

func (h *handlers) patchRecord(c echo.Context) error {
	ctx := c.Request().Context()
	table := c.Param("table")

	mt, err := h.registry.OptionsFor(table)
	if err != nil {
		return writeError(c, err)
	}
	pk, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httpError(c, http.StatusBadRequest, "invalid record id")
	}

	var body patchRequest
	if err := c.Bind(&body); err != nil {
		return httpError(c, http.StatusBadRequest, "invalid JSON body")
	}
	if body.Field == "" {
		return httpError(c, http.StatusBadRequest, "field is required")
	}

	affected, err := h.repo.SetLocalized(ctx, table, pk, body.Field, body.Lang,
		coerceJSONValue(mt.Model, body.Field, body.Value))
	if err != nil {
		return writeError(c, err)
	}
	if affected == 0 {
		return httpError(c, http.StatusNotFound, "record not found")
	}
	return c.JSON(http.StatusOK, patchResponse{Updated: affected})
}

func (h *handlers) deleteRecord(c echo.Context) error {
	ctx := c.Request().Context()
	table := c.Param("table")

	if _, err := h.registry.OptionsFor(table); err != nil {
		return writeError(c, err)
	}
	pk, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httpError(c, http.StatusBadRequest, "invalid record id")
	}

	affected, err := h.repo.Delete(ctx, table, pk)
	if err != nil {
		return writeError(c, err)
	}
	if affected == 0 {
		return httpError(c, http.StatusNotFound, "record not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) schemaChanges(c echo.Context) error {
	report, err := schema.BuildChangeReport(c.Request().Context(), h.inspector, h.registry.Models(), h.hideTranslation)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

type syncRequest struct {
	DryRun bool     `json:"dry_run"`
	Tables []string `json:"tables,omitempty"`
}

type syncTableResponse struct {
	Table      string   `json:"table"`
	Columns    []string `json:"columns"`
	Statements []string `json:"statements"`
}

type syncResponse struct {
	Applied bool                `json:"applied"`
	Tables  []syncTableResponse `json:"tables"`
}

func (h *handlers) schemaSync(c echo.Context) error {
	ctx := c.Request().Context()

	var req syncRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, http.StatusBadRequest, "invalid JSON body")
	}

	plan, err := h.syncer.Plan(ctx, h.registry.Models(), req.Tables)
	if err != nil {
		return writeError(c, err)
	}

	if !req.DryRun {
		if err := h.syncer.Sync(ctx, plan, schema.SyncOptions{NoInput: true}); err != nil {
			return writeError(c, err)
		}
		if h.sink != nil {
			for _, t := range plan.Tables {
				if len(t.Statements) == 0 {
					continue
				}
				h.sink.Publish(domain.ChangeEvent{Table: t.Table, Action: domain.ChangeActionSynced})
			}
		}
	}

	out := syncResponse{Applied: !req.DryRun, Tables: make([]syncTableResponse, 0, len(plan.Tables))}
	for _, t := range plan.Tables {
		cols := make([]string, 0, len(t.Missing))
		for _, f := range t.Missing {
			cols = append(cols, f.Column)
		}
		out.Tables = append(out.Tables, syncTableResponse{
			Table:      t.Table,
			Columns:    cols,
			Statements: t.Statements,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handlers) feedWS(c echo.Context) error {
	if h.hub == nil {
		return httpError(c, http.StatusServiceUnavailable, "feed disabled")
	}
	return h.hub.Serve(c.Response(), c.Request())
}

func httpError(c echo.Context, status int, message string) error {
	return c.JSON(status, errorResponse{Error: message})
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

var filterKeyRe = regexp.MustCompile(`^filter\[([A-Za-z_][A-Za-z0-9_]*(?:__[a-z]+)?)\]$`)

// parseFilters turns filter[field__op]=value query params into conditions.
// Values are coerced by the field's kind; unknown fields pass through as
// strings and fail in the query compiler with a proper error.
func parseFilters(values url.Values, model *schema.Model) []store.Cond {
	keys := make([]string, 0, len(values))
	for key := range values {
		if filterKeyRe.MatchString(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	conds := make([]store.Cond, 0, len(keys))
	for _, key := range keys {
		inner := filterKeyRe.FindStringSubmatch(key)[1]
		conds = append(conds, store.Cond{
			Key:   inner,
			Value: coerceFilterValue(model, inner, values.Get(key)),
		})
	}
	return conds
}

func coerceFilterValue(model *schema.Model, key, raw string) any {
	field, op := store.SplitKey(key)
	switch op {
	case store.OpIsNull:
		return raw == "1" || strings.EqualFold(raw, "true")
	case store.OpIn:
		parts := strings.Split(raw, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, coerceScalar(model, field, p))
		}
		return out
	}
	return coerceScalar(model, field, raw)
}

func coerceScalar(model *schema.Model, field, raw string) any {
	f, ok := model.Field(field)
	if !ok {
		if field == model.PKName {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return n
			}
		}
		return raw
	}
	switch f.Kind {
	case schema.KindInt, schema.KindRef:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case schema.KindFloat:
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			return x
		}
	case schema.KindBool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

// coerceJSONValue narrows JSON numbers to the column's kind so drivers see
// int64 for integer columns.
func coerceJSONValue(model *schema.Model, key string, v any) any {
	f, ok := model.Field(key)
	if !ok {
		return v
	}
	if n, isFloat := v.(float64); isFloat && n == math.Trunc(n) {
		if f.Kind == schema.KindInt || f.Kind == schema.KindRef {
			return int64(n)
		}
	}
	return v
}
