package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/bartek5186/barsync/internal/costing"
	"github.com/bartek5186/barsync/internal/importer"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type handler struct {
	log     zerolog.Logger
	svc     *importer.Service
	watcher Watcher
}

func errorBody(code, msg string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": msg}}
}

// writeError mapuje błędy potoku na kody HTTP.
func (h *handler) writeError(c *gin.Context, err error) {
	var (
		ie *importer.InputError
		ee *importer.ExtractionError
		se *backend.StatusError
	)
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.As(err, &ie):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.As(err, &ee):
		status, code = http.StatusUnprocessableEntity, "extraction_failed"
	case errors.Is(err, importer.ErrSessionNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, importer.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_state"
	case errors.As(err, &se):
		status, code = http.StatusBadGateway, "backend_error"
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errorBody(code, err.Error()))
}

func (h *handler) health(c *gin.Context) {
	out := gin.H{"status": "ok", "extraction": h.svc.SupportsExtraction()}
	if h.watcher != nil {
		out["watch"] = h.watcher.IsRunning()
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) template(c *gin.Context) {
	kind, err := importer.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_kind", err.Error()))
		return
	}
	s, _ := importer.SchemaFor(kind)

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	if format == "json" {
		c.JSON(http.StatusOK, gin.H{
			"kind":        kind,
			"header":      s.TemplateHeader,
			"rows":        s.TemplateRows,
			"json_schema": importer.JSONSchema(s),
		})
		return
	}
	data, mime, name, err := importer.Template(s, importer.TemplateFormat(format))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_format", err.Error()))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, mime, data)
}

type importRequest struct {
	Kind     string `json:"kind" form:"kind"`
	Text     string `json:"text" form:"text"`
	Charset  string `json:"charset" form:"charset"`
	Operator string `json:"operator" form:"operator"`
	Extract  bool   `json:"extract" form:"extract"`
}

// createImport: multipart "file", formularz "text" albo JSON {"text": ...};
// rodzaj z ?kind= albo z pola "kind"
func (h *handler) createImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", err.Error()))
		return
	}
	if q := c.Query("kind"); q != "" {
		req.Kind = q
	}
	kind, err := importer.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_kind", err.Error()))
		return
	}
	in := importer.Input{Text: req.Text, Charset: req.Charset, ForceExtract: req.Extract}
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_request", err.Error()))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_request", err.Error()))
			return
		}
		in.Name, in.Data, in.Text = fh.Filename, data, ""
	}

	operator := req.Operator
	if operator == "" {
		operator = c.GetHeader("X-Operator")
	}
	sess, err := h.svc.NewSession(kind, importer.Env{Operator: operator})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if _, err := sess.Preview(c.Request.Context(), in); err != nil {
		_ = h.svc.Store().Delete(sess.ID)
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, previewResponse(sess.Snapshot()))
}

// previewResponse - widok sesji bez pełnej listy wierszy, ze zmianami cen przyciętymi do wyświetlenia
func previewResponse(v importer.View) gin.H {
	out := gin.H{
		"id":       v.ID,
		"kind":     v.Kind,
		"state":    v.State,
		"source":   v.Source,
		"report":   v.Report,
		"summary":  v.Summary,
		"operator": v.Operator,
	}
	if v.Summary != nil {
		out["price_changes_shown"] = v.Summary.TopPriceChanges(importer.DisplayLimit)
	}
	return out
}

func (h *handler) listImports(c *gin.Context) {
	views := h.svc.Store().List()
	out := make([]gin.H, 0, len(views))
	for _, v := range views {
		out = append(out, gin.H{"id": v.ID, "kind": v.Kind, "state": v.State, "source": v.Source, "created_at": v.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"imports": out})
}

func (h *handler) getImport(c *gin.Context) {
	sess, err := h.svc.Store().Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

type confirmRequest struct {
	SkipRows []int `json:"skip_rows"`
}

func (h *handler) confirmImport(c *gin.Context) {
	sess, err := h.svc.Store().Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	var req confirmRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_request", err.Error()))
			return
		}
	}

	plan, err := sess.Confirm(req.SkipRows)
	if err != nil {
		h.writeError(c, err)
		return
	}
	res, err := sess.Write(c.Request.Context())
	if err != nil && res == nil {
		h.writeError(c, err)
		return
	}
	out := gin.H{
		"id":      sess.ID,
		"state":   sess.State(),
		"creates": len(plan.Creates),
		"updates": len(plan.Updates),
		"skipped": plan.Skipped,
		"result":  res,
	}
	if err != nil {
		out["error"] = errorBody("write_failed", err.Error())["error"]
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) deleteImport(c *gin.Context) {
	if err := h.svc.Store().Delete(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) history(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	recent, err := h.svc.History().Recent(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": recent})
}

func (h *handler) historyDetails(c *gin.Context) {
	id := c.Param("id")
	fails, err := h.svc.History().Failures(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	dups, err := h.svc.History().Duplicates(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "failures": fails, "duplicates": dups})
}

type costRequest struct {
	Recipes []costing.Recipe `json:"recipes" binding:"required"`
}

func (h *handler) costRecipes(c *gin.Context) {
	var req costRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", err.Error()))
		return
	}
	existing, err := h.svc.Existing(c.Request.Context(), importer.KindIngredient)
	if err != nil {
		h.writeError(c, err)
		return
	}
	book := costing.NewBook(costing.FromExisting(existing))
	c.JSON(http.StatusOK, costing.CostMenu(req.Recipes, book))
}
