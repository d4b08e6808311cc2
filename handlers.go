package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/utils"
	"github.com/mmdatafocus/glrecon_backend/workflow"
)

// respondError maps workflow errors to status codes. Anything unrecognized
// is a 500 and goes to the error log.
func respondError(c *gin.Context, err error) {
	var (
		inputErr    *models.InputError
		unavailable *models.StoreUnavailableError
	)
	switch {
	case errors.As(err, &inputErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": inputErr.Error(), "field": inputErr.Field})
	case errors.Is(err, models.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, models.ErrReviewPending),
		errors.Is(err, models.ErrBatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &unavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable, try again"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// actor resolves the session user against the access table. The table, not
// the token, is authoritative for role and scope.
func (a *App) actor(c *gin.Context) models.Actor {
	username, _ := utils.GetUsernameFromContext(c.Request.Context())
	username = strings.ToLower(strings.TrimSpace(username))
	return models.Actor{
		Username: username,
		Role:     a.Access.RoleFor(username),
		Scope:    a.Access.ScopeFor(username),
	}
}

// readyHandler pings the document store. The readiness gate has already
// answered 503 if the service is not built yet.
func (a *App) readyHandler(c *gin.Context) {
	if err := a.Service().Store.Ping(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) listRecordsHandler(c *gin.Context) {
	recs, err := a.Service().ListRecords(c.Request.Context(), a.actor(c), workflow.RecordQuery{
		Status:      c.Query("status"),
		Country:     c.Query("country"),
		ReviewGroup: c.Query("reviewGroup"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs})
}

func (a *App) getRecordHandler(c *gin.Context) {
	detail, err := a.Service().GetRecord(c.Request.Context(), a.actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (a *App) createRecordHandler(c *gin.Context) {
	var req workflow.NewRecord
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rec, err := a.Service().CreateRecord(c.Request.Context(), a.actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": rec})
}

func (a *App) deleteRecordHandler(c *gin.Context) {
	if err := a.Service().DeleteRecord(c.Request.Context(), a.actor(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) setCompletionHandler(c *gin.Context) {
	var req workflow.CompletionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rec, err := a.Service().SetCompletion(c.Request.Context(), a.actor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (a *App) setReviewHandler(c *gin.Context) {
	var req workflow.ReviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rec, err := a.Service().SetReview(c.Request.Context(), a.actor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (a *App) listCommentsHandler(c *gin.Context) {
	comments, err := a.Service().ListComments(c.Request.Context(), a.actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": comments})
}

func (a *App) addCommentHandler(c *gin.Context) {
	var req models.NewComment
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	comment, err := a.Service().AddComment(c.Request.Context(), a.actor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": comment})
}

func (a *App) listAttachmentsHandler(c *gin.Context) {
	atts, err := a.Service().ListAttachments(c.Request.Context(), a.actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": atts})
}

func (a *App) getPolicyHandler(c *gin.Context) {
	if !a.actor(c).Role.IsAdmin() {
		respondError(c, models.ErrForbidden)
		return
	}
	p, err := a.Service().GetDeadlinePolicy(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	deadline, err := a.Service().CurrentDeadline(c.Request.Context(), a.Service().Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": p, "currentDeadline": deadline.Format(models.DateLayout)})
}

func (a *App) setPolicyHandler(c *gin.Context) {
	var req models.DeadlinePolicy
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	p, err := a.Service().SetDeadlinePolicy(c.Request.Context(), a.actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": p})
}

type sweepRequest struct {
	DryRun  bool   `json:"dryRun"`
	Confirm string `json:"confirm"`
}

func (a *App) recomputeHandler(c *gin.Context) {
	var req sweepRequest
	_ = c.ShouldBindJSON(&req)
	summary, err := a.Service().RecomputeAll(c.Request.Context(), a.actor(c), workflow.SweepOptions{DryRun: req.DryRun})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (a *App) resetHandler(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !req.DryRun && req.Confirm != "RESET" {
		c.JSON(http.StatusBadRequest, gin.H{"error": `reset requires {"confirm":"RESET"}`, "field": "confirm"})
		return
	}
	summary, err := a.Service().ResetAll(c.Request.Context(), a.actor(c), workflow.SweepOptions{DryRun: req.DryRun})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (a *App) uploadLogHandler(c *gin.Context) {
	entries, err := a.Service().ListUploadLog(c.Request.Context(), a.actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}
