package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/workflow"
	"github.com/sirupsen/logrus"
)

// readUpload pulls the "file" part of a multipart form, capped at limit bytes.
func readUpload(c *gin.Context, limit int64) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+(1<<20))
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, models.NewInputError("file", "file exceeds %d bytes", limit)
		}
		return "", nil, models.NewInputError("file", "multipart field \"file\" is required")
	}
	if fh.Size > limit {
		return "", nil, models.NewInputError("file", "file exceeds %d bytes", limit)
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return "", nil, models.NewInputError("file", "file exceeds %d bytes", limit)
	}
	return fh.Filename, data, nil
}

func (a *App) uploadAttachmentHandler(c *gin.Context) {
	name, data, err := readUpload(c, a.Settings.MaxUploadBytes)
	if err != nil {
		respondError(c, err)
		return
	}
	att, err := a.Service().AddAttachment(c.Request.Context(), a.actor(c), c.Param("id"), name, data)
	if err != nil {
		respondError(c, err)
		return
	}
	a.Logger.WithFields(logrus.Fields{
		"record_id":  c.Param("id"),
		"object_key": att.Path,
		"mime_type":  att.ContentType,
		"size":       att.Size,
	}).Info("[upload.attachment]")
	c.JSON(http.StatusCreated, gin.H{"data": att})
}

func (a *App) importRecordsHandler(c *gin.Context) {
	a.importHandler(c, a.Service().ImportRecords)
}

func (a *App) importMappingsHandler(c *gin.Context) {
	a.importHandler(c, a.Service().ImportMappings)
}

type importFunc func(ctx context.Context, actor models.Actor, src models.ImportSource, opts workflow.ImportOptions) (*models.ImportSummary, error)

func (a *App) importHandler(c *gin.Context, run importFunc) {
	if !a.actor(c).Role.IsAdmin() {
		respondError(c, models.ErrForbidden)
		return
	}
	name, data, err := readUpload(c, a.Settings.MaxUploadBytes)
	if err != nil {
		respondError(c, err)
		return
	}
	src := models.ImportSource{FileName: name, Data: data, Sheet: c.PostForm("sheet")}
	opts := workflow.ImportOptions{DryRun: c.PostForm("dryRun") == "true" || c.Query("dryRun") == "true"}
	summary, err := run(c.Request.Context(), a.actor(c), src, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}
