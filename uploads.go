package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/middlewares"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/utils"
	"github.com/sirupsen/logrus"
)

const maxImportSizeBytes int64 = 10 * 1024 * 1024

// importProducts accepts a multipart "file" (.csv or .xlsx) for one customer.
// Form fields: customer_id, encoding (csv only), sheet (xlsx only), continue_on_error, update_existing.
func (s *server) importProducts(c *gin.Context) {
	customerId, err := strconv.Atoi(strings.TrimSpace(c.PostForm("customer_id")))
	if err != nil || customerId <= 0 {
		badRequest(c, "customer_id is required")
		return
	}
	continueOnError, err := utils.ParseBool(c.PostForm("continue_on_error"))
	if err != nil {
		badRequest(c, "invalid continue_on_error")
		return
	}
	updateExisting, err := utils.ParseBool(c.PostForm("update_existing"))
	if err != nil {
		badRequest(c, "invalid update_existing")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if fileHeader.Size > maxImportSizeBytes {
		badRequest(c, "file too large")
		return
	}
	contentType, err := utils.ContentTypeForUpload(fileHeader.Filename)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "failed to read file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxImportSizeBytes+1))
	if err != nil {
		badRequest(c, "failed to read file")
		return
	}

	var rows []models.ProductImportRow
	if strings.EqualFold(filepath.Ext(fileHeader.Filename), ".xlsx") {
		rows, err = models.ReadProductRowsXlsx(bytes.NewReader(data), c.PostForm("sheet"))
	} else {
		rows, err = models.ReadProductRowsCSV(bytes.NewReader(data), c.PostForm("encoding"))
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := models.ImportProducts(c.Request.Context(), s.db, customerId, rows, models.ImportOptions{
		ContinueOnError: continueOnError,
		UpdateExisting:  updateExisting,
	}, s.policy)
	if err != nil {
		s.respondError(c, err)
		return
	}
	middlewares.ProductImportRowsTotal.WithLabelValues("ok").Add(float64(result.Succeeded))
	middlewares.ProductImportRowsTotal.WithLabelValues("failed").Add(float64(result.Failed))

	if utils.ArchiveEnabled() {
		objectName := importObjectName(customerId, fileHeader.Filename)
		go s.archiveImport(objectName, data, contentType)
	}

	s.log(c).WithFields(logrus.Fields{
		"customer_id": customerId,
		"file":        fileHeader.Filename,
		"rows":        len(rows),
		"succeeded":   result.Succeeded,
		"failed":      result.Failed,
	}).Info("product.import.done")

	status := http.StatusOK
	if result.Failed > 0 {
		status = http.StatusUnprocessableEntity
		if result.Succeeded > 0 {
			status = http.StatusMultiStatus
		}
	}
	c.JSON(status, result)
}

// archiveImport keeps the uploaded file for audit; failure only logs.
func (s *server) archiveImport(objectName string, data []byte, contentType string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := utils.UploadBytesToGCS(ctx, objectName, data, contentType); err != nil {
		config.LogError(s.logger, "uploads.go", "archiveImport", "UploadBytesToGCS", objectName, err)
	}
}

func importObjectName(customerId int, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("imports/products/%d/%s/%s%s", customerId, time.Now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
}
