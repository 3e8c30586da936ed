package handler

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/service"
)

var exportHeaders = []string{
	"Result ID", "Username", "Test", "Company", "Score", "Verdict",
	"Correct", "Total Questions", "Auto Submitted", "Started At", "Submitted At",
}

// ExportHandler выгружает результаты в CSV и Excel
type ExportHandler struct {
	resultService *service.ResultService
}

// NewExportHandler создает новый обработчик экспорта
func NewExportHandler(resultService *service.ResultService) *ExportHandler {
	return &ExportHandler{
		resultService: resultService,
	}
}

// ExportResults экспортирует результаты в CSV или Excel формате.
// Поддерживает те же фильтры, что и список результатов.
// GET /api/staff/results/export?format=csv|xlsx
func (h *ExportHandler) ExportResults(c *gin.Context) {
	filters, err := parseResultFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}

	results, err := h.resultService.ExportResults(filters)
	if err != nil {
		handleError(c, "ExportHandler.ExportResults", err)
		return
	}

	filename := fmt.Sprintf("results_%s", time.Now().Format("2006-01-02"))
	if filters.TestID != 0 {
		filename = fmt.Sprintf("test_%d_results_%s", filters.TestID, time.Now().Format("2006-01-02"))
	}
	log.Printf("[ExportHandler] Экспорт %d результатов в %s", len(results), format)

	switch format {
	case "xlsx":
		h.exportXLSX(c, results, filename)
	default:
		h.exportCSV(c, results, filename)
	}
}

// exportCSV экспортирует результаты в CSV с правильным экранированием спецсимволов
func (h *ExportHandler) exportCSV(c *gin.Context, results []entity.Result, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
	c.Status(http.StatusOK)

	// BOM для корректного отображения UTF-8 в Excel
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write(exportHeaders)
	for _, r := range results {
		writer.Write([]string{
			strconv.FormatUint(uint64(r.ID), 10),
			sanitizeForExcel(r.Username),
			sanitizeForExcel(r.TestName),
			sanitizeForExcel(r.Company),
			strconv.Itoa(r.Score),
			r.Verdict,
			strconv.Itoa(r.CorrectAnswers),
			strconv.Itoa(r.TotalQuestions),
			yesNo(r.AutoSubmitted),
			r.StartedAt.UTC().Format(time.RFC3339),
			r.SubmittedAt.UTC().Format(time.RFC3339),
		})
	}
}

// exportXLSX экспортирует результаты в Excel с использованием StreamWriter
func (h *ExportHandler) exportXLSX(c *gin.Context, results []entity.Result, filename string) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Results"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[ExportHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := make([]interface{}, len(exportHeaders))
	for i, name := range exportHeaders {
		headers[i] = name
	}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[ExportHandler] Ошибка записи заголовков: %v", err)
	}

	for i, r := range results {
		rowNum := i + 2 // 1 - заголовки
		row := []interface{}{
			r.ID,
			sanitizeForExcel(r.Username),
			sanitizeForExcel(r.TestName),
			sanitizeForExcel(r.Company),
			r.Score,
			r.Verdict,
			r.CorrectAnswers,
			r.TotalQuestions,
			yesNo(r.AutoSubmitted),
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			r.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := sw.SetRow(fmt.Sprintf("A%d", rowNum), row); err != nil {
			log.Printf("[ExportHandler] Ошибка записи строки %d: %v", rowNum, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[ExportHandler] Ошибка при Flush: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[ExportHandler] Ошибка записи Excel в response: %v", err)
	}
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
