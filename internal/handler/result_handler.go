package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/placement-api/internal/domain/repository"
	"github.com/yourusername/placement-api/internal/handler/dto"
	"github.com/yourusername/placement-api/internal/handler/helper"
	"github.com/yourusername/placement-api/internal/service"
)

// ResultHandler обрабатывает запросы результатов и статистики
type ResultHandler struct {
	resultService *service.ResultService
}

// NewResultHandler создает новый обработчик результатов
func NewResultHandler(resultService *service.ResultService) *ResultHandler {
	return &ResultHandler{
		resultService: resultService,
	}
}

// GetMyResults возвращает результаты текущего студента с пагинацией
func (h *ResultHandler) GetMyResults(c *gin.Context) {
	userID, _, _ := currentUser(c)
	page, pageSize := helper.ParsePagination(c.Query("page"), c.Query("page_size"))

	results, total, err := h.resultService.GetUserResults(userID, page, pageSize)
	if err != nil {
		handleError(c, "ResultHandler.GetMyResults", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResultResponse(results, total, page, pageSize))
}

// GetMyStats возвращает сводку по результатам текущего студента
func (h *ResultHandler) GetMyStats(c *gin.Context) {
	userID, _, _ := currentUser(c)

	stats, err := h.resultService.GetStudentStats(userID)
	if err != nil {
		handleError(c, "ResultHandler.GetMyStats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetResult возвращает детальный результат (владельцу или сотруднику)
func (h *ResultHandler) GetResult(c *gin.Context) {
	resultID := c.MustGet("resultID").(uint)
	userID, _, isStaff := currentUser(c)

	result, err := h.resultService.GetResult(resultID, userID, isStaff)
	if err != nil {
		handleError(c, "ResultHandler.GetResult", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewResultResponse(result, true))
}

// GetResultsByUsername возвращает результаты пользователя (самому пользователю или сотруднику)
func (h *ResultHandler) GetResultsByUsername(c *gin.Context) {
	_, username, isStaff := currentUser(c)

	results, err := h.resultService.GetResultsByUsername(c.Param("username"), username, isStaff)
	if err != nil {
		handleError(c, "ResultHandler.GetResultsByUsername", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": dto.NewListResultResponse(results)})
}

// ListResults возвращает все результаты с фильтрами (для сотрудников)
func (h *ResultHandler) ListResults(c *gin.Context) {
	filters, err := parseResultFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	page, pageSize := helper.ParsePagination(c.Query("page"), c.Query("page_size"))

	results, total, err := h.resultService.ListResults(filters, page, pageSize)
	if err != nil {
		handleError(c, "ResultHandler.ListResults", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResultResponse(results, total, page, pageSize))
}

// GetDashboard возвращает сводную статистику для панели сотрудника
func (h *ResultHandler) GetDashboard(c *gin.Context) {
	stats, err := h.resultService.GetDashboardStats()
	if err != nil {
		handleError(c, "ResultHandler.GetDashboard", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// parseResultFilters читает фильтры test_id, username, company, verdict, date_from, date_to.
// date_to включает весь указанный день.
func parseResultFilters(c *gin.Context) (repository.ResultFilters, error) {
	filters := repository.ResultFilters{
		Username: strings.TrimSpace(c.Query("username")),
		Company:  strings.TrimSpace(c.Query("company")),
		Verdict:  strings.ToLower(strings.TrimSpace(c.Query("verdict"))),
	}

	if raw := strings.TrimSpace(c.Query("test_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return filters, errors.New("invalid test_id")
		}
		filters.TestID = uint(id)
	}

	from, err := helper.ParseDate(c.Query("date_from"))
	if err != nil {
		return filters, errors.New("invalid date_from, expected YYYY-MM-DD")
	}
	to, err := helper.ParseDate(c.Query("date_to"))
	if err != nil {
		return filters, errors.New("invalid date_to, expected YYYY-MM-DD")
	}
	filters.DateFrom = from
	filters.DateTo = helper.EndOfDay(to)
	return filters, nil
}
