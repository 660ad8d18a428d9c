package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/frigate-speciesid/speciesid/internal/datastore"
	"github.com/frigate-speciesid/speciesid/internal/errors"
)

const (
	dateLayout         = "2006-01-02"
	defaultRecentLimit = 10
	maxRecentLimit     = 500
)

// initDetectionRoutes registers all detection-related API endpoints
func (c *Controller) initDetectionRoutes() {
	c.Group.GET("/detections/recent", c.GetRecentDetections)
	c.Group.GET("/detections/hourly", c.GetHourlyDetections)
	c.Group.GET("/detections/species", c.GetSpeciesDetections)
	c.Group.GET("/detections/earliest", c.GetEarliestDate)
	c.Group.GET("/summary/daily", c.GetDailySummary)
}

// DetectionResponse represents a detection in the API response
type DetectionResponse struct {
	ID             uint    `json:"id"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Timestamp      string  `json:"timestamp"`
	Camera         string  `json:"camera"`
	FrigateEvent   string  `json:"frigate_event"`
	Index          int     `json:"detection_index"`
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	CategoryName   string  `json:"category_name"`
	Score          float64 `json:"score"`
}

// SpeciesSummary is one row of the daily summary.
type SpeciesSummary struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	CategoryName   string  `json:"category_name"`
	Total          int     `json:"total"`
	Hourly         [24]int `json:"hourly"`
}

// DailySummaryResponse is the body of GET /summary/daily.
type DailySummaryResponse struct {
	Date    string           `json:"date"`
	Species []SpeciesSummary `json:"species"`
}

func (c *Controller) toResponse(ctx echo.Context, d *datastore.Detection) DetectionResponse {
	local := d.DetectionTime.In(c.location)
	return DetectionResponse{
		ID:             d.ID,
		Date:           local.Format(dateLayout),
		Time:           local.Format(time.TimeOnly),
		Timestamp:      d.DetectionTime.UTC().Format(time.RFC3339),
		Camera:         d.CameraName,
		FrigateEvent:   d.FrigateEvent,
		Index:          d.DetectionIndex,
		ScientificName: d.DisplayName,
		CommonName:     c.commonName(ctx.Request().Context(), d.DisplayName),
		CategoryName:   d.CategoryName,
		Score:          d.Score,
	}
}

func (c *Controller) toResponses(ctx echo.Context, rows []datastore.Detection) []DetectionResponse {
	out := make([]DetectionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, c.toResponse(ctx, &rows[i]))
	}
	return out
}

// parseDate reads the date query parameter, defaulting to today.
func (c *Controller) parseDate(ctx echo.Context) (time.Time, error) {
	raw := ctx.QueryParam("date")
	if raw == "" {
		now := time.Now().In(c.location)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.location), nil
	}
	date, err := time.ParseInLocation(dateLayout, raw, c.location)
	if err != nil {
		return time.Time{}, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Context("date", raw).
			Build()
	}
	return date, nil
}

// GetRecentDetections handles GET /detections/recent?limit=N
func (c *Controller) GetRecentDetections(ctx echo.Context) error {
	limit := defaultRecentLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentLimit {
			return c.HandleError(ctx, err, "limit must be between 1 and "+strconv.Itoa(maxRecentLimit), http.StatusBadRequest)
		}
		limit = n
	}

	rows, err := c.store.RecentDetections(ctx.Request().Context(), limit)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get recent detections")
	}
	return ctx.JSON(http.StatusOK, c.toResponses(ctx, rows))
}

// GetDailySummary handles GET /summary/daily?date=YYYY-MM-DD
func (c *Controller) GetDailySummary(ctx echo.Context) error {
	date, err := c.parseDate(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
	}

	rows, err := c.store.DailySummary(ctx.Request().Context(), date)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get daily summary")
	}

	resp := DailySummaryResponse{Date: date.Format(dateLayout), Species: make([]SpeciesSummary, 0, len(rows))}
	for i := range rows {
		resp.Species = append(resp.Species, SpeciesSummary{
			ScientificName: rows[i].DisplayName,
			CommonName:     c.commonName(ctx.Request().Context(), rows[i].DisplayName),
			CategoryName:   rows[i].CategoryName,
			Total:          rows[i].Total,
			Hourly:         rows[i].Hourly,
		})
	}
	return ctx.JSON(http.StatusOK, resp)
}

// GetHourlyDetections handles GET /detections/hourly?date=&hour=
func (c *Controller) GetHourlyDetections(ctx echo.Context) error {
	date, err := c.parseDate(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
	}
	hour, err := strconv.Atoi(ctx.QueryParam("hour"))
	if err != nil {
		return c.HandleError(ctx, err, "hour must be an integer between 0 and 23", http.StatusBadRequest)
	}

	rows, err := c.store.DetectionsForDateHour(ctx.Request().Context(), date, hour)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get hourly detections")
	}
	return ctx.JSON(http.StatusOK, c.toResponses(ctx, rows))
}

// GetSpeciesDetections handles GET /detections/species?name=&date=
func (c *Controller) GetSpeciesDetections(ctx echo.Context) error {
	name := ctx.QueryParam("name")
	if name == "" {
		return c.HandleError(ctx, nil, "name is required", http.StatusBadRequest)
	}
	date, err := c.parseDate(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
	}

	rows, err := c.store.DetectionsForNameAndDate(ctx.Request().Context(), name, date)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get species detections")
	}
	return ctx.JSON(http.StatusOK, c.toResponses(ctx, rows))
}

// GetEarliestDate handles GET /detections/earliest
func (c *Controller) GetEarliestDate(ctx echo.Context) error {
	earliest, err := c.store.EarliestDetectionDate(ctx.Request().Context())
	if err != nil {
		return c.handleStoreError(ctx, err, "No detections recorded")
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"date":      earliest.In(c.location).Format(dateLayout),
		"timestamp": earliest.UTC().Format(time.RFC3339),
	})
}
