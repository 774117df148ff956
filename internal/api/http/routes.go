package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/apalacios/aemet-opendata/internal/aemet"
	"github.com/apalacios/aemet-opendata/internal/catalog"
	"github.com/apalacios/aemet-opendata/internal/geo"
	"github.com/apalacios/aemet-opendata/internal/store"
	"github.com/apalacios/aemet-opendata/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		query, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshot, err := service.GetSnapshot(c.Context(), query)
		if err != nil {
			return mapServiceError(err, "failed to assemble weather snapshot")
		}

		return c.JSON(snapshot)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshots, err := service.GetRange(req.Key, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no snapshot history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch snapshot history")
		}

		return c.JSON(fiber.Map{
			"key":       req.Key,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})

	v1.Get("/towns/:id", func(c *fiber.Ctx) error {
		town, err := service.Town(c.Params("id"))
		if err != nil {
			return mapServiceError(err, "failed to look up town")
		}
		return c.JSON(town)
	})

	v1.Get("/stations/:id", func(c *fiber.Ctx) error {
		station, err := service.Station(c.Params("id"))
		if err != nil {
			return mapServiceError(err, "failed to look up station")
		}
		return c.JSON(station)
	})

	v1.Post("/catalog/refresh", func(c *fiber.Ctx) error {
		res, err := service.LoadCatalog(c.Context())
		if err != nil {
			return mapServiceError(err, "catalog refresh failed")
		}
		return c.JSON(fiber.Map{
			"towns":    res.Towns,
			"stations": res.Stations,
			"skipped":  len(res.Skipped),
		})
	})
}

// mapServiceError translates domain errors into HTTP statuses.
func mapServiceError(err error, fallback string) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrInvalidQuery),
		errors.Is(err, geo.ErrInvalidCoordinate):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrEmptyCatalog):
		return fiber.NewError(fiber.StatusServiceUnavailable, "catalog not loaded yet")
	case errors.Is(err, aemet.ErrAuth):
		return fiber.NewError(fiber.StatusBadGateway, "upstream rejected the api key")
	case errors.Is(err, aemet.ErrTooManyRequests):
		return fiber.NewError(fiber.StatusBadGateway, "upstream rate limit exceeded")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, fallback)
	}
}

// locationQuery holds the query parameters identifying a location: either a
// town id or a lat/lon pair.
type locationQuery struct {
	TownID string
	Lat    string
	Lon    string
}

func parseLocationQuery(c *fiber.Ctx) (weather.Query, error) {
	q := locationQuery{
		TownID: c.Query("town"),
		Lat:    c.Query("lat"),
		Lon:    c.Query("lon"),
	}

	if q.TownID != "" {
		return weather.Query{TownID: q.TownID}, nil
	}
	if q.Lat == "" || q.Lon == "" {
		return weather.Query{}, errors.New("either town or lat and lon query parameters are required")
	}

	lat, err := strconv.ParseFloat(q.Lat, 64)
	if err != nil {
		return weather.Query{}, errors.New("lat must be a decimal degree value")
	}
	lon, err := strconv.ParseFloat(q.Lon, 64)
	if err != nil {
		return weather.Query{}, errors.New("lon must be a decimal degree value")
	}

	return weather.Query{Coordinate: &geo.Point{Latitude: lat, Longitude: lon}}, nil
}

// historyQuery holds query parameters for the history endpoint. Key is the
// store key of a resolved location, e.g. "town:28065".
type historyQuery struct {
	Key  string    `validate:"required"`
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.Key = c.Query("key")

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
