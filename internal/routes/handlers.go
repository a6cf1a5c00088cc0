package routes

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const gpsTimeLayout = "2006-01-02 15:04:05"

// errorBody is the legacy failure sentinel: the upload endpoint always
// answers HTTP 200 and signals failure in the body.
const errorBody = "-1"

// RegisterUpdateRoute mounts the upload endpoint the agents post to.
func RegisterUpdateRoute(r fiber.Router, svc *Service) {
	r.Post("/update", func(c *fiber.Ctx) error {
		loc, ok := parseUpdate(c)
		if !ok {
			return c.SendString(errorBody)
		}
		if _, err := svc.SavePoint(c.Context(), loc); err != nil {
			return c.SendString(errorBody)
		}
		return c.SendString("0")
	})
}

// RegisterRoutes mounts the viewer API. Deleting a route needs a bearer
// token; everything else is open.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		summaries, err := svc.Routes(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"routes": summaries})
	})

	r.Get("/detail", func(c *fiber.Ctx) error {
		sessionID := c.Query("sessionid")
		if sessionID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "sessionid required")
		}
		points, err := svc.RouteForMap(c.Context(), sessionID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"locations": points})
	})

	r.Get("/all", func(c *fiber.Ctx) error {
		points, err := svc.AllRoutesLatest(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"locations": points})
	})

	r.Get("/latest", func(c *fiber.Ctx) error {
		sessionID := c.Query("sessionid")
		if sessionID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "sessionid required")
		}
		loc, found, err := svc.Latest(c.Context(), sessionID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !found {
			return fiber.NewError(fiber.StatusNotFound, "no cached position")
		}
		return c.JSON(loc)
	})

	r.Post("/delete", authMiddleware, func(c *fiber.Ctx) error {
		sessionID := c.Query("sessionid")
		if sessionID == "" {
			sessionID = c.FormValue("sessionid")
		}
		if sessionID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "sessionid required")
		}
		if err := svc.DeleteRoute(c.Context(), sessionID); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"deleted": sessionID})
	})
}

// parseUpdate reads the upload form. Agents have historically sent fields
// either as a form body or as query parameters, so both are accepted.
func parseUpdate(c *fiber.Ctx) (GPSLocation, bool) {
	get := func(key string) string {
		if v := c.FormValue(key); v != "" {
			return v
		}
		return c.Query(key)
	}

	lat, latErr := strconv.ParseFloat(get("latitude"), 64)
	lng, lngErr := strconv.ParseFloat(get("longitude"), 64)
	sessionID := get("sessionid")
	if latErr != nil || lngErr != nil || sessionID == "" {
		return GPSLocation{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return GPSLocation{}, false
	}

	gpsTime, err := time.Parse(gpsTimeLayout, get("date"))
	if err != nil {
		return GPSLocation{}, false
	}

	speed, _ := strconv.Atoi(get("speed"))
	direction, _ := strconv.Atoi(get("direction"))
	accuracy, _ := strconv.Atoi(get("accuracy"))
	distance, _ := strconv.ParseFloat(get("distance"), 64)

	return GPSLocation{
		Latitude:       lat,
		Longitude:      lng,
		SpeedMph:       speed,
		Direction:      direction,
		DistanceMiles:  distance,
		GPSTime:        gpsTime,
		LocationMethod: get("locationmethod"),
		UserName:       get("username"),
		PhoneNumber:    get("phonenumber"),
		SessionID:      sessionID,
		Accuracy:       accuracy,
		ExtraInfo:      get("extrainfo"),
		EventType:      get("eventtype"),
	}, true
}
