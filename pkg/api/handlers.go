package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/wayfarian/groupjourney/pkg/models"
	"github.com/wayfarian/groupjourney/pkg/services"
)

// startGroupJourneyRequest is the body of POST /group-journey/start.
type startGroupJourneyRequest struct {
	GroupID      string  `json:"groupId"`
	Title        string  `json:"title"`
	Description  *string `json:"description"`
	EndLatitude  float64 `json:"endLatitude"`
	EndLongitude float64 `json:"endLongitude"`
}

func (s *Server) startGroupJourneyHandler(c *echo.Context) error {
	var req startGroupJourneyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "InvalidInput", Message: "malformed request body"})
	}

	journey, members, err := s.lifecycle.StartGroupJourney(c.Request().Context(), authFromContext(c), services.StartGroupJourneyParams{
		GroupID:      req.GroupID,
		Title:        req.Title,
		Description:  req.Description,
		EndLatitude:  req.EndLatitude,
		EndLongitude: req.EndLongitude,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"journey": journey, "members": members})
}

// startMyInstanceRequest is the body of POST /group-journey/{journeyId}/start-my-instance.
type startMyInstanceRequest struct {
	StartLatitude  float64 `json:"startLatitude"`
	StartLongitude float64 `json:"startLongitude"`
	StartAddress   *string `json:"startAddress"`
	Force          bool    `json:"force"`
}

func (s *Server) startMyInstanceHandler(c *echo.Context) error {
	var req startMyInstanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "InvalidInput", Message: "malformed request body"})
	}

	instance, err := s.lifecycle.StartMyInstance(c.Request().Context(), authFromContext(c), services.StartMyInstanceParams{
		JourneyID:      c.PathParam("journeyId"),
		StartLatitude:  req.StartLatitude,
		StartLongitude: req.StartLongitude,
		StartAddress:   req.StartAddress,
		Force:          req.Force,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, instance)
}

func (s *Server) getGroupJourneyHandler(c *echo.Context) error {
	journey, err := s.lifecycle.GetGroupJourney(c.Request().Context(), authFromContext(c), c.PathParam("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, journey)
}

func (s *Server) getMyInstanceHandler(c *echo.Context) error {
	instance, err := s.lifecycle.GetMyInstance(c.Request().Context(), authFromContext(c), c.PathParam("journeyId"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, instance)
}

func (s *Server) getActiveForGroupHandler(c *echo.Context) error {
	journey, err := s.lifecycle.GetActiveForGroup(c.Request().Context(), authFromContext(c), c.PathParam("groupId"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, journey)
}

func (s *Server) getSummaryHandler(c *echo.Context) error {
	summary, err := s.lifecycle.GetGroupJourneySummary(c.Request().Context(), authFromContext(c), c.PathParam("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// updateLocationRequest is the body of POST /group-journey/instance/{id}/location.
type updateLocationRequest struct {
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
	DistanceDeltaKm float64         `json:"distanceDeltaKm"`
	SpeedKmh        float64         `json:"speedKmh"`
	RoutePoint      *routePointBody `json:"routePoint"`
}

type routePointBody struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading"`
}

// updateLocationHandler ingests one location sample (spec §4.4). Throttling
// happens here, ahead of the pipeline call: an excess frame is dropped
// silently with a 200, never reaching LocationPipeline, so it can never
// advance statistics (spec §4.3).
func (s *Server) updateLocationHandler(c *echo.Context) error {
	instanceID := c.PathParam("id")
	if !s.locationThrottle.Allow(instanceID) {
		return c.JSON(http.StatusOK, map[string]interface{}{"throttled": true})
	}

	var req updateLocationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "InvalidInput", Message: "malformed request body"})
	}

	params := servicesLocationParams(instanceID, req)
	result, err := s.pipeline.UpdateLocation(c.Request().Context(), authFromContext(c), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func servicesLocationParams(instanceID string, req updateLocationRequest) services.UpdateLocationParams {
	p := services.UpdateLocationParams{
		InstanceID:      instanceID,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		DistanceDeltaKm: req.DistanceDeltaKm,
		SpeedKmh:        req.SpeedKmh,
	}
	if req.RoutePoint != nil {
		p.RoutePoint = &models.RoutePoint{
			Latitude:  req.RoutePoint.Latitude,
			Longitude: req.RoutePoint.Longitude,
			Timestamp: time.Now(),
			Heading:   req.RoutePoint.Heading,
		}
	}
	return p
}

func (s *Server) pauseInstanceHandler(c *echo.Context) error {
	instance, err := s.lifecycle.PauseInstance(c.Request().Context(), authFromContext(c), c.PathParam("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, instance)
}

func (s *Server) resumeInstanceHandler(c *echo.Context) error {
	instance, err := s.lifecycle.ResumeInstance(c.Request().Context(), authFromContext(c), c.PathParam("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, instance)
}

// completeInstanceRequest is the body of POST /group-journey/instance/{id}/complete.
type completeInstanceRequest struct {
	EndLatitude  *float64 `json:"endLatitude"`
	EndLongitude *float64 `json:"endLongitude"`
}

func (s *Server) completeInstanceHandler(c *echo.Context) error {
	instanceID := c.PathParam("id")
	var req completeInstanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "InvalidInput", Message: "malformed request body"})
	}

	instance, err := s.lifecycle.CompleteInstance(c.Request().Context(), authFromContext(c), services.CompleteInstanceParams{
		InstanceID:   instanceID,
		EndLatitude:  req.EndLatitude,
		EndLongitude: req.EndLongitude,
	})
	if err != nil {
		return mapServiceError(err)
	}
	// Forget throttle state now that the instance is terminal (spec §4.3).
	s.locationThrottle.Forget(instanceID)
	return c.JSON(http.StatusOK, instance)
}

func (s *Server) getEventsHandler(c *echo.Context) error {
	since := c.QueryParam("since")
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	events, err := s.rideEvents.GetEvents(c.Request().Context(), authFromContext(c), c.PathParam("id"), since, limit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}

// postEventRequest is the body of POST /group-journey/{id}/events.
type postEventRequest struct {
	Type      string                 `json:"type"`
	Message   *string                `json:"message"`
	Latitude  *float64               `json:"latitude"`
	Longitude *float64               `json:"longitude"`
	MediaRef  *string                `json:"mediaRef"`
	Data      map[string]interface{} `json:"data"`
}

func (s *Server) postEventHandler(c *echo.Context) error {
	var req postEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "InvalidInput", Message: "malformed request body"})
	}

	event, err := s.rideEvents.PostEvent(c.Request().Context(), authFromContext(c), c.PathParam("id"), services.PostEventParams{
		Type:      req.Type,
		Message:   req.Message,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		MediaRef:  req.MediaRef,
		Data:      req.Data,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, event)
}
