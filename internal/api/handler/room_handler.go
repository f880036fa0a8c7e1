package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

// RoomHandler handles HTTP requests for room operations.
type RoomHandler struct {
	registry    ports.Registry
	roomService ports.RoomService
	pollService ports.PollService
}

func NewRoomHandler(registry ports.Registry, roomService ports.RoomService, pollService ports.PollService) *RoomHandler {
	return &RoomHandler{registry: registry, roomService: roomService, pollService: pollService}
}

type joinRoomRequest struct {
	Code string `json:"code" validate:"required"`
}

type joinRoomResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"room_id"`
	Name    string `json:"name"`
}

type linksData struct {
	Links []domain.Link `json:"links"`
}

type linksResponse struct {
	Success bool      `json:"success"`
	Data    linksData `json:"data"`
}

// Join adds the caller to the room identified by a join code.
//
// @Summary      Join a room by code
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      joinRoomRequest  true  "Join code"
// @Success      200   {object}  joinRoomResponse
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/rooms/join [post]
func (h *RoomHandler) Join(c echo.Context) error {
	var req joinRoomRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sess := sessionFromContext(c)
	room, err := h.registry.JoinByCode(c.Request().Context(), req.Code, sess)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": domain.ErrRoomNotFound.Error()})
		}
		return err
	}

	return c.JSON(http.StatusOK, joinRoomResponse{Success: true, RoomID: room.ID, Name: room.Name})
}

// Links returns the link list of a room the caller is a member of.
//
// @Summary      Get all links for a room
// @Tags         rooms
// @Produce      json
// @Security     BearerAuth
// @Param        id  path      string  true  "Room ID"
// @Success      200 {object}  linksResponse
// @Failure      403 {object}  map[string]string
// @Router       /api/v1/rooms/{id}/links [get]
func (h *RoomHandler) Links(c echo.Context) error {
	roomID := c.Param("id")
	if roomID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing room id"})
	}

	sess := sessionFromContext(c)
	links, err := h.roomService.Links(c.Request().Context(), sess, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "You are not a member of this classroom."})
		}
		return err
	}

	return c.JSON(http.StatusOK, linksResponse{Success: true, Data: linksData{Links: links}})
}

type pollResultsData struct {
	Results []domain.OptionTally `json:"results"`
}

type pollResultsResponse struct {
	Success bool            `json:"success"`
	Data    pollResultsData `json:"data"`
}

// PollResults returns the current tallies of the room's poll. Members only;
// closed polls keep their frozen results readable until deleted.
//
// @Summary      Get current poll results for a room
// @Tags         rooms
// @Produce      json
// @Security     BearerAuth
// @Param        id  path      string  true  "Room ID"
// @Success      200 {object}  pollResultsResponse
// @Failure      403 {object}  map[string]string
// @Failure      404 {object}  map[string]string
// @Router       /api/v1/rooms/{id}/poll [get]
func (h *RoomHandler) PollResults(c echo.Context) error {
	roomID := c.Param("id")
	if roomID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing room id"})
	}

	sess := sessionFromContext(c)
	room, ok := h.registry.Room(roomID)
	if !ok || !room.HasMemberID(sess.UserID) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "You are not a member of this classroom."})
	}

	tallies, err := h.pollService.Results(c.Request().Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrPollNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": domain.ErrPollNotFound.Error()})
		}
		return err
	}

	return c.JSON(http.StatusOK, pollResultsResponse{Success: true, Data: pollResultsData{Results: tallies}})
}

// sessionFromContext rebuilds the caller's session from the claims the Auth
// middleware injected.
func sessionFromContext(c echo.Context) domain.Session {
	userID, _ := c.Get("user_id").(string)
	email, _ := c.Get("email").(string)
	displayName, _ := c.Get("display_name").(string)
	return domain.Session{UserID: userID, Email: email, DisplayName: displayName}
}
