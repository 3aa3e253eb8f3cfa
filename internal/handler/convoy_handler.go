package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"convoyhub/internal/logger"
	"convoyhub/internal/middleware"
	"convoyhub/internal/models"
	"convoyhub/internal/service"
	"convoyhub/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConvoyHandler struct {
	svc               *service.ConvoyService
	notif             *service.NotificationService
	bus               ws.Bus
	log               *logger.Logger
	broadcastLocation bool
}

func NewConvoyHandler(svc *service.ConvoyService, notif *service.NotificationService, bus ws.Bus, log *logger.Logger, broadcastLocation bool) *ConvoyHandler {
	return &ConvoyHandler{
		svc:               svc,
		notif:             notif,
		bus:               bus,
		log:               log.With("handler", "convoy"),
		broadcastLocation: broadcastLocation,
	}
}

// LocationRequest is a single GPS fix. Heading is degrees, speed m/s and
// accuracy meters.
type LocationRequest struct {
	Lat      *float64 `json:"lat" binding:"required"`
	Lng      *float64 `json:"lng" binding:"required"`
	Heading  *float64 `json:"heading"`
	Speed    *float64 `json:"speed"`
	Accuracy *float64 `json:"accuracy"`
}

func (r *LocationRequest) input() service.LocationInput {
	return service.LocationInput{Lat: *r.Lat, Lng: *r.Lng, Heading: r.Heading, Speed: r.Speed, Accuracy: r.Accuracy}
}

type CreateConvoyRequest struct {
	Title         *string          `json:"title"`
	Description   *string          `json:"description"`
	Visibility    string           `json:"visibility"`
	MaxMembers    *int             `json:"max_members"`
	Route         *models.Route    `json:"route"`
	InitialCenter *LocationRequest `json:"initial_center"`
}

type UpdateConvoyRequest struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Visibility  *string       `json:"visibility"`
	MaxMembers  *int          `json:"max_members"`
	Route       *models.Route `json:"route"`
	ClearRoute  bool          `json:"clear_route"`
}

type JoinRequest struct {
	ConvoyID string `json:"convoy_id"`
	JoinCode string `json:"join_code"`
}

type InviteRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

type nearbyItem struct {
	Convoy     *models.Convoy `json:"convoy"`
	DistanceKm float64        `json:"distance_km"`
	Proximity  string         `json:"proximity"`
}

func convoyIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid convoy id")
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func (h *ConvoyHandler) publish(ctx context.Context, typ string, convoyID uuid.UUID, userID uint, data interface{}) {
	ev, err := ws.NewEvent(typ, convoyID, userID, data)
	if err == nil {
		err = h.bus.Publish(ctx, ev)
	}
	if err != nil {
		h.log.Warn("event publish failed", "type", typ, "convoy_id", convoyID, "error", err)
	}
}

// membershipChanged records notifications and fans the change out to the room.
func (h *ConvoyHandler) membershipChanged(ctx context.Context, m *service.MembershipChange, actorID uint, eventType string) {
	if m == nil || !m.Changed {
		return
	}
	h.notif.MembershipChanged(ctx, m, actorID, eventType == ws.EventMemberJoined)
	h.publish(ctx, eventType, m.Convoy.ID, m.UserID, gin.H{
		"owner_id":     m.Convoy.OwnerID,
		"member_count": len(m.Convoy.Members),
	})
	if m.OwnerChanged() {
		h.publish(ctx, ws.EventOwnerChanged, m.Convoy.ID, m.Convoy.OwnerID, gin.H{"previous_owner_id": m.PreviousOwner})
	}
}

func (h *ConvoyHandler) Create(c *gin.Context) {
	var req CreateConvoyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	in := service.CreateConvoyInput{
		OwnerID:     middleware.GetUserID(c),
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
		MaxMembers:  req.MaxMembers,
		Route:       req.Route,
	}
	if req.InitialCenter != nil {
		loc := req.InitialCenter.input()
		in.InitialCenter = &loc
	}
	convoy, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"convoy": convoy})
}

func (h *ConvoyHandler) Get(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	convoy, err := h.svc.Get(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"convoy": convoy})
}

// ListMine returns the caller's convoys.
func (h *ConvoyHandler) ListMine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	list, err := h.svc.ListForUser(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"convoys": list})
}

func (h *ConvoyHandler) Members(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	members, err := h.svc.Members(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// Join handles POST /convoys/join with a convoy id, a join code or both.
func (h *ConvoyHandler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	in := service.JoinInput{JoinCode: req.JoinCode, UserID: middleware.GetUserID(c)}
	if req.ConvoyID != "" {
		id, err := uuid.Parse(req.ConvoyID)
		if err != nil {
			badRequest(c, "invalid convoy id")
			return
		}
		in.ConvoyID = &id
	}
	h.join(c, in)
}

// JoinByID handles POST /convoys/:id/join; the body may carry a join code.
func (h *ConvoyHandler) JoinByID(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	var req JoinRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.join(c, service.JoinInput{ConvoyID: &id, JoinCode: req.JoinCode, UserID: middleware.GetUserID(c)})
}

func (h *ConvoyHandler) join(c *gin.Context, in service.JoinInput) {
	ctx := c.Request.Context()
	m, err := h.svc.Join(ctx, in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.membershipChanged(ctx, m, in.UserID, ws.EventMemberJoined)
	c.JSON(http.StatusOK, gin.H{"convoy": m.Convoy})
}

func (h *ConvoyHandler) Leave(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	m, err := h.svc.Leave(ctx, id, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.membershipChanged(ctx, m, userID, ws.EventMemberLeft)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ended": m.Convoy.IsOrphaned()})
}

// Invite lets the owner add a user directly.
func (h *ConvoyHandler) Invite(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	ownerID := middleware.GetUserID(c)
	m, err := h.svc.Invite(ctx, id, ownerID, req.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.membershipChanged(ctx, m, ownerID, ws.EventMemberJoined)
	status := http.StatusCreated
	if !m.Changed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"convoy": m.Convoy})
}

func (h *ConvoyHandler) Kick(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	target, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || target == 0 {
		badRequest(c, "invalid user id")
		return
	}
	ctx := c.Request.Context()
	ownerID := middleware.GetUserID(c)
	m, err := h.svc.Kick(ctx, id, ownerID, uint(target))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.membershipChanged(ctx, m, ownerID, ws.EventMemberRemoved)
	c.JSON(http.StatusOK, gin.H{"convoy": m.Convoy})
}

func (h *ConvoyHandler) Start(c *gin.Context) {
	h.lifecycle(c, h.svc.Start, ws.EventStarted)
}

func (h *ConvoyHandler) End(c *gin.Context) {
	h.lifecycle(c, h.svc.End, ws.EventEnded)
}

func (h *ConvoyHandler) lifecycle(c *gin.Context, op func(context.Context, uuid.UUID, uint) (*models.Convoy, bool, error), eventType string) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	convoy, changed, err := op(ctx, id, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if changed {
		h.notif.LifecycleChanged(ctx, convoy, userID)
		h.publish(ctx, eventType, convoy.ID, userID, convoy)
	}
	c.JSON(http.StatusOK, gin.H{"convoy": convoy, "changed": changed})
}

// UpdateLocation replaces the convoy center with the caller's fix.
func (h *ConvoyHandler) UpdateLocation(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	center, err := h.svc.UpdateLocation(ctx, id, userID, req.input())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if h.broadcastLocation {
		h.publish(ctx, ws.EventLocation, id, userID, center)
	}
	c.JSON(http.StatusOK, gin.H{"current_center": center})
}

// Nearby lists live convoys around lat/lng.
func (h *ConvoyHandler) Nearby(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		badRequest(c, "lat is required")
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		badRequest(c, "lng is required")
		return
	}
	q := service.NearbyQuery{Lat: lat, Lng: lng, RequesterID: middleware.GetUserID(c)}
	if v := c.Query("radius_km"); v != "" {
		if q.RadiusKm, err = strconv.ParseFloat(v, 64); err != nil {
			badRequest(c, "invalid radius_km")
			return
		}
	}
	if v := c.Query("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			badRequest(c, "invalid limit")
			return
		}
	}
	if v := c.Query("exact"); v != "" {
		if q.Exact, err = strconv.ParseBool(v); err != nil {
			badRequest(c, "invalid exact")
			return
		}
	}
	results, err := h.svc.FindNearby(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	items := make([]nearbyItem, 0, len(results))
	for _, r := range results {
		items = append(items, nearbyItem{Convoy: r.Convoy, DistanceKm: r.DistanceKm, Proximity: r.Proximity})
	}
	c.JSON(http.StatusOK, gin.H{"convoys": items})
}

func (h *ConvoyHandler) FindByCode(c *gin.Context) {
	convoy, err := h.svc.FindByJoinCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"convoy": convoy})
}

func (h *ConvoyHandler) Update(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	var req UpdateConvoyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	convoy, err := h.svc.Update(ctx, id, userID, service.UpdateConvoyInput{
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
		MaxMembers:  req.MaxMembers,
		Route:       req.Route,
		ClearRoute:  req.ClearRoute,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.publish(ctx, ws.EventUpdated, convoy.ID, userID, convoy)
	c.JSON(http.StatusOK, gin.H{"convoy": convoy})
}

func (h *ConvoyHandler) RegenerateJoinCode(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	convoy, err := h.svc.RegenerateJoinCode(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"join_code": convoy.JoinCode})
}

func (h *ConvoyHandler) Delete(c *gin.Context) {
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	convoy, err := h.svc.Delete(ctx, id, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.publish(ctx, ws.EventDeleted, convoy.ID, userID, nil)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
