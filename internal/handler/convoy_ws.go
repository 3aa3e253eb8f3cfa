package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"convoyhub/config"
	"convoyhub/internal/auth"
	"convoyhub/internal/domain"
	"convoyhub/internal/logger"
	"convoyhub/internal/service"
	"convoyhub/internal/ws"

	"github.com/gin-gonic/gin"
)

const wsCallTimeout = 5 * time.Second

// ConvoyWSHandler serves the live room of a convoy. Members receive room
// events and may push location fixes over the socket.
type ConvoyWSHandler struct {
	cfg               *config.JWTConfig
	svc               *service.ConvoyService
	hub               *ws.Hub
	bus               ws.Bus
	log               *logger.Logger
	broadcastLocation bool
}

func NewConvoyWSHandler(cfg *config.JWTConfig, svc *service.ConvoyService, hub *ws.Hub, bus ws.Bus, log *logger.Logger, broadcastLocation bool) *ConvoyWSHandler {
	return &ConvoyWSHandler{
		cfg:               cfg,
		svc:               svc,
		hub:               hub,
		bus:               bus,
		log:               log.With("handler", "convoy_ws"),
		broadcastLocation: broadcastLocation,
	}
}

// clientMessage is what a member sends; only "location" is understood.
type clientMessage struct {
	Type     string   `json:"type"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Heading  *float64 `json:"heading"`
	Speed    *float64 `json:"speed"`
	Accuracy *float64 `json:"accuracy"`
}

// Serve authenticates with ?token= (browsers cannot set headers on upgrade)
// or a bearer header, then joins the caller to the room.
func (h *ConvoyWSHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	claims, err := auth.ParseAccessToken(h.cfg, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	id, ok := convoyIDParam(c)
	if !ok {
		return
	}
	convoy, err := h.svc.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if !convoy.IsMember(claims.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this convoy", "code": domain.Code(domain.ErrNotMember)})
		return
	}

	conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "convoy_id", id, "error", err)
		return
	}
	client := ws.NewClient(claims.UserID, id)
	h.hub.Register(client)
	if ev, err := ws.NewEvent(ws.EventSnapshot, id, claims.UserID, convoy); err == nil {
		_ = client.SendEvent(ev)
	}

	go ws.WritePump(client, conn)
	ws.ReadPump(conn, func(raw []byte) {
		h.handleMessage(client, raw)
	})
	client.Close()
	_ = conn.Close()
}

func (h *ConvoyWSHandler) handleMessage(client *ws.Client, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(client, domain.ErrValidation, "malformed message")
		return
	}
	if msg.Type != ws.EventLocation {
		h.reply(client, domain.ErrValidation, "unsupported message type")
		return
	}
	if msg.Lat == nil || msg.Lng == nil {
		h.reply(client, domain.ErrValidation, "lat and lng are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCallTimeout)
	defer cancel()
	center, err := h.svc.UpdateLocation(ctx, client.ConvoyID, client.UserID, service.LocationInput{
		Lat:      *msg.Lat,
		Lng:      *msg.Lng,
		Heading:  msg.Heading,
		Speed:    msg.Speed,
		Accuracy: msg.Accuracy,
	})
	if err != nil {
		h.reply(client, err, err.Error())
		return
	}
	if !h.broadcastLocation {
		return
	}
	ev, err := ws.NewEvent(ws.EventLocation, client.ConvoyID, client.UserID, center)
	if err == nil {
		err = h.bus.Publish(ctx, ev)
	}
	if err != nil {
		h.log.Warn("location publish failed", "convoy_id", client.ConvoyID, "error", err)
	}
}

func (h *ConvoyWSHandler) reply(client *ws.Client, kind error, msg string) {
	ev, err := ws.NewEvent(ws.EventError, client.ConvoyID, client.UserID, gin.H{"error": msg, "code": domain.Code(kind)})
	if err != nil {
		return
	}
	_ = client.SendEvent(ev)
}
