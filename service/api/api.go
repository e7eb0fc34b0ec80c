package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ankit-kumarpr/lastchat/logger"
	"github.com/ankit-kumarpr/lastchat/middleware/security"
	"github.com/ankit-kumarpr/lastchat/module/chat/message"
	chatmodel "github.com/ankit-kumarpr/lastchat/module/chat/model"
	"github.com/ankit-kumarpr/lastchat/service/relay"
	"github.com/ankit-kumarpr/lastchat/tools/ids"
	jwtlib "github.com/ankit-kumarpr/lastchat/tools/security"
)

// API is the request/response collaborator surface around the relay: token
// minting, rooms, history and the global presence query. Everything here is
// stateless plumbing over the store and the gateway's registries.
type API struct {
	Gateway *relay.Gateway
	Store   *message.Store
	JWT     jwtlib.Options

	HistoryPageMax int64
}

func (a *API) Register(r *gin.Engine) {
	r.POST("/api/auth/login", a.Login)

	authed := r.Group("/api", security.Middleware(a.JWT))
	authed.GET("/users/online", a.OnlineUsers)
	authed.POST("/rooms", a.CreateRoom)
	authed.GET("/rooms", a.ListRooms)
	authed.GET("/chats/history", a.History)
}

type loginRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// Login mints a token for the given user id. Credential verification lives
// with the external auth collaborator; this route is the token source for
// the ws identify path and the REST routes.
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "userId is required"})
		return
	}
	token, exp, err := jwtlib.Generate(a.JWT, strings.TrimSpace(req.UserID))
	if err != nil {
		logger.Errorf("[api] token mint failed user=%s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "token mint failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expireAt": exp.UnixMilli()})
}

func (a *API) OnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": a.Gateway.Presence().Snapshot()})
}

type createRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

func (a *API) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "name is required"})
		return
	}
	room := chatmodel.Room{
		RoomID:    ids.GenerateString(),
		Name:      strings.TrimSpace(req.Name),
		CreatorID: security.UserID(c),
	}
	if err := a.Store.CreateRoom(c.Request.Context(), room); err != nil {
		logger.Errorf("[api] create room failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "create room failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": room.RoomID})
}

func (a *API) ListRooms(c *gin.Context) {
	rooms, err := a.Store.ListRooms(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] list rooms failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "list rooms failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// History serves the read path of the persistence gateway. It is independent
// of live join state: a user can always page a conversation it has access
// to, joined or not.
func (a *API) History(c *gin.Context) {
	var ch relay.ChannelID
	switch {
	case c.Query("roomId") != "":
		ch = relay.GroupChannel(c.Query("roomId"))
	case c.Query("peerUserId") != "":
		ch = relay.DirectChannel(security.UserID(c), c.Query("peerUserId"))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"msg": "roomId or peerUserId is required"})
		return
	}

	beforeSeq, _ := strconv.ParseInt(c.Query("beforeSeq"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if a.HistoryPageMax > 0 && limit > a.HistoryPageMax {
		limit = a.HistoryPageMax
	}

	msgs, err := a.Store.History(c.Request.Context(), ch, beforeSeq, limit)
	if err != nil {
		logger.Errorf("[api] history failed channel=%s: %v", ch, err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "history fetch failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
