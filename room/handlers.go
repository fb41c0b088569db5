package room

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	dbconf "github.com/kthomas/go-db-config"
	provide "github.com/provideplatform/provide-go/common"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

// InstallAPI registers the room API handlers with gin
func InstallAPI(r *gin.Engine) {
	r.POST("/api/v1/rooms", createRoomHandler)
	r.GET("/api/v1/rooms/:roomId", roomDetailsHandler)
	r.POST("/api/v1/rooms/:roomId/players", joinRoomHandler)
	r.GET("/api/v1/rooms/:roomId/state", roomStateHandler)
	r.POST("/api/v1/rooms/:roomId/moves", createMoveHandler)
}

func createRoomHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	room := &Room{}
	err = json.Unmarshal(buf, room)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	if room.Create(dbconf.DatabaseConnection()) {
		provide.Render(room, 201, c)
	} else {
		obj := map[string]interface{}{}
		obj["errors"] = room.Errors
		provide.Render(obj, 422, c)
	}
}

// fetch the room's immutable rules descriptor
func roomDetailsHandler(c *gin.Context) {
	room := Resolve(dbconf.DatabaseConnection(), c.Param("roomId"))
	if room == nil {
		provide.RenderError("room not found", 404, c)
		return
	}

	provide.Render(room.Descriptor(), 200, c)
}

func joinRoomHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := map[string]string{}
	err = json.Unmarshal(buf, &params)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	address := params["address"]
	if address == "" {
		provide.RenderError("address required", 422, c)
		return
	}

	db := dbconf.DatabaseConnection()

	room := Resolve(db, c.Param("roomId"))
	if room == nil {
		provide.RenderError("room not found", 404, c)
		return
	}

	err = room.Join(db, address)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	provide.Render(room, 201, c)
}

// StateResponse is the authoritative snapshot consumed by resyncing clients
type StateResponse struct {
	Session *session.Record `json:"session"`
	Moves   []*Move         `json:"moves"`
}

// fetch the authoritative session record and full ordered move log; a fresh
// match legitimately has an empty move list
func roomStateHandler(c *gin.Context) {
	roomID := c.Param("roomId")
	player := c.Query("player")

	db := dbconf.DatabaseConnection()

	room := Resolve(db, roomID)
	if room == nil {
		provide.RenderError("room not found", 404, c)
		return
	}

	var record *session.Record
	if player != "" {
		candidate := &session.Record{}
		db.Where("room_id = ? AND player_address = ?", roomID, player).Order("expires_at DESC").First(&candidate)
		if candidate.Token != nil {
			record = candidate
		}
	}

	provide.Render(&StateResponse{
		Session: record,
		Moves:   Moves(db, roomID),
	}, 200, c)
}

func createMoveHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	payload := &moveRequest{}
	err = json.Unmarshal(buf, payload)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	db := dbconf.DatabaseConnection()

	room := Resolve(db, c.Param("roomId"))
	if room == nil {
		provide.RenderError("room not found", 404, c)
		return
	}

	move := payload.Move
	if move == nil {
		provide.RenderError("move required", 422, c)
		return
	}
	move.RoomID = room.RoomID

	signal, err := SubmitMove(db, room, move, bearerToken(c), payload.StateHash)
	if signal != common.ConflictNone {
		provide.Render(map[string]interface{}{
			"conflict": signal.String(),
		}, 409, c)
		return
	}
	if err != nil {
		common.Log.Warningf("failed to submit move for room %s; %s", *room.RoomID, err.Error())
		provide.RenderError("internal persistence error", 500, c)
		return
	}

	provide.Render(move, 201, c)
}

type moveRequest struct {
	Move      *Move   `json:"move"`
	StateHash *string `json:"state_hash,omitempty"`
}

// bearerToken extracts the opaque session credential from the authorization header
func bearerToken(c *gin.Context) string {
	authorization := c.GetHeader("authorization")
	if authorization == "" {
		authorization = c.GetHeader("Authorization")
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(authorization, "bearer"), "Bearer"))
}
