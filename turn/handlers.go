package turn

import (
	"time"

	"github.com/gin-gonic/gin"
	dbconf "github.com/kthomas/go-db-config"
	provide "github.com/provideplatform/provide-go/common"
)

// InstallAPI registers the turn API handlers with gin
func InstallAPI(r *gin.Engine) {
	r.GET("/api/v1/rooms/:roomId/turn", turnDetailsHandler)
	r.POST("/api/v1/rooms/:roomId/forfeits", createForfeitHandler)
}

// fetch the authoritative active turn; clients reset their local mirror from it
func turnDetailsHandler(c *gin.Context) {
	roomID := c.Param("roomId")

	record := CurrentTurn(dbconf.DatabaseConnection(), roomID)
	if record == nil {
		provide.RenderError("no active turn for room", 404, c)
		return
	}

	provide.Render(record, 200, c)
}

// validate an optimistic forfeit request against the server turn record
func createForfeitHandler(c *gin.Context) {
	roomID := c.Param("roomId")

	db := dbconf.DatabaseConnection()

	record := CurrentTurn(db, roomID)
	if record == nil {
		provide.RenderError("no active turn for room", 404, c)
		return
	}

	err := record.Forfeit(db, time.Now())
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	provide.Render(record, 201, c)
}
