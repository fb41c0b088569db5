package seed

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	dbconf "github.com/kthomas/go-db-config"
	redisutil "github.com/kthomas/go-redisutil"
	provide "github.com/provideplatform/provide-go/common"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// InstallAPI registers the seed round API handlers with gin
func InstallAPI(r *gin.Engine) {
	r.GET("/api/v1/rooms/:roomId/seed", roundDetailsHandler)
	r.POST("/api/v1/rooms/:roomId/seed/commitments", createCommitmentHandler)
	r.POST("/api/v1/rooms/:roomId/seed/reveals", createRevealHandler)
}

// fetch the current round; secrets are never serialized, commitments and the
// final seed hash are public by design
func roundDetailsHandler(c *gin.Context) {
	roomID := c.Param("roomId")

	round := CurrentRound(dbconf.DatabaseConnection(), roomID)
	if round == nil {
		provide.RenderError("no seed round for room", 404, c)
		return
	}

	provide.Render(round, 200, c)
}

func createCommitmentHandler(c *gin.Context) {
	roomID := c.Param("roomId")

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
	commitment := params["commitment"]
	if address == "" || commitment == "" {
		provide.RenderError("address and commitment required", 422, c)
		return
	}

	db := dbconf.DatabaseConnection()

	round := CurrentRound(db, roomID)
	if round == nil {
		provide.RenderError("no seed round for room", 404, c)
		return
	}

	// re-resolve under the lock; a concurrent commit may have landed since the
	// read above and the closing transition must observe it
	err = redisutil.WithRedlock(round.lockKey(), func() error {
		round = RoundByID(db, round.ID.String())
		if round == nil {
			return fmt.Errorf("failed to resolve seed round for room %s", roomID)
		}
		return round.AddCommitment(db, address, commitment)
	})
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	provide.Render(round, 201, c)
}

func createRevealHandler(c *gin.Context) {
	roomID := c.Param("roomId")

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
	secret := params["secret"]
	if address == "" || secret == "" {
		provide.RenderError("address and secret required", 422, c)
		return
	}

	db := dbconf.DatabaseConnection()

	round := CurrentRound(db, roomID)
	if round == nil {
		provide.RenderError("no seed round for room", 404, c)
		return
	}

	// the last reveal finalizes; re-resolve under the lock so the transition
	// sees every previously persisted reveal
	err = redisutil.WithRedlock(round.lockKey(), func() error {
		round = RoundByID(db, round.ID.String())
		if round == nil {
			return fmt.Errorf("failed to resolve seed round for room %s", roomID)
		}
		return round.AddReveal(db, address, secret)
	})
	if err != nil {
		common.Log.Debugf("seed reveal rejected for room %s; %s", roomID, err.Error())
		provide.RenderError(err.Error(), 422, c)
		return
	}

	provide.Render(round, 201, c)
}
