package rules

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	dbconf "github.com/kthomas/go-db-config"
	provide "github.com/provideplatform/provide-go/common"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// InstallAPI registers the rules acceptance API handlers with gin
func InstallAPI(r *gin.Engine) {
	r.POST("/api/v1/rooms/:roomId/acceptances", createAcceptanceHandler)
}

// verify a signed acceptance and grant a bearer session
func createAcceptanceHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	req := &acceptanceRequest{}
	err = json.Unmarshal(buf, req)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	if req.Acceptance == nil || req.Rules == nil {
		provide.RenderError("acceptance and rules descriptor required", 422, c)
		return
	}

	roomID := c.Param("roomId")
	if req.Rules.RoomID != roomID {
		provide.RenderError("descriptor room id does not match request path", 422, c)
		return
	}

	db := dbconf.DatabaseConnection()

	record, err := VerifyAndGrant(db, req.Acceptance, req.Rules)
	if err != nil {
		if errors.Is(err, common.ErrVerificationRejected) {
			provide.RenderError("acceptance verification rejected", 422, c)
			return
		}
		common.Log.Warningf("failed to grant session for room %s; %s", roomID, err.Error())
		provide.RenderError("internal persistence error", 500, c)
		return
	}

	dispatchAcceptanceGranted(record)

	provide.Render(&acceptanceResponse{
		Success:      true,
		SessionToken: record.Token,
		ExpiresAt:    record.ExpiresAt,
		RulesHash:    record.RulesHash,
	}, 201, c)
}
