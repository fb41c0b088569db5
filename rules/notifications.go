package rules

import (
	"encoding/json"

	natsutil "github.com/kthomas/go-natsutil"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

const natsAcceptanceGrantedSubject = "match.acceptance.granted"

// dispatchAcceptanceGranted broadcasts a granted acceptance so room peers can
// begin accepting the player's moves
func dispatchAcceptanceGranted(record *session.Record) {
	payload, _ := json.Marshal(map[string]interface{}{
		"room_id":        record.RoomID,
		"player_address": record.PlayerAddress,
		"rules_hash":     record.RulesHash,
		"expires_at":     record.ExpiresAt,
	})
	_, err := natsutil.NatsJetstreamPublish(natsAcceptanceGrantedSubject, payload)
	if err != nil {
		common.Log.Warningf("failed to dispatch acceptance granted notification; %s", err.Error())
	}
}
