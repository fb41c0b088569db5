package seed

import (
	"encoding/json"
	"fmt"

	natsutil "github.com/kthomas/go-natsutil"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

const natsSeedRevealOpenSuffix = "reveal.open"
const natsSeedFinalizedSuffix = "finalized"
const natsSeedVoidSuffix = "void"

// dispatchRoundNotification broadcasts a round lifecycle event to room peers
func dispatchRoundNotification(round *Round, suffix string) {
	if round.RoomID == nil {
		return
	}
	subject := fmt.Sprintf("match.seed.notification.%s.%s", *round.RoomID, suffix)
	payload, _ := json.Marshal(map[string]interface{}{
		"round_id":        round.ID.String(),
		"room_id":         *round.RoomID,
		"status":          round.Status,
		"final_seed_hash": round.FinalSeedHash,
	})
	_, err := natsutil.NatsJetstreamPublish(subject, payload)
	if err != nil {
		common.Log.Warningf("failed to dispatch seed round notification on subject: %s; %s", subject, err.Error())
	}
}
