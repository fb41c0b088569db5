package seed

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dbconf "github.com/kthomas/go-db-config"
	natsutil "github.com/kthomas/go-natsutil"
	redisutil "github.com/kthomas/go-redisutil"
	uuid "github.com/kthomas/go.uuid"
	"github.com/nats-io/nats.go"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

const defaultNatsStream = "match"

const natsSeedCommitSubject = "match.seed.commit"
const seedCommitAckWait = time.Second * 30
const seedCommitMaxInFlight = 512
const seedCommitMaxDeliveries = 5

const natsSeedRevealSubject = "match.seed.reveal"
const seedRevealAckWait = time.Second * 30
const seedRevealMaxInFlight = 512
const seedRevealMaxDeliveries = 5

const natsSeedSweepSubject = "match.seed.sweep"
const seedSweepAckWait = time.Minute * 1
const seedSweepMaxInFlight = 32
const seedSweepMaxDeliveries = 5

func init() {
	if !common.ConsumeNATSStreamingSubscriptions {
		common.Log.Debug("seed package consumer configured to skip NATS streaming subscription setup")
		return
	}

	natsutil.EstablishSharedNatsConnection(nil)
	natsutil.NatsCreateStream(defaultNatsStream, []string{
		fmt.Sprintf("%s.>", defaultNatsStream),
	})

	var waitGroup sync.WaitGroup

	createNatsSeedCommitSubscriptions(&waitGroup)
	createNatsSeedRevealSubscriptions(&waitGroup)
	createNatsSeedSweepSubscriptions(&waitGroup)
}

func createNatsSeedCommitSubscriptions(wg *sync.WaitGroup) {
	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			seedCommitAckWait,
			natsSeedCommitSubject,
			natsSeedCommitSubject,
			natsSeedCommitSubject,
			consumeSeedCommitMsg,
			seedCommitAckWait,
			seedCommitMaxInFlight,
			seedCommitMaxDeliveries,
			nil,
		)
	}
}

func createNatsSeedRevealSubscriptions(wg *sync.WaitGroup) {
	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			seedRevealAckWait,
			natsSeedRevealSubject,
			natsSeedRevealSubject,
			natsSeedRevealSubject,
			consumeSeedRevealMsg,
			seedRevealAckWait,
			seedRevealMaxInFlight,
			seedRevealMaxDeliveries,
			nil,
		)
	}
}

func createNatsSeedSweepSubscriptions(wg *sync.WaitGroup) {
	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			seedSweepAckWait,
			natsSeedSweepSubject,
			natsSeedSweepSubject,
			natsSeedSweepSubject,
			consumeSeedSweepMsg,
			seedSweepAckWait,
			seedSweepMaxInFlight,
			seedSweepMaxDeliveries,
			nil,
		)
	}
}

func resolveRound(params map[string]interface{}) *Round {
	roundID, roundIDOk := params["round_id"].(string)
	if !roundIDOk {
		return nil
	}

	db := dbconf.DatabaseConnection()

	round := &Round{}
	db.Where("id = ?", roundID).Find(&round)
	if round == nil || round.ID == uuid.Nil {
		return nil
	}
	db.Where("round_id = ?", round.ID).Find(&round.Participants)
	return round
}

func consumeSeedCommitMsg(msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			common.Log.Warningf("recovered during seed commit message handling; %s", r)
			msg.Nak()
		}
	}()

	common.Log.Debugf("consuming %d-byte NATS seed commit message on subject: %s", len(msg.Data), msg.Subject)

	params := map[string]interface{}{}
	err := json.Unmarshal(msg.Data, &params)
	if err != nil {
		common.Log.Warningf("failed to unmarshal seed commit message; %s", err.Error())
		msg.Nak()
		return
	}

	round := resolveRound(params)
	if round == nil {
		common.Log.Warning("failed to resolve seed round during commit message handler")
		msg.Nak()
		return
	}

	address, addressOk := params["address"].(string)
	commitment, commitmentOk := params["commitment"].(string)
	if !addressOk || !commitmentOk {
		common.Log.Warning("failed to unmarshal address or commitment during seed commit handler")
		msg.Nak()
		return
	}

	// re-resolve under the lock; the commit-phase-closing transition must
	// observe every commitment persisted by concurrent handlers
	roundID := round.ID.String()
	err = redisutil.WithRedlock(round.lockKey(), func() error {
		db := dbconf.DatabaseConnection()
		fresh := RoundByID(db, roundID)
		if fresh == nil {
			return fmt.Errorf("failed to resolve seed round %s under lock", roundID)
		}
		return fresh.AddCommitment(db, address, commitment)
	})
	if err != nil {
		common.Log.Warningf("failed to record seed commitment for round %s; %s", roundID, err.Error())
		msg.Nak()
		return
	}

	msg.Ack()
}

func consumeSeedRevealMsg(msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			common.Log.Warningf("recovered during seed reveal message handling; %s", r)
			msg.Nak()
		}
	}()

	common.Log.Debugf("consuming %d-byte NATS seed reveal message on subject: %s", len(msg.Data), msg.Subject)

	params := map[string]interface{}{}
	err := json.Unmarshal(msg.Data, &params)
	if err != nil {
		common.Log.Warningf("failed to unmarshal seed reveal message; %s", err.Error())
		msg.Nak()
		return
	}

	round := resolveRound(params)
	if round == nil {
		common.Log.Warning("failed to resolve seed round during reveal message handler")
		msg.Nak()
		return
	}

	address, addressOk := params["address"].(string)
	secret, secretOk := params["secret"].(string)
	if !addressOk || !secretOk {
		common.Log.Warning("failed to unmarshal address or secret during seed reveal handler")
		msg.Nak()
		return
	}

	// the last reveal finalizes; re-resolve under the lock so the transition
	// sees every previously persisted reveal
	roundID := round.ID.String()
	err = redisutil.WithRedlock(round.lockKey(), func() error {
		db := dbconf.DatabaseConnection()
		fresh := RoundByID(db, roundID)
		if fresh == nil {
			return fmt.Errorf("failed to resolve seed round %s under lock", roundID)
		}
		return fresh.AddReveal(db, address, secret)
	})
	if err != nil {
		common.Log.Warningf("failed to record seed reveal for round %s; %s", roundID, err.Error())
		msg.Nak()
		return
	}

	msg.Ack()
}

// consumeSeedSweepMsg voids rounds whose reveal deadline lapsed without a
// full reveal set; the server owns reveal completeness and the timeout, so
// clients never re-derive either independently
func consumeSeedSweepMsg(msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			common.Log.Warningf("recovered during seed sweep; %s", r)
			msg.Nak()
		}
	}()

	db := dbconf.DatabaseConnection()

	candidates := make([]*Round, 0)
	db.Where("status = ? AND reveal_deadline < ?", roundStatusCommitted, time.Now()).Find(&candidates)

	for _, candidate := range candidates {
		roundID := candidate.ID.String()
		err := redisutil.WithRedlock(candidate.lockKey(), func() error {
			// re-check under the lock; the final reveal may have landed since
			// the candidate scan
			fresh := RoundByID(db, roundID)
			if fresh == nil || !fresh.Expired(time.Now()) {
				return nil
			}
			common.Log.Warningf("seed round %s lapsed without a full reveal set; voiding; %s", roundID, common.ErrRevealTimeout.Error())
			fresh.void(db)
			return nil
		})
		if err != nil {
			common.Log.Warningf("seed sweep failed for round %s; %s", roundID, err.Error())
			msg.Nak()
			return
		}
	}

	msg.Ack()
}
