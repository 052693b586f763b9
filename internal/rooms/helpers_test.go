package rooms

import (
	"github.com/DoyleJ11/olympics-backend/internal/model"
	"github.com/DoyleJ11/olympics-backend/internal/store"
)

func storePatchCompleted(winner string) store.ChallengePatch {
	return store.ChallengePatch{Status: model.ChallengeCompleted, Winner: &winner}
}
