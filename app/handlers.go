package app

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"smartlock/utils"
)

func (l *Lock) deltaHandler() mqtt.MessageHandler {
	r := l.reconciler
	return func(_ mqtt.Client, msg mqtt.Message) {
		kind, thing, ok := utils.MatchShadowTopic(msg.Topic())
		if !ok {
			log.Error().Str("topic", msg.Topic()).Msg("Shadow topic match failed")
			return
		}
		if kind != utils.MessageUpdateDelta || thing != l.thing {
			log.Info().Str("topic", msg.Topic()).Stringer("type", kind).Msg("Other message type")
			return
		}
		r.OnDelta(msg.Payload())
	}
}

// responseHandler logs update/accepted and update/rejected. Client tokens
// are not matched against what was published.
func (l *Lock) responseHandler() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		kind, _, ok := utils.MatchShadowTopic(msg.Topic())
		if !ok {
			log.Error().Str("topic", msg.Topic()).Msg("Shadow topic match failed")
			return
		}
		payload := msg.Payload()
		token := utils.LookupString(payload, "clientToken")

		switch kind {
		case utils.MessageUpdateAccepted:
			log.Debug().Str("client_token", token).Str("version", utils.LookupString(payload, "version")).
				Msg("Shadow update accepted")
		case utils.MessageUpdateRejected:
			log.Warn().Str("client_token", token).
				Str("code", utils.LookupString(payload, "code")).
				Str("message", utils.LookupString(payload, "message")).
				Msg("Shadow update rejected")
		default:
			log.Info().Str("topic", msg.Topic()).Stringer("type", kind).Msg("Other message type")
		}
	}
}
