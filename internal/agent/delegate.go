package agent

import (
	"context"
	"regexp"

	"github.com/robz323/alcancia-digital/pkg/logger"
)

// addressPattern matches a hex address revealed in a raw action's textual
// response (0x followed by 40 to 66 hex digits covers both EVM-style and
// Starknet field-element addresses).
var addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40,66}`)

// interception is the one-shot point between the raw action's response and
// this service's own output: it extracts the side effect (address promotion)
// and maps the downstream text into the wrapper's Result.
type interception struct {
	entityID    string
	wrapperName string
	promote     func(entityID, address string) error
	emit        Emit

	text  string
	fired bool
}

func (i *interception) callback(text string) {
	i.fired = true
	i.text = text

	// A raw action that reveals a canonical on-chain address promotes the
	// stored (possibly provisional) one.
	if match := addressPattern.FindString(text); match != "" {
		if err := i.promote(i.entityID, match); err != nil {
			logger.Warnf("[agent] address promotion failed for %s: %v", i.entityID, err)
		} else {
			logger.Debugf("[agent] promoted address for %s via %s", i.entityID, i.wrapperName)
		}
	}

	// Re-emit the response rebranded under the wrapper's own action name.
	i.emit(text)
}

func (i *interception) result() Result {
	return Result{
		Success: true,
		Text:    i.text,
		Data:    map[string]any{"action": i.wrapperName},
	}
}

// delegate forwards the request to a pre-existing raw action with the
// account's private key injected for exactly this one invocation. The key
// never appears in the returned Result.
func (s *Service) delegate(ctx context.Context, msg Message, rawName, wrapperName, feature string, emit Emit) Result {
	acc, ok, err := s.store.Get(msg.EntityID)
	if err != nil {
		logger.Errorf("[agent] delegation lookup failed for %s: %v", msg.EntityID, err)
		emit(textConfigError)
		return Result{Success: false, Text: textConfigError}
	}
	if !ok {
		return s.warnNoAccount(feature, msg, emit)
	}

	raw, found := s.raw.Lookup(rawName)
	if !found {
		logger.Warnf("[agent] raw action %q not registered", rawName)
		emit(textRawMissing)
		return Result{Success: false, Text: textRawMissing}
	}

	derived := msg
	derived.Action = rawName

	intercept := &interception{
		entityID:    acc.EntityID,
		wrapperName: wrapperName,
		promote:     s.store.SetAddress,
		emit:        emit,
	}

	opts := RawOptions{
		Starknet: &StarknetOptions{
			PrivateKeyHex: acc.PrivateKeyHex,
			AccountAlias:  acc.EntityID,
		},
	}

	if err := raw(ctx, derived, opts, intercept.callback); err != nil {
		logger.Warnf("[agent] raw action %q failed for %s: %v", rawName, msg.EntityID, err)
		emit(textRawMissing)
		return Result{Success: false, Text: textRawMissing}
	}
	if !intercept.fired {
		// The raw action completed without responding; report neutrally.
		return Result{Success: true, Data: map[string]any{"action": wrapperName}}
	}
	return intercept.result()
}
