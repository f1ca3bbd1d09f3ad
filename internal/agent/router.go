package agent

import (
	"context"
	"strings"

	"github.com/robz323/alcancia-digital/pkg/dedup"
	"github.com/robz323/alcancia-digital/pkg/logger"
)

// route pairs substring predicates with an operation name. First match wins.
type route struct {
	name     string
	keywords []string
}

// DefaultRoutes is the fixed priority order: create account, token creation,
// transfer, address query, balance query. Keywords are Spanish-first with
// English synonyms, matched against the lowercased text.
func defaultRoutes() []route {
	return []route{
		{OpCreateAccount, []string{"crear alcancía", "crear alcancia", "crear cuenta", "crear mi alcancía", "create account"}},
		{OpDeployToken, []string{"crear token", "lanzar token", "deploy token"}},
		{OpTransfer, []string{"transferir", "enviar", "transfer", "send"}},
		{OpGetAddress, []string{"dirección", "direccion", "address"}},
		{OpGetBalance, []string{"saldo", "balance"}},
	}
}

// Invoker runs a named operation under the single-execution guard.
type Invoker interface {
	Invoke(ctx context.Context, name string, msg Message, emit Emit) (Result, bool)
}

// KeywordRouter is an intentionally simple, state-free dispatcher over
// ordered pattern->operation pairs. It sits behind the Dispatcher interface
// so a smarter classifier can replace it later.
type KeywordRouter struct {
	routes   []route
	invoker  Invoker
	debounce *dedup.Guard
	source   string
}

// NewKeywordRouter builds the router. source filters inbound messages to the
// supported transport; messages from other sources are ignored.
func NewKeywordRouter(invoker Invoker, debounce *dedup.Guard, source string) *KeywordRouter {
	return &KeywordRouter{
		routes:   defaultRoutes(),
		invoker:  invoker,
		debounce: debounce,
		source:   source,
	}
}

// Dispatch routes one inbound message to at most one operation.
func (r *KeywordRouter) Dispatch(ctx context.Context, msg Message, emit Emit) (Result, bool) {
	if r.source != "" && msg.Source != "" && msg.Source != r.source {
		return Result{}, false
	}

	lowered := strings.ToLower(msg.Text)

	// Debounce transport redelivery of the same room/text pair.
	if !r.debounce.ShouldProceed(dedup.Key(msg.RoomID, lowered)) {
		logger.Debugf("[router] debounced: room=%s", msg.RoomID)
		return duplicateIgnored(), true
	}

	name, matched := r.match(lowered)
	if !matched {
		return Result{}, false
	}

	result, found := r.invoker.Invoke(ctx, name, msg, emit)
	if !found {
		// The operation registry is an optional collaborator.
		return Result{}, false
	}
	return result, true
}

func (r *KeywordRouter) match(lowered string) (string, bool) {
	for _, rt := range r.routes {
		for _, kw := range rt.keywords {
			if strings.Contains(lowered, kw) {
				return rt.name, true
			}
		}
	}
	return "", false
}
