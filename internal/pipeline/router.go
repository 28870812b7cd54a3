package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/rules"
)

// ActionHandler reacts to a matched action for a message. Handlers are
// responsible for their own errors: a handler error is logged but never
// aborts the batch.
type ActionHandler func(ctx context.Context, msg message.Message, matched []rules.AlertRule) error

// Router maintains the ActionType -> handler mapping and fans a message's
// matched rules out to every registered handler concurrently.
type Router struct {
	handlers map[rules.ActionType]ActionHandler
	logger   *slog.Logger
}

// NewRouter returns a Router with no handlers registered; Register adds
// them.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{handlers: map[rules.ActionType]ActionHandler{}, logger: logger}
}

// Register binds handler to action, replacing any prior handler.
func (r *Router) Register(action rules.ActionType, handler ActionHandler) {
	r.handlers[action] = handler
}

// Route groups matched rules by requested action and invokes every
// registered handler concurrently, waiting for all to finish. If
// matching is empty, Route returns immediately (false): the message still
// proceeds to the buffer, since routing never gates persistence on its
// own. Discard reports whether a DISCARD handler ran, signaling the
// caller to drop the message from persistence.
func (r *Router) Route(ctx context.Context, msg message.Message, matched []rules.AlertRule) (discard bool) {
	if len(matched) == 0 {
		return false
	}

	byAction := map[rules.ActionType][]rules.AlertRule{}
	for _, rule := range matched {
		for _, action := range rule.Actions {
			byAction[action] = append(byAction[action], rule)
		}
	}

	var wg sync.WaitGroup
	for action, ruleList := range byAction {
		handler, ok := r.handlers[action]
		if !ok {
			continue
		}
		if action == rules.ActionDiscard {
			discard = true
		}
		wg.Add(1)
		go func(action rules.ActionType, handler ActionHandler, ruleList []rules.AlertRule) {
			defer wg.Done()
			if err := handler(ctx, msg, ruleList); err != nil {
				r.logger.Error("router: handler failed", "action", action, "error", err)
			}
		}(action, handler, ruleList)
	}
	wg.Wait()

	return discard
}
