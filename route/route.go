// Package route implements send(envelope)'s path dispatch:
// resolve the first token of the remaining target, then either hand the
// envelope to a local handler directly or queue it on the owning thread.
package route

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/handle"
	"github.com/nestybox/eobjects-go/name"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/process"
)

// Handler delivers an envelope to a resolved target object on the
// current thread, matching the framework's on_message callback.
type Handler interface {
	OnMessage(target *object.Object, env *envelope.Envelope) error
}

// Context carries everything Send needs about the calling object: where
// it sits in its tree, which thread it runs on, and how to reach that
// thread's process-registered name for the reply-source augmentation.
type Context struct {
	Proc       *process.Process
	From       *object.Object
	Root       *object.RootHelper
	ThreadName string // this thread's own process-registered name
	Handler    Handler
}

// Send dispatches env by walking its target path one token at a time. It
// mutates env's path as it consumes target tokens and augments the source;
// callers that need the pre-dispatch envelope untouched should Clone first.
func Send(ctx *Context, env *envelope.Envelope) error {
	env.AugmentSource(ctx.ThreadName)

	tok, _ := env.Path.NextTarget()
	switch {
	case tok == "//":
		return sendProcess(ctx, env)
	case tok == "/":
		return sendThreadLocal(ctx, env)
	case strings.HasPrefix(tok, "@"):
		return sendByOix(ctx, env, tok)
	case tok == ".":
		return sendNamespace(ctx, env, name.ScopeThis)
	case tok == "..":
		return sendNamespace(ctx, env, name.ScopeParent)
	case tok == "":
		return deliverLocally(ctx, env, ctx.From)
	default:
		return sendNamedChild(ctx, env, tok)
	}
}

func failNoTarget(ctx *Context, env *envelope.Envelope) error {
	logrus.Debugf("route: target %q unresolved from thread %q", env.Path.Target(), ctx.ThreadName)
	reply := envelope.NoTargetReply(env)
	if reply == nil {
		return estatus.NotFound("target %q unresolved, no-reply set", env.Path.Target())
	}
	// Best-effort delivery of the NO_TARGET reply; a failure to route the
	// reply itself is not escalated further.
	reply.Flags |= envelope.NoReply
	_ = Send(ctx, reply)
	return estatus.NotFound("target %q unresolved", env.Path.Target())
}

func deliverLocally(ctx *Context, env *envelope.Envelope, target *object.Object) error {
	return ctx.Handler.OnMessage(target, env)
}

// sendProcess handles the leading "//" case: consume the two-slash token,
// then resolve the remaining head token against the process namespace. An
// empty remaining target after consuming it addresses the process object
// itself, which is not implemented.
func sendProcess(ctx *Context, env *envelope.Envelope) error {
	env.Path.MoveTargetOverObjname() // consume the "//" token just matched
	return sendViaNamespace(ctx, env, ctx.Proc.Namespace(), "process object addressing is not implemented")
}

// sendThreadLocal handles the leading single-"/" case: consume the token,
// then resolve the remaining head token against this thread's own
// namespace (the one attached at its tree root), distinct from the
// process-global namespace that a leading "//" addresses.
func sendThreadLocal(ctx *Context, env *envelope.Envelope) error {
	env.Path.MoveTargetOverObjname() // consume the "/" token just matched
	ns, err := name.Resolve(ctx.From, name.ScopeThread, "", ctx.Proc)
	if err != nil {
		return failNoTarget(ctx, env)
	}
	return sendViaNamespace(ctx, env, ns, "thread object addressing is not implemented")
}

// sendViaNamespace resolves the next target token in ns and fans the
// envelope out to every owner a matching name comparison yields. emptyMsg
// is returned when the target ends right after the scope token, since
// addressing the scope's root object itself is not implemented.
func sendViaNamespace(ctx *Context, env *envelope.Envelope, ns *name.Namespace, emptyMsg string) error {
	tok, _ := env.Path.NextTarget()
	if tok == "" {
		return estatus.NotFound(emptyMsg)
	}

	first := ns.Lookup(tok)
	if first == nil {
		return failNoTarget(ctx, env)
	}

	env.Path.MoveTargetOverObjname()

	// Fan out: every name in the namespace comparing equal to tok may
	// belong to a different owning thread; clone the envelope per
	// distinct destination.
	var firstErr error
	delivered := false
	for n := first; n != nil; n = n.Next(true) {
		dup := env
		if delivered {
			dup = env.Clone()
		}
		if err := deliverToOwner(ctx, dup, n.Owner); err != nil && firstErr == nil {
			firstErr = err
		}
		delivered = true
	}
	return firstErr
}

func deliverToOwner(ctx *Context, env *envelope.Envelope, target *object.Object) error {
	root := target.RootHelper()
	if root == ctx.Root {
		return deliverLocally(ctx, env, target)
	}
	return queueOnOwningThread(ctx, env, root, target)
}

// named is satisfied by *thread.Thread (package thread); route type-
// asserts against this interface rather than importing package thread
// directly, since thread depends on route.
type named interface {
	Name() string
}

func queueOnOwningThread(ctx *Context, env *envelope.Envelope, root *object.RootHelper, target *object.Object) error {
	owner, ok := root.Thread.(named)
	if !ok {
		return estatus.Unavailable("target object's tree has no owning thread registered")
	}
	threadName := owner.Name()
	t, ok := ctx.Proc.Thread(threadName)
	if !ok {
		return estatus.Unavailable("thread %q not registered", threadName)
	}
	logrus.Debugf("route: queuing envelope cmd=%d on thread %q", env.Command, threadName)
	return t.Queue(target, env, true)
}

func sendNamespace(ctx *Context, env *envelope.Envelope, scope name.Type) error {
	env.Path.MoveTargetOverObjname()
	tok, _ := env.Path.NextTarget()

	ns, err := name.Resolve(ctx.From, scope, "", ctx.Proc)
	if err != nil {
		return failNoTarget(ctx, env)
	}
	if tok == "" {
		return failNoTarget(ctx, env)
	}
	n := ns.Lookup(tok)
	if n == nil {
		return failNoTarget(ctx, env)
	}
	env.Path.MoveTargetOverObjname()
	return deliverToOwner(ctx, env, n.Owner)
}

func sendNamedChild(ctx *Context, env *envelope.Envelope, tok string) error {
	ns, err := name.Resolve(ctx.From, name.ScopeThis, "", ctx.Proc)
	if err != nil {
		return failNoTarget(ctx, env)
	}
	n := ns.Lookup(tok)
	if n == nil {
		return failNoTarget(ctx, env)
	}
	env.Path.MoveTargetOverObjname()
	return deliverToOwner(ctx, env, n.Owner)
}

func sendByOix(ctx *Context, env *envelope.Envelope, tok string) error {
	id, hasUcnt, ok := parseOixToken(tok)
	if !ok {
		return failNoTarget(ctx, env)
	}

	var h *handle.Handle
	var found bool
	if hasUcnt {
		h, found = ctx.Proc.Table().Get(id)
	} else {
		// Bare "@oix" with no "_ucnt" suffix: the grammar treats the
		// generation as optional, so any live object at oix matches
		// regardless of how many times it has been reallocated.
		h, found = ctx.Proc.Table().GetOix(id.Oix)
	}
	if !found {
		return failNoTarget(ctx, env)
	}
	target, ok := h.Owner.(*object.Object)
	if !ok {
		return failNoTarget(ctx, env)
	}

	env.Path.MoveTargetOverObjname()
	return deliverToOwner(ctx, env, target)
}

// parseOixToken parses "@<oix>" or "@<oix>_<ucnt>". hasUcnt reports
// whether a "_ucnt" suffix was present in tok; when it is absent, id.Ucnt
// is meaningless and callers must skip the generation check entirely
// rather than treat it as a request for generation 0.
func parseOixToken(tok string) (id handle.ID, hasUcnt bool, ok bool) {
	body := strings.TrimPrefix(tok, "@")
	parts := strings.SplitN(body, "_", 2)

	oix, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return handle.ID{}, false, false
	}

	if len(parts) == 2 {
		ucnt, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return handle.ID{}, false, false
		}
		return handle.ID{Oix: int32(oix), Ucnt: uint32(ucnt)}, true, true
	}
	return handle.ID{Oix: int32(oix)}, false, true
}

// FormatOixToken renders id as the "@oix_ucnt" form used for reply
// source augmentation and named-thread registration.
func FormatOixToken(id handle.ID) string {
	return "@" + strconv.FormatInt(int64(id.Oix), 10) + "_" + strconv.FormatInt(int64(id.Ucnt), 10)
}
