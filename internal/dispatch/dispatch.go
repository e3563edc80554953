// Package dispatch implements the handler-registration and invocation
// core shared by the server and the client: a single command-name ->
// handler mapping, reserved-command schemas, threaded-handler isolation,
// and the blocking Recv primitive that cooperates with inbound dispatch.
package dispatch

import (
	"container/ring"
	"context"
	"sync"

	"github.com/nodegraph/wiresock/internal/typecast"
	"github.com/nodegraph/wiresock/internal/wsockerr"
	"github.com/nodegraph/wiresock/pkg/wirelog"
)

// Side selects which reserved-command schema and user-arity cap a Table
// enforces: the server and the client each see a different shape of
// handler parameters.
type Side int

const (
	SideServer Side = iota
	SideClient
)

// Role identifies one positional parameter a handler receives.
type Role int

const (
	RoleClientData Role = iota
	RoleCommand
	RoleOldValue
	RoleNewValue
	RoleMessage
)

// ParamSpec describes one handler parameter: which role it binds to and,
// for RoleMessage, the target type the wire payload is coerced to.
type ParamSpec struct {
	Role   Role
	Target typecast.Kind
	Typed  bool
}

// HandlerFunc is invoked with the arguments assembled per its ParamSpec
// list, in order.
type HandlerFunc func(args []typecast.Value) error

type handlerEntry struct {
	name     string
	fn       HandlerFunc
	params   []ParamSpec
	threaded bool
	reserved bool
}

var serverReserved = map[string][]Role{
	"join":         {RoleClientData},
	"leave":        {RoleClientData},
	"message":      {RoleClientData, RoleCommand, RoleMessage},
	"name_change":  {RoleClientData, RoleOldValue, RoleNewValue},
	"group_change": {RoleClientData, RoleOldValue, RoleNewValue},
	"*":            {RoleClientData, RoleCommand, RoleMessage},
}

var clientReserved = map[string][]Role{
	"client_connect":    {RoleClientData},
	"client_disconnect": {RoleClientData},
	"force_disconnect":  {},
}

func reservedSchemaFor(side Side) map[string][]Role {
	if side == SideServer {
		return serverReserved
	}
	return clientReserved
}

// allowedUserRoles returns the roles a user command handler may request,
// per side; its length is the side's maximum user arity:
// the server passes (client_data, message); the client passes (message)
// only, since it has no registry of its own connections to describe.
func allowedUserRoles(side Side) []Role {
	if side == SideServer {
		return []Role{RoleClientData, RoleMessage}
	}
	return []Role{RoleMessage}
}

// Context carries the values a single dispatch turn has available for
// building handler arguments. Fields irrelevant to the event in progress
// are left at their zero value.
type Context struct {
	ClientData typecast.Value
	OldValue   typecast.Value
	NewValue   typecast.Value
	Command    string
	Format     string
	Body       []byte
}

// MessageCacheEntry records one dispatched-or-not inbound message, per the
// bounded/unbounded/disabled ring policy.
type MessageCacheEntry struct {
	Header        []byte
	Content       []byte
	WasDispatched bool
	Command       string
}

// Table is the per-side (server or client) handler registry plus the
// waiter bookkeeping for Recv.
type Table struct {
	side Side

	mu       sync.RWMutex
	handlers map[string]*handlerEntry

	waitersMu        sync.Mutex
	waitersByCommand map[string][]*waiter
	catchall         []*waiter

	cacheMu     sync.Mutex
	cachePolicy int // <0 disabled, 0 unbounded, >0 bounded capacity
	cacheRing   *ring.Ring
	cacheList   []MessageCacheEntry
}

// New builds a Table for the given side. cachePolicy controls the message
// cache: negative disables caching, zero is unbounded, positive bounds
// the ring to that many entries.
func New(side Side, cachePolicy int) *Table {
	t := &Table{
		side:             side,
		handlers:         make(map[string]*handlerEntry),
		waitersByCommand: make(map[string][]*waiter),
		cachePolicy:      cachePolicy,
	}
	if cachePolicy > 0 {
		t.cacheRing = ring.New(cachePolicy)
	}
	return t
}

// Register files fn under command. If command names a reserved schema
// and override is false, the schema's own arity/roles are used, params is
// ignored, and threaded is honored. If override is true, or command
// is not reserved, fn is treated as a user command and params must stay
// within the side's user-argument role budget.
func (t *Table) Register(command string, fn HandlerFunc, params []ParamSpec, threaded bool, override bool) error {
	schema := reservedSchemaFor(t.side)

	t.mu.Lock()
	defer t.mu.Unlock()

	if roles, ok := schema[command]; ok && !override {
		entryParams := make([]ParamSpec, len(roles))
		for i, r := range roles {
			entryParams[i] = ParamSpec{Role: r}
		}
		t.handlers[command] = &handlerEntry{name: command, fn: fn, params: entryParams, threaded: threaded, reserved: true}
		return nil
	}

	allowed := allowedUserRoles(t.side)
	if len(params) > len(allowed) {
		return wsockerr.Newf(wsockerr.HandlerArity, "command %q: %d parameters exceeds the %d allowed on this side", command, len(params), len(allowed))
	}
	for _, p := range params {
		ok := false
		for _, a := range allowed {
			if p.Role == a {
				ok = true
				break
			}
		}
		if !ok {
			return wsockerr.Newf(wsockerr.HandlerArity, "command %q: parameter role %v is not permitted on this side", command, p.Role)
		}
	}

	t.handlers[command] = &handlerEntry{name: command, fn: fn, params: params, threaded: threaded, reserved: false}
	return nil
}

// Unregister removes a handler, reserved or otherwise.
func (t *Table) Unregister(command string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, command)
}

func (t *Table) lookup(command string) (*handlerEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.handlers[command]
	return e, ok
}

// Dispatch runs the four-step algorithm of the dispatch core against one
// inbound user command: handler lookup and invocation, else a pending
// Recv waiter, else (server only) the wildcard handler, else a NoHandler
// warning; finally, a cache append whose WasDispatched records whether
// any of those steps handled the message.
func (t *Table) Dispatch(ctx Context) {
	if entry, ok := t.lookup(ctx.Command); ok {
		t.invoke(entry, ctx)
		t.appendCache(ctx, true)
		return
	}

	if t.fulfillWaiter(ctx.Command, ctx.Format, ctx.Body) {
		t.appendCache(ctx, true)
		return
	}

	if t.side == SideServer {
		if wildcard, ok := t.lookup("*"); ok {
			t.invoke(wildcard, ctx)
			t.appendCache(ctx, true)
			return
		}
	}

	wirelog.Warn("dispatch: no handler or waiter for command %q", ctx.Command)
	t.appendCache(ctx, false)
}

// DispatchReservedHandler invokes the reserved handler named by command
// directly (join/leave/message/name_change/group_change/client_connect/
// client_disconnect/force_disconnect), bypassing the lookup/waiter/
// wildcard chain — reserved control events never fulfill Recv and are
// never subject to the wildcard handler.
func (t *Table) DispatchReservedHandler(command string, ctx Context) {
	entry, ok := t.lookup(command)
	if !ok {
		return
	}
	t.invoke(entry, ctx)
}

func (t *Table) invoke(entry *handlerEntry, ctx Context) {
	args, err := buildArgs(entry, ctx)
	if err != nil {
		wirelog.Error("dispatch: building arguments for %q: %v", entry.name, err)
		return
	}

	if entry.threaded {
		go runHandler(entry, args)
		return
	}
	runHandler(entry, args)
}

func runHandler(entry *handlerEntry, args []typecast.Value) {
	defer func() {
		if r := recover(); r != nil {
			wirelog.Error("dispatch: handler %q panicked: %v", entry.name, r)
		}
	}()
	if err := entry.fn(args); err != nil {
		wirelog.Error("dispatch: handler %q returned error: %v", entry.name, err)
	}
}

func buildArgs(entry *handlerEntry, ctx Context) ([]typecast.Value, error) {
	args := make([]typecast.Value, len(entry.params))
	for i, p := range entry.params {
		switch p.Role {
		case RoleClientData:
			args[i] = ctx.ClientData
		case RoleCommand:
			args[i] = typecast.NewString(ctx.Command)
		case RoleOldValue:
			args[i] = ctx.OldValue
		case RoleNewValue:
			args[i] = ctx.NewValue
		case RoleMessage:
			if p.Typed {
				v, err := typecast.Coerce(ctx.Body, ctx.Format, p.Target)
				if err != nil {
					return nil, err
				}
				args[i] = v
			} else {
				args[i] = typecast.NewBytes(ctx.Body)
			}
		}
	}
	return args, nil
}

func (t *Table) appendCache(ctx Context, dispatched bool) {
	if t.cachePolicy < 0 {
		return
	}
	entry := MessageCacheEntry{Content: ctx.Body, WasDispatched: dispatched, Command: ctx.Command}

	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	if t.cachePolicy == 0 {
		t.cacheList = append(t.cacheList, entry)
		return
	}
	t.cacheRing.Value = entry
	t.cacheRing = t.cacheRing.Next()
}

// Cache returns a snapshot of the currently retained message cache
// entries, oldest first.
func (t *Table) Cache() []MessageCacheEntry {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	if t.cachePolicy < 0 {
		return nil
	}
	if t.cachePolicy == 0 {
		out := make([]MessageCacheEntry, len(t.cacheList))
		copy(out, t.cacheList)
		return out
	}

	var out []MessageCacheEntry
	t.cacheRing.Do(func(v interface{}) {
		if v == nil {
			return
		}
		out = append(out, v.(MessageCacheEntry))
	})
	return out
}

// waiter is a PendingReceive: a blocking Recv call's installed hook into
// the dispatcher. Delivery order is FIFO per command (and FIFO among
// catch-all waiters), enforced by registerWaiter/fulfillWaiter always
// appending at the tail and popping from the head — no separate sequence
// number is needed to recover that order.
type waiter struct {
	command    string
	hasCommand bool
	ch         chan waiterDelivery
}

type waiterDelivery struct {
	format string
	body   []byte
}

// Recv blocks until a matching inbound command arrives (or ctx is done),
// then coerces the delivered payload to target. Passing context.Background
// blocks indefinitely; a ctx with a deadline gives callers an opt-in
// timeout.
func (t *Table) Recv(ctx context.Context, command string, target typecast.Kind) (typecast.Value, error) {
	w := &waiter{command: command, hasCommand: command != "", ch: make(chan waiterDelivery, 1)}
	t.registerWaiter(w)

	select {
	case d := <-w.ch:
		return typecast.Coerce(d.body, d.format, target)
	case <-ctx.Done():
		t.removeWaiter(w)
		return typecast.Value{}, ctx.Err()
	}
}

func (t *Table) registerWaiter(w *waiter) {
	t.waitersMu.Lock()
	defer t.waitersMu.Unlock()
	if w.hasCommand {
		t.waitersByCommand[w.command] = append(t.waitersByCommand[w.command], w)
		return
	}
	t.catchall = append(t.catchall, w)
}

func (t *Table) removeWaiter(w *waiter) {
	t.waitersMu.Lock()
	defer t.waitersMu.Unlock()
	if w.hasCommand {
		list := t.waitersByCommand[w.command]
		for i, candidate := range list {
			if candidate == w {
				t.waitersByCommand[w.command] = append(list[:i], list[i+1:]...)
				return
			}
		}
		return
	}
	for i, candidate := range t.catchall {
		if candidate == w {
			t.catchall = append(t.catchall[:i], t.catchall[i+1:]...)
			return
		}
	}
}

// fulfillWaiter delivers (format, body) to the oldest waiter registered
// for command, falling back to the oldest catch-all waiter. It reports
// whether a waiter was found and fulfilled.
func (t *Table) fulfillWaiter(command, format string, body []byte) bool {
	t.waitersMu.Lock()
	var w *waiter

	if list := t.waitersByCommand[command]; len(list) > 0 {
		w, t.waitersByCommand[command] = list[0], list[1:]
	} else if len(t.catchall) > 0 {
		w, t.catchall = t.catchall[0], t.catchall[1:]
	}
	t.waitersMu.Unlock()

	if w == nil {
		return false
	}
	w.ch <- waiterDelivery{format: format, body: body}
	return true
}
