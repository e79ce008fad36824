// Package binding exposes one resource type over the client action
// protocol and routes notifications for its mutations.
//
// A Binding owns an immutable action table, a permission chain, and a
// Repository that wraps every write with change capture and notification
// routing. A Demux selects the binding for each inbound frame by stream.
package binding

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/bindery/internal/auth"
	"github.com/roach88/bindery/internal/filter"
	"github.com/roach88/bindery/internal/group"
	"github.com/roach88/bindery/internal/hub"
	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/metrics"
	"github.com/roach88/bindery/internal/router"
	"github.com/roach88/bindery/internal/serializer"
	"github.com/roach88/bindery/internal/store"
)

// DefaultPageSize is the list page size when neither the resource nor the
// binding options set one.
const DefaultPageSize = 25

// Session is the connection a request arrived on and its user.
type Session struct {
	Conn hub.Conn
	User auth.User
}

// Membership is the group registry the binding subscribes connections in
// and sends notifications through. *hub.Hub satisfies it.
type Membership interface {
	router.Sender
	Join(ctx context.Context, group string, c hub.Conn)
	Leave(ctx context.Context, group string, c hub.Conn)
}

// Binding serves one resource type.
type Binding struct {
	spec       *ir.ResourceSpec
	store      *store.Store
	members    Membership
	table      *Table
	perms      Chain
	serializer *serializer.Serializer
	filter     *filter.Compiler
	repo       *Repository
	base       store.Condition
	pageSize   int
	ids        IDGenerator

	// Construction-only settings.
	interest    group.InterestFunc
	custom      []customAction
	defaults    Chain
	explicit    Chain
	hasExplicit bool
	validate    *validator.Validate
}

// Option configures a Binding.
type Option func(*Binding)

// WithPermissions sets the permission chain, overriding the resource's
// declared permissions.
func WithPermissions(chain Chain) Option {
	return func(b *Binding) {
		b.explicit = chain
		b.hasExplicit = true
	}
}

// WithDefaultPermissions sets the chain used when the resource declares
// none. Without this option the default is IsAdmin.
func WithDefaultPermissions(chain Chain) Option {
	return func(b *Binding) {
		b.defaults = chain
	}
}

// WithPageSize sets the list page size used when the resource declares none.
func WithPageSize(n int) Option {
	return func(b *Binding) {
		b.pageSize = n
	}
}

// WithBaseFilter restricts every lookup and list to entities matching cond.
// Entities outside it are reported as not found.
func WithBaseFilter(cond store.Condition) Option {
	return func(b *Binding) {
		b.base = cond
	}
}

// WithIDs sets the id generator for created entities.
func WithIDs(gen IDGenerator) Option {
	return func(b *Binding) {
		b.ids = gen
	}
}

// WithInterest sets the interest predicate, overriding the one derived
// from the resource's interested fields.
func WithInterest(fn group.InterestFunc) Option {
	return func(b *Binding) {
		b.interest = fn
	}
}

type customAction struct {
	action Action
	public bool
}

// WithAction registers a custom action next to the standard ones.
func WithAction(a Action) Option {
	return func(b *Binding) {
		b.custom = append(b.custom, customAction{action: a})
	}
}

// WithPublicAction registers a custom action that skips the permission
// chain. Unknown action names are still checked against the chain.
func WithPublicAction(a Action) Option {
	return func(b *Binding) {
		b.custom = append(b.custom, customAction{action: a, public: true})
	}
}

// WithValidator shares a validator between bindings.
func WithValidator(v *validator.Validate) Option {
	return func(b *Binding) {
		b.validate = v
	}
}

// New creates the binding for spec.
func New(spec *ir.ResourceSpec, st *store.Store, members Membership, opts ...Option) (*Binding, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	b := &Binding{
		spec:     spec,
		store:    st,
		members:  members,
		pageSize: DefaultPageSize,
		ids:      UUIDv7Generator{},
		defaults: Chain{IsAdmin{}},
	}
	for _, opt := range opts {
		opt(b)
	}
	if spec.PageSize > 0 {
		b.pageSize = spec.PageSize
	}
	if b.pageSize < 1 {
		return nil, fmt.Errorf("binding %s: page size must be positive, got %d", spec.Name, b.pageSize)
	}

	switch {
	case b.hasExplicit:
		b.perms = b.explicit
	case len(spec.Permissions) > 0:
		chain, err := ParseChain(spec.Permissions)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", spec.Name, err)
		}
		b.perms = chain
	default:
		b.perms = b.defaults
	}

	builder := NewBuilder()
	for _, a := range Capabilities(spec.ReadOnly) {
		builder.Add(a)
	}
	for _, c := range b.custom {
		if c.public {
			builder.AddPublic(c.action)
		} else {
			builder.Add(c.action)
		}
	}
	table, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", spec.Name, err)
	}
	b.table = table

	fc, err := filter.NewCompiler(spec)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", spec.Name, err)
	}
	b.filter = fc

	if b.interest == nil && len(spec.Interested) > 0 {
		b.interest = group.FieldInterest(spec.Interested)
	}
	b.serializer = serializer.New(spec, b.validate)
	r := router.New(spec.Name, spec.FieldNames(), group.NewResolver(spec.Name, b.interest), st, b.serializer, members)
	b.repo = NewRepository(spec.Name, st, r, b.base)

	return b, nil
}

// Name returns the resource name, which is also the stream name.
func (b *Binding) Name() string { return b.spec.Name }

// Spec returns the resource definition.
func (b *Binding) Spec() *ir.ResourceSpec { return b.spec }

// Table returns the action table.
func (b *Binding) Table() *Table { return b.table }

// Permissions returns the permission chain.
func (b *Binding) Permissions() Chain { return b.perms }

// Repository returns the notifying writer for this resource.
func (b *Binding) Repository() *Repository { return b.repo }

// lookup loads an entity through the base filter.
func (b *Binding) lookup(ctx context.Context, id string) (ir.Entity, error) {
	return b.store.Lookup(ctx, b.spec.Name, id, b.base)
}

// Dispatch runs one request and returns its reply. It never fails: every
// error, and any panic in a handler, becomes an error reply. request_id is
// echoed verbatim.
func (b *Binding) Dispatch(ctx context.Context, sess Session, req ir.Request) (reply ir.Reply) {
	start := time.Now()
	reply = ir.Reply{Stream: req.Stream, RequestID: req.RequestID, Action: req.Action}

	// Unknown action names share one label to bound metric cardinality.
	label := req.Action
	if _, ok := b.table.Lookup(req.Action); !ok {
		label = "invalid"
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("action panicked",
				"stream", b.spec.Name,
				"action", req.Action,
				"panic", r,
			)
			reply = errorReply(reply, NewAPIError(500, DetailInternalError))
		}
		metrics.Dispatches.WithLabelValues(b.spec.Name, label, strconv.Itoa(reply.Status)).Inc()
		metrics.DispatchLatency.WithLabelValues(b.spec.Name, label).Observe(time.Since(start).Seconds())
	}()

	data, status, err := b.run(ctx, sess, req)
	if err != nil {
		return b.fail(reply, req, err)
	}

	reply.Status = status
	reply.Data = data
	reply.Errors = []ir.Value{}
	return reply
}

func (b *Binding) run(ctx context.Context, sess Session, req ir.Request) (ir.Value, int, error) {
	// A malformed pk is checked as if absent, so a denied user gets 401
	// whatever the pk.
	id, pkErr := req.TargetID()

	desc, known := b.table.Lookup(req.Action)
	if !known || desc.RequiresPermission {
		if !b.perms.AuthorizeScoped(sess.User, req.Action, id) {
			return nil, 0, PermissionDenied()
		}
	}
	if pkErr != nil {
		return nil, 0, fieldError("pk", "Incorrect type. Expected pk value.")
	}
	if !known {
		return nil, 0, InvalidAction()
	}

	call := Call{Session: sess, Data: req.Data}
	if desc.Scope == Detail {
		if id == "" {
			return nil, 0, fieldError("pk", serializer.MsgRequired)
		}
		call.ID = id
	}
	return desc.Action.Handle(ctx, b, call)
}

func (b *Binding) fail(reply ir.Reply, req ir.Request, err error) ir.Reply {
	ae, expected := asAPIError(err)
	if expected {
		slog.Debug("request rejected",
			"stream", b.spec.Name,
			"action", req.Action,
			"status", ae.Status,
			"error", err,
		)
	} else {
		slog.Error("action failed",
			"stream", b.spec.Name,
			"action", req.Action,
			"error", err,
		)
	}
	return errorReply(reply, ae)
}

func errorReply(reply ir.Reply, ae *APIError) ir.Reply {
	reply.Status = ae.Status
	reply.Data = nil
	reply.Errors = ae.Errors()
	return reply
}
