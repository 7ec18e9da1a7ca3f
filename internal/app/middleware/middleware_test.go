package middleware_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"kisaanconnect/internal/app/commands"
	"kisaanconnect/internal/app/middleware"
	"kisaanconnect/internal/app/uow"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainsupport "kisaanconnect/internal/domain/support"
	domainuser "kisaanconnect/internal/domain/user"
	"kisaanconnect/internal/infra/storage/memory"
)

var errBoom = errors.New("boom")

type noteResult struct {
	Text string `json:"text"`
}

type noteCommand struct {
	Text       string
	RequestKey string
	Roles      []string
	Fail       bool
}

func (c noteCommand) Key() string { return "test.note" }

func (c noteCommand) Validate() error {
	if c.Text == "" {
		return errors.New("text required")
	}
	return nil
}

func (c noteCommand) RequiredRole() string { return "admin" }
func (c noteCommand) ActorRoles() []string { return c.Roles }

func (c noteCommand) IdempotencyKey() string { return c.RequestKey }
func (c noteCommand) ResultPrototype() any   { return &noteResult{} }

type fakeUnit struct {
	commits   *int32
	rollbacks *int32
}

func (u fakeUnit) Listings() domainlistings.Repository { return nil }
func (u fakeUnit) Tickets() domainsupport.Repository   { return nil }
func (u fakeUnit) Users() domainuser.Repository        { return nil }
func (u fakeUnit) Commit(context.Context) error {
	atomic.AddInt32(u.commits, 1)
	return nil
}
func (u fakeUnit) Rollback(context.Context) error {
	atomic.AddInt32(u.rollbacks, 1)
	return nil
}

type fakeFactory struct {
	commits   int32
	rollbacks int32
}

func (f *fakeFactory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	return fakeUnit{commits: &f.commits, rollbacks: &f.rollbacks}, nil
}

func newPipeline(factory *fakeFactory, calls *int32) commands.Bus {
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler(bus, noteCommand{}.Key(), commands.HandlerFunc[noteCommand, *noteResult](
		func(ctx context.Context, cmd noteCommand) (*noteResult, error) {
			atomic.AddInt32(calls, 1)
			if _, ok := uow.FromContext(ctx); !ok {
				return nil, uow.ErrUnitOfWorkMissing
			}
			if cmd.Fail {
				return nil, errBoom
			}
			return &noteResult{Text: cmd.Text}, nil
		}))
	return middleware.ChainCommands(bus,
		middleware.Validation(middleware.SelfValidator{}),
		middleware.Authorization(middleware.RoleAuthorizer{}),
		middleware.Idempotency(memory.NewIdempotencyStore(), middleware.JSONResultCodec{}),
		middleware.Transaction(factory, nil),
	)
}

func TestPipelineRejectsBeforeHandler(t *testing.T) {
	var calls int32
	factory := &fakeFactory{}
	bus := newPipeline(factory, &calls)

	if _, err := commands.Dispatch[noteCommand, *noteResult](context.Background(), bus, noteCommand{Roles: []string{"admin"}}); err == nil {
		t.Fatalf("expected validation error")
	}
	_, err := commands.Dispatch[noteCommand, *noteResult](context.Background(), bus, noteCommand{Text: "hi", Roles: []string{"user"}})
	if !errors.Is(err, middleware.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if calls != 0 || factory.commits != 0 {
		t.Fatalf("expected no handler call or commit, got calls=%d commits=%d", calls, factory.commits)
	}
}

func TestPipelineCommitsAndReplaysIdempotentResult(t *testing.T) {
	var calls int32
	factory := &fakeFactory{}
	bus := newPipeline(factory, &calls)
	cmd := noteCommand{Text: "first", RequestKey: "k1", Roles: []string{"ADMIN"}}

	first, err := commands.Dispatch[noteCommand, *noteResult](context.Background(), bus, cmd)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	cmd.Text = "second"
	again, err := commands.Dispatch[noteCommand, *noteResult](context.Background(), bus, cmd)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.Text != "first" || again.Text != "first" {
		t.Fatalf("expected replayed result, got %q then %q", first.Text, again.Text)
	}
	if calls != 1 || factory.commits != 1 {
		t.Fatalf("expected one handler call and commit, got calls=%d commits=%d", calls, factory.commits)
	}
}

func TestPipelineRollsBackOnHandlerError(t *testing.T) {
	var calls int32
	factory := &fakeFactory{}
	bus := newPipeline(factory, &calls)

	_, err := commands.Dispatch[noteCommand, *noteResult](context.Background(), bus, noteCommand{Text: "x", Roles: []string{"admin"}, Fail: true})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if factory.commits != 0 || factory.rollbacks != 1 {
		t.Fatalf("expected rollback only, got commits=%d rollbacks=%d", factory.commits, factory.rollbacks)
	}
}
