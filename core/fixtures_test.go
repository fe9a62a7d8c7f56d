package core

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

var (
	alice = User{Username: "alice", Email: "alice@example.com", Password: "password123"}
	bob   = User{Username: "bob", Email: "bob@example.com", Password: "password123"}
	carol = User{Username: "carol", Email: "carol@example.com", Password: "password123"}
)

type storeFixture struct {
	userStore    UserStore
	friendStore  FriendStore
	messageStore MessageStore
	db           *sql.DB
	ctx          context.Context
	tearDown     func()
	t            *testing.T
}

func newStoreFixture(t *testing.T) *storeFixture {
	ctx, cancel := context.WithCancel(context.Background())

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}

	goose.SetBaseFS(os.DirFS("../migrations"))
	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatal(err)
	}
	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}

	userStore := NewSQLiteUserStore(db)

	f := &storeFixture{
		userStore:    userStore,
		friendStore:  NewSQLiteFriendStore(db, userStore),
		messageStore: NewSQLiteMessageStore(db),
		db:           db,
		ctx:          ctx,
		tearDown: func() {
			cancel()
			db.Close()
		},
		t: t,
	}

	return f
}

func seedUsers(ctx context.Context, t *testing.T, store UserStore, users ...User) {
	for _, user := range users {
		require.Nil(t, store.CreateUser(ctx, user), "seeding user %s", user.Username)
	}
}

// fakePusher is a connection handle that records pushed events.
type fakePusher struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (p *fakePusher) Push(e *Event) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePusher) Events() []*Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]*Event, len(p.events))
	copy(events, p.events)
	return events
}

// failingMessageStore rejects every operation with err.
type failingMessageStore struct {
	err error
}

func (s *failingMessageStore) Append(ctx context.Context, input MessageCreateInput) (*Message, error) {
	return nil, s.err
}

func (s *failingMessageStore) ListByParticipant(ctx context.Context, username string) ([]Message, error) {
	return nil, s.err
}

func (s *failingMessageStore) ListBetween(ctx context.Context, a, b string) ([]Message, error) {
	return nil, s.err
}
