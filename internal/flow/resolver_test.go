package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
	"github.com/BTreeMap/HabitLine/internal/testutil"
)

func TestResolver_CreatesOnFirstContact(t *testing.T) {
	st := store.NewInMemoryStore()
	profiles := messaging.NewMockSender()
	profiles.SetProfile(messaging.Profile{UserID: "U1", DisplayName: "Hanako"})
	r := NewResolver(st, profiles)

	u, err := r.Resolve(context.Background(), "U1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.Name != "Hanako" || u.Plan != models.PlanFree || u.Persona != models.DefaultPersona {
		t.Errorf("new user = %+v", u)
	}
	again, err := r.Resolve(context.Background(), "U1")
	if err != nil || again.ID != u.ID {
		t.Fatalf("second Resolve = %+v, %v; want same user", again, err)
	}
	users, _ := st.ListUsers(context.Background())
	if len(users) != 1 {
		t.Errorf("users = %d, want 1", len(users))
	}
}

// racingStore makes the first lookup miss even though another writer won the insert.
type racingStore struct {
	store.Store
	once sync.Once
}

func (r *racingStore) GetUserByExternalID(ctx context.Context, id string) (*models.User, error) {
	var miss bool
	r.once.Do(func() {
		miss = true
		r.Store.CreateUser(ctx, models.User{ExternalID: id, Name: "winner"})
	})
	if miss {
		return nil, store.ErrNotFound
	}
	return r.Store.GetUserByExternalID(ctx, id)
}

func TestResolver_ConflictRereads(t *testing.T) {
	st := &racingStore{Store: store.NewInMemoryStore()}
	r := NewResolver(st, messaging.NewMockSender())

	u, err := r.Resolve(context.Background(), "U1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.Name != "winner" {
		t.Errorf("expected the concurrently created user, got %+v", u)
	}
	users, _ := st.ListUsers(context.Background())
	if len(users) != 1 {
		t.Errorf("users = %d, want exactly 1", len(users))
	}
}

func TestResolver_StorageErrorPropagates(t *testing.T) {
	fs := testutil.NewFailingStore(store.NewInMemoryStore())
	fs.FailOn("GetUserByExternalID", errors.New("db down"))
	if _, err := NewResolver(fs, messaging.NewMockSender()).Resolve(context.Background(), "U1"); err == nil {
		t.Error("expected error")
	}
	if fs.Calls("CreateUser") != 0 {
		t.Error("must not insert when lookup fails")
	}
}
