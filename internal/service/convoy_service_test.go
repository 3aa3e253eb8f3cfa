package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"convoyhub/internal/domain"
	"convoyhub/internal/logger"
	"convoyhub/internal/models"
	"convoyhub/internal/repository"
	"convoyhub/internal/service"
	"convoyhub/pkg/location"
	"convoyhub/pkg/proximity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUsers is a test double for service.IdentityStore. Every id is a known
// user unless listed in missing.
type fakeUsers struct {
	mu        sync.Mutex
	missing   map[uint]bool
	stats     map[string]int
	locations map[uint][2]float64
	statErr   error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		missing:   map[uint]bool{},
		stats:     map[string]int{},
		locations: map[uint][2]float64{},
	}
}

func (f *fakeUsers) FindUserByID(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[id] {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return &models.User{ID: id, Username: fmt.Sprintf("user%d", id)}, nil
}

func (f *fakeUsers) IncrementUserStat(_ context.Context, id uint, field string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return f.statErr
	}
	f.stats[fmt.Sprintf("%d/%s", id, field)] += delta
	return nil
}

func (f *fakeUsers) UpdateUserLocation(_ context.Context, id uint, lat, lng float64, _, _ *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations[id] = [2]float64{lat, lng}
	return nil
}

func (f *fakeUsers) stat(id uint, field string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[fmt.Sprintf("%d/%s", id, field)]
}

var _ service.IdentityStore = (*fakeUsers)(nil)

// ---- helpers ---------------------------------------------------------------

type fixture struct {
	svc   *service.ConvoyService
	store *repository.MemoryConvoyStore
	users *fakeUsers
	clock *time.Time
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{store: repository.NewMemoryConvoyStore(), users: newFakeUsers(), clock: &now}
	codes := 0
	base := []service.Option{
		service.WithClock(func() time.Time { return *f.clock }),
		service.WithJoinCodes(func() (string, error) {
			codes++
			return fmt.Sprintf("CODE%02d", codes), nil
		}),
	}
	f.svc = service.NewConvoyService(f.store, f.users, logger.NewNop(), append(base, opts...)...)
	return f
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func center(lat, lng float64) *service.LocationInput {
	return &service.LocationInput{Lat: lat, Lng: lng}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func idPtr(v uuid.UUID) *uuid.UUID { return &v }

func (f *fixture) create(t *testing.T, owner uint, visibility string, max int) *models.Convoy {
	t.Helper()
	c, err := f.svc.Create(context.Background(), service.CreateConvoyInput{
		OwnerID:       owner,
		Visibility:    visibility,
		MaxMembers:    intPtr(max),
		InitialCenter: center(40, -74),
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) join(t *testing.T, id uuid.UUID, user uint) {
	t.Helper()
	_, err := f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(id), UserID: user})
	require.NoError(t, err)
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Convoy {
	t.Helper()
	c, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, c.CheckInvariants())
	return c
}

// ---- Create ----------------------------------------------------------------

func TestCreate_OwnerIsSoleMemberAndNotLive(t *testing.T) {
	f := newFixture(t)

	c := f.create(t, 1, domain.VisibilityPublic, 5)

	assert.Equal(t, uint(1), c.OwnerID)
	assert.Equal(t, []uint{1}, c.MemberIDs())
	assert.False(t, c.IsLive)
	assert.Nil(t, c.JoinCode)
	assert.Equal(t, 40.0, c.Center.Lat)
	assert.Equal(t, 1, f.users.stat(1, domain.StatConvoysCreated))
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t, service.WithDefaultMaxMembers(12))

	c, err := f.svc.Create(context.Background(), service.CreateConvoyInput{OwnerID: 1, InitialCenter: center(1, 1)})

	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityPublic, c.Visibility)
	assert.Equal(t, 12, c.MaxMembers)
}

func TestCreate_InviteGetsJoinCode(t *testing.T) {
	f := newFixture(t)

	c := f.create(t, 1, domain.VisibilityInvite, 5)

	require.NotNil(t, c.JoinCode)
	assert.Equal(t, "CODE01", *c.JoinCode)
}

func TestCreate_RetriesOnJoinCodeCollision(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 1, domain.VisibilityInvite, 5)

	// the first draw collides with the existing convoy
	calls := 0
	f.svc = service.NewConvoyService(f.store, f.users, logger.NewNop(), service.WithJoinCodes(func() (string, error) {
		calls++
		if calls == 1 {
			return *first.JoinCode, nil
		}
		return "FRESH2", nil
	}))

	c := f.create(t, 2, domain.VisibilityInvite, 5)

	assert.Equal(t, "FRESH2", *c.JoinCode)
	assert.Equal(t, 2, calls)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]service.CreateConvoyInput{
		"max members too small": {OwnerID: 1, MaxMembers: intPtr(1), InitialCenter: center(0, 0)},
		"max members too large": {OwnerID: 1, MaxMembers: intPtr(51), InitialCenter: center(0, 0)},
		"missing center":        {OwnerID: 1},
		"bad latitude":          {OwnerID: 1, InitialCenter: center(91, 0)},
		"bad visibility":        {OwnerID: 1, Visibility: "friends", InitialCenter: center(0, 0)},
		"long title":            {OwnerID: 1, Title: strPtr(strings.Repeat("a", 101)), InitialCenter: center(0, 0)},
		"bad waypoint": {OwnerID: 1, InitialCenter: center(0, 0), Route: &models.Route{
			Waypoints: []models.Waypoint{{Lat: 0, Lng: 200}},
		}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCreate_UnknownOwner(t *testing.T) {
	f := newFixture(t)
	f.users.missing[9] = true

	_, err := f.svc.Create(context.Background(), service.CreateConvoyInput{OwnerID: 9, InitialCenter: center(0, 0)})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate_StatFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.users.statErr = fmt.Errorf("%w: db down", domain.ErrStorageUnavailable)

	_, err := f.svc.Create(context.Background(), service.CreateConvoyInput{OwnerID: 1, InitialCenter: center(0, 0)})

	assert.NoError(t, err)
}

// ---- Join ------------------------------------------------------------------

func TestJoin_PublicByID(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)

	m, err := f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(c.ID), UserID: 2})

	require.NoError(t, err)
	assert.True(t, m.Changed)
	assert.Equal(t, []uint{1, 2}, m.Convoy.MemberIDs())
	assert.Equal(t, 1, f.users.stat(2, domain.StatConvoysJoined))
}

func TestJoin_InviteByCodeSucceedsByIDFails(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityInvite, 5)

	_, err := f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(c.ID), UserID: 2})
	assert.ErrorIs(t, err, domain.ErrInviteRequired)

	m, err := f.svc.Join(context.Background(), service.JoinInput{JoinCode: "code01", UserID: 2})
	require.NoError(t, err)
	assert.Equal(t, c.ID, m.Convoy.ID)
	assert.True(t, m.Convoy.IsMember(2))

	_, err = f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(c.ID), JoinCode: "CODE01", UserID: 3})
	assert.NoError(t, err)
}

func TestJoin_CodeForAnotherConvoy(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1, domain.VisibilityInvite, 5)
	other := f.create(t, 1, domain.VisibilityPublic, 5)

	_, err := f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(other.ID), JoinCode: "CODE01", UserID: 2})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJoin_Errors(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 2)
	private := f.create(t, 1, domain.VisibilityPrivate, 5)
	f.join(t, c.ID, 2)

	_, err := f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(c.ID), UserID: 2})
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	_, err = f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(c.ID), UserID: 3})
	assert.ErrorIs(t, err, domain.ErrCapacity)

	_, err = f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(uuid.New()), UserID: 3})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Join(context.Background(), service.JoinInput{JoinCode: "ZZZZZZ", UserID: 3})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(private.ID), UserID: 3})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Join(context.Background(), service.JoinInput{UserID: 3})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, []uint{1, 2}, f.reload(t, c.ID).MemberIDs())
}

func TestJoin_ConcurrentLastSeat(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		c := f.create(t, 1, domain.VisibilityPublic, 2)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for n, user := range []uint{2, 3} {
			wg.Add(1)
			go func(n int, user uint) {
				defer wg.Done()
				_, errs[n] = f.svc.Join(context.Background(), service.JoinInput{ConvoyID: idPtr(c.ID), UserID: user})
			}(n, user)
		}
		wg.Wait()

		ok, full := 0, 0
		for _, err := range errs {
			if err == nil {
				ok++
			} else if errors.Is(err, domain.ErrCapacity) {
				full++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, full)
		assert.Len(t, f.reload(t, c.ID).Members, 2)
	}
}

// ---- AddMember / Invite ----------------------------------------------------

func TestAddMember_Idempotent(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPrivate, 5)

	m, err := f.svc.AddMember(context.Background(), c.ID, 2)
	require.NoError(t, err)
	assert.True(t, m.Changed)

	m, err = f.svc.AddMember(context.Background(), c.ID, 2)
	require.NoError(t, err)
	assert.False(t, m.Changed)
	assert.Len(t, m.Convoy.Members, 2)
	assert.Equal(t, 1, f.users.stat(2, domain.StatConvoysJoined))
}

func TestInvite_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPrivate, 5)
	_, err := f.svc.AddMember(context.Background(), c.ID, 2)
	require.NoError(t, err)

	_, err = f.svc.Invite(context.Background(), c.ID, 2, 3)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	m, err := f.svc.Invite(context.Background(), c.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, m.Convoy.MemberIDs())
}

// ---- Leave / RemoveMember / Kick ------------------------------------------

func TestLeave_OwnerTransfersToEarliestJoined(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	f.join(t, c.ID, 3)
	f.join(t, c.ID, 2)

	m, err := f.svc.Leave(context.Background(), c.ID, 1)

	require.NoError(t, err)
	assert.True(t, m.OwnerChanged())
	assert.Equal(t, uint(3), m.Convoy.OwnerID)
	assert.Equal(t, []uint{3, 2}, f.reload(t, c.ID).MemberIDs())
}

func TestLeave_TwoMemberOwnerLeaves(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	f.join(t, c.ID, 2)

	m, err := f.svc.Leave(context.Background(), c.ID, 1)

	require.NoError(t, err)
	assert.Equal(t, uint(2), m.Convoy.OwnerID)
	assert.Len(t, m.Convoy.Members, 1)
}

func TestLeave_LastMemberForceEnds(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	_, _, err := f.svc.Start(context.Background(), c.ID, 1)
	require.NoError(t, err)
	f.advance(time.Hour)

	m, err := f.svc.Leave(context.Background(), c.ID, 1)

	require.NoError(t, err)
	assert.False(t, m.Convoy.IsLive)
	require.NotNil(t, m.Convoy.EndedAt)
	assert.Equal(t, *f.clock, *m.Convoy.EndedAt)
	assert.False(t, m.OwnerChanged())
}

func TestLeave_NotMember(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)

	_, err := f.svc.RemoveMember(context.Background(), c.ID, 7)

	assert.ErrorIs(t, err, domain.ErrNotMember)
}

func TestKick(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	f.join(t, c.ID, 2)
	f.join(t, c.ID, 3)

	_, err := f.svc.Kick(context.Background(), c.ID, 2, 3)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Kick(context.Background(), c.ID, 2, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden, "non-owners are refused before the self check")

	_, err = f.svc.Kick(context.Background(), c.ID, 1, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	m, err := f.svc.Kick(context.Background(), c.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, m.Convoy.MemberIDs())
}

// ---- Start / End -----------------------------------------------------------

func TestStartEndStart(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	ctx := context.Background()

	_, changed, err := f.svc.Start(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.True(t, changed)

	f.advance(time.Hour)
	_, changed, err = f.svc.End(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.True(t, changed)

	f.advance(time.Hour)
	got, _, err := f.svc.Start(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.True(t, got.IsLive)
	assert.Equal(t, *f.clock, *got.StartedAt)

	_, changed, err = f.svc.Start(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStartEnd_NonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	f.join(t, c.ID, 2)

	_, _, err := f.svc.Start(context.Background(), c.ID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, _, err = f.svc.End(context.Background(), c.ID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.False(t, f.reload(t, c.ID).IsLive)
}

// ---- UpdateLocation --------------------------------------------------------

func TestUpdateLocation_ReplacesWholeSnapshot(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	ctx := context.Background()
	_, err := f.svc.UpdateLocation(ctx, c.ID, 1, service.LocationInput{Lat: 41, Lng: -73, Heading: floatPtr(90), Speed: floatPtr(20)})
	require.NoError(t, err)
	f.advance(time.Minute)

	got, err := f.svc.UpdateLocation(ctx, c.ID, 1, service.LocationInput{Lat: 42, Lng: -72})

	require.NoError(t, err)
	stored := f.reload(t, c.ID).Center
	assert.Equal(t, got, stored)
	assert.Equal(t, 42.0, stored.Lat)
	assert.Nil(t, stored.Heading)
	assert.Nil(t, stored.Speed)
	assert.Equal(t, *f.clock, stored.RecordedAt)
	assert.Equal(t, [2]float64{42, -72}, f.users.locations[1])
}

func TestUpdateLocation_HeadingOutOfRangeLeavesCenter(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	before := f.reload(t, c.ID).Center

	_, err := f.svc.UpdateLocation(context.Background(), c.ID, 1, service.LocationInput{Lat: 41, Lng: -73, Heading: floatPtr(361)})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, before, f.reload(t, c.ID).Center)
}

func TestUpdateLocation_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	for name, in := range map[string]service.LocationInput{
		"lat":      {Lat: -90.5, Lng: 0},
		"lng":      {Lat: 0, Lng: 180.1},
		"heading":  {Lat: 0, Lng: 0, Heading: floatPtr(-1)},
		"speed":    {Lat: 0, Lng: 0, Speed: floatPtr(-0.1)},
		"accuracy": {Lat: 0, Lng: 0, Accuracy: floatPtr(-3)},
	} {
		_, err := f.svc.UpdateLocation(context.Background(), c.ID, 1, in)
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}
}

func TestUpdateLocation_NonMemberForbidden(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)

	_, err := f.svc.UpdateLocation(context.Background(), c.ID, 2, service.LocationInput{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.UpdateLocation(context.Background(), uuid.New(), 1, service.LocationInput{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ---- FindNearby ------------------------------------------------------------

func (f *fixture) liveAt(t *testing.T, owner uint, visibility string, lat, lng float64) *models.Convoy {
	t.Helper()
	c, err := f.svc.Create(context.Background(), service.CreateConvoyInput{
		OwnerID: owner, Visibility: visibility, InitialCenter: center(lat, lng),
	})
	require.NoError(t, err)
	_, _, err = f.svc.Start(context.Background(), c.ID, owner)
	require.NoError(t, err)
	f.advance(time.Second)
	return c
}

func TestFindNearby_BoundingBox(t *testing.T) {
	f := newFixture(t)
	inside := f.liveAt(t, 1, domain.VisibilityPublic, 40.05, -74.05)
	edge := f.liveAt(t, 2, domain.VisibilityPublic, location.BoundingBox(40, -74, 10).MaxLat, -74)
	f.liveAt(t, 3, domain.VisibilityPublic, 41, -74)
	notLive, err := f.svc.Create(context.Background(), service.CreateConvoyInput{OwnerID: 4, InitialCenter: center(40, -74)})
	require.NoError(t, err)
	deleted := f.liveAt(t, 5, domain.VisibilityPublic, 40, -74)
	_, err = f.svc.Delete(context.Background(), deleted.ID, 5)
	require.NoError(t, err)

	res, err := f.svc.FindNearby(context.Background(), service.NearbyQuery{Lat: 40, Lng: -74, RadiusKm: 10, Limit: 20})

	require.NoError(t, err)
	var ids []uuid.UUID
	for _, r := range res {
		ids = append(ids, r.Convoy.ID)
		assert.True(t, r.Convoy.IsLive)
	}
	// most recently updated first
	assert.Equal(t, []uuid.UUID{edge.ID, inside.ID}, ids)
	assert.NotContains(t, ids, notLive.ID)
	assert.InDelta(t, 10.0, res[0].DistanceKm, 0.1)
	assert.NotEmpty(t, res[1].Proximity)
}

func TestFindNearby_ExactDropsCorners(t *testing.T) {
	f := newFixture(t)
	f.liveAt(t, 1, domain.VisibilityPublic, 40+9.9/111, -74+9.9/(111*0.766))

	box, err := f.svc.FindNearby(context.Background(), service.NearbyQuery{Lat: 40, Lng: -74, RadiusKm: 10})
	require.NoError(t, err)
	exact, err := f.svc.FindNearby(context.Background(), service.NearbyQuery{Lat: 40, Lng: -74, RadiusKm: 10, Exact: true})
	require.NoError(t, err)

	assert.Len(t, box, 1)
	assert.Empty(t, exact)
}

func TestFindNearby_HidesPrivateAndCodes(t *testing.T) {
	f := newFixture(t)
	f.liveAt(t, 1, domain.VisibilityPrivate, 40, -74)
	invite := f.liveAt(t, 2, domain.VisibilityInvite, 40, -74)

	res, err := f.svc.FindNearby(context.Background(), service.NearbyQuery{Lat: 40, Lng: -74, RequesterID: 9})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, invite.ID, res[0].Convoy.ID)
	assert.Nil(t, res[0].Convoy.JoinCode)

	res, err = f.svc.FindNearby(context.Background(), service.NearbyQuery{Lat: 40, Lng: -74, RequesterID: 1})
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestFindNearby_NewerPrivateDoesNotHidePublic(t *testing.T) {
	f := newFixture(t)
	public := f.liveAt(t, 1, domain.VisibilityPublic, 40, -74)
	f.liveAt(t, 2, domain.VisibilityPrivate, 40, -74)

	res, err := f.svc.FindNearby(context.Background(), service.NearbyQuery{Lat: 40, Lng: -74, Limit: 1, RequesterID: 9})

	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, public.ID, res[0].Convoy.ID)
}

func TestFindNearby_ExactPagesPastCorners(t *testing.T) {
	f := newFixture(t)
	near := f.liveAt(t, 1, domain.VisibilityPublic, 40.01, -74.01)
	for owner := uint(2); owner <= 4; owner++ {
		f.liveAt(t, owner, domain.VisibilityPublic, 40+9.9/111, -74+9.9/(111*0.766))
	}

	res, err := f.svc.FindNearby(context.Background(), service.NearbyQuery{Lat: 40, Lng: -74, RadiusKm: 10, Limit: 1, Exact: true})

	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, near.ID, res[0].Convoy.ID)
	assert.Equal(t, proximity.VeryClose, res[0].Proximity)
}

func TestFindNearby_Validation(t *testing.T) {
	f := newFixture(t, service.WithNearbyLimits(50, 10))
	for name, q := range map[string]service.NearbyQuery{
		"radius negative": {Lat: 0, Lng: 0, RadiusKm: -1},
		"radius too big":  {Lat: 0, Lng: 0, RadiusKm: 51},
		"limit negative":  {Lat: 0, Lng: 0, Limit: -1},
		"lat":             {Lat: 100, Lng: 0},
	} {
		_, err := f.svc.FindNearby(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}
}

// ---- Get / FindByJoinCode --------------------------------------------------

func TestGet_PrivateAndRedaction(t *testing.T) {
	f := newFixture(t)
	private := f.create(t, 1, domain.VisibilityPrivate, 5)
	invite := f.create(t, 1, domain.VisibilityInvite, 5)

	_, err := f.svc.Get(context.Background(), private.ID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.svc.Get(context.Background(), invite.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, got.JoinCode)

	got, err = f.svc.Get(context.Background(), invite.ID, 1)
	require.NoError(t, err)
	assert.NotNil(t, got.JoinCode)
}

func TestFindByJoinCode_CaseInsensitiveAnyState(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityInvite, 5)

	got, err := f.svc.FindByJoinCode(context.Background(), "  code01 ")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.False(t, got.IsLive)

	_, err = f.svc.FindByJoinCode(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ---- Update / RegenerateJoinCode / Delete ----------------------------------

func TestUpdate_VisibilityManagesJoinCode(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	ctx := context.Background()

	got, err := f.svc.Update(ctx, c.ID, 1, service.UpdateConvoyInput{Visibility: strPtr(domain.VisibilityInvite), Title: strPtr(" Coast run ")})
	require.NoError(t, err)
	require.NotNil(t, got.JoinCode)
	assert.Equal(t, "Coast run", *got.Title)

	got, err = f.svc.Update(ctx, c.ID, 1, service.UpdateConvoyInput{Visibility: strPtr(domain.VisibilityPrivate)})
	require.NoError(t, err)
	assert.Nil(t, got.JoinCode)
}

func TestUpdate_Rules(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityPublic, 5)
	f.join(t, c.ID, 2)
	f.join(t, c.ID, 3)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, c.ID, 2, service.UpdateConvoyInput{Title: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Update(ctx, c.ID, 1, service.UpdateConvoyInput{MaxMembers: intPtr(2)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.svc.Update(ctx, c.ID, 1, service.UpdateConvoyInput{
		MaxMembers: intPtr(3),
		Route:      &models.Route{Waypoints: []models.Waypoint{{Lat: 1, Lng: 1, Name: "start"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxMembers)
	assert.Equal(t, "start", got.RouteData().Waypoints[0].Name)

	got, err = f.svc.Update(ctx, c.ID, 1, service.UpdateConvoyInput{ClearRoute: true})
	require.NoError(t, err)
	assert.Nil(t, got.RouteData())
}

func TestRegenerateJoinCode(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityInvite, 5)
	public := f.create(t, 1, domain.VisibilityPublic, 5)

	got, err := f.svc.RegenerateJoinCode(context.Background(), c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "CODE02", *got.JoinCode)

	_, err = f.svc.FindByJoinCode(context.Background(), "CODE01")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.RegenerateJoinCode(context.Background(), public.ID, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDelete_EndsReleasesCodeAndHides(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 1, domain.VisibilityInvite, 5)
	ctx := context.Background()
	_, _, err := f.svc.Start(ctx, c.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, c.ID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.svc.Delete(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.False(t, got.IsLive)
	assert.Nil(t, got.JoinCode)

	_, err = f.svc.Get(ctx, c.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.FindByJoinCode(ctx, "CODE01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Join(ctx, service.JoinInput{ConvoyID: idPtr(c.ID), UserID: 2})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListForUser(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, 1, domain.VisibilityPublic, 5)
	b := f.create(t, 2, domain.VisibilityPublic, 5)
	f.create(t, 3, domain.VisibilityPublic, 5)
	f.join(t, b.ID, 1)

	list, err := f.svc.ListForUser(context.Background(), 1, 0, 0)

	require.NoError(t, err)
	var ids []uuid.UUID
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)
}
