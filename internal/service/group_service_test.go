package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type mockGroupRepo struct {
	groups  map[int64]*models.Group
	members map[int64][]int64
	persons map[int64]models.Person
}

func (m *mockGroupRepo) List(ctx context.Context) ([]models.Group, error) {
	out := []models.Group{}
	for _, g := range m.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (m *mockGroupRepo) FindByID(ctx context.Context, id int64) (*models.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return g, nil
}

func (m *mockGroupRepo) Create(ctx context.Context, g *models.Group) error {
	g.ID = int64(len(m.groups) + 1)
	m.groups[g.ID] = g
	return nil
}

func (m *mockGroupRepo) Update(ctx context.Context, g *models.Group) error {
	if _, ok := m.groups[g.ID]; !ok {
		return sql.ErrNoRows
	}
	m.groups[g.ID] = g
	return nil
}

func (m *mockGroupRepo) Delete(ctx context.Context, id int64) error {
	delete(m.groups, id)
	return nil
}

func (m *mockGroupRepo) Members(ctx context.Context, groupID int64) ([]models.Person, error) {
	out := []models.Person{}
	for _, id := range m.members[groupID] {
		out = append(out, m.persons[id])
	}
	return out, nil
}

func (m *mockGroupRepo) AddMembers(ctx context.Context, groupID int64, personIDs []int64) error {
	for _, id := range personIDs {
		if !containsID(m.members[groupID], id) {
			m.members[groupID] = append(m.members[groupID], id)
		}
	}
	return nil
}

func (m *mockGroupRepo) RemoveMembers(ctx context.Context, groupID int64, personIDs []int64) error {
	kept := []int64{}
	for _, id := range m.members[groupID] {
		if !containsID(personIDs, id) {
			kept = append(kept, id)
		}
	}
	m.members[groupID] = kept
	return nil
}

func (m *mockGroupRepo) FindByIDs(ctx context.Context, ids []int64) ([]models.Person, error) {
	out := []models.Person{}
	for _, id := range uniqueIDs(ids) {
		if p, ok := m.persons[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newGroupServiceForTest() (*GroupService, *mockGroupRepo) {
	repo := &mockGroupRepo{
		groups:  map[int64]*models.Group{},
		members: map[int64][]int64{},
		persons: map[int64]models.Person{1: {ID: 1, FirstName: "Jan"}, 2: {ID: 2, FirstName: "Eva"}},
	}
	return NewGroupService(repo, repo, nil, nil), repo
}

func TestGroupServiceMembership(t *testing.T) {
	svc, _ := newGroupServiceForTest()
	ctx := context.Background()

	group, err := svc.Create(ctx, models.GroupRequest{Name: " Trenéři "})
	require.NoError(t, err)
	assert.Equal(t, "Trenéři", group.Name)

	members, err := svc.AddMembers(ctx, group.ID, models.GroupMembersRequest{PersonIDs: []int64{1, 2, 2}})
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = svc.AddMembers(ctx, group.ID, models.GroupMembersRequest{PersonIDs: []int64{3}})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, "person_ids")

	members, err = svc.RemoveMembers(ctx, group.ID, models.GroupMembersRequest{PersonIDs: []int64{1}})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, int64(2), members[0].ID)
}

func TestGroupServiceDirectoryAuthority(t *testing.T) {
	svc, _ := newGroupServiceForTest()
	ctx := context.Background()

	_, err := svc.Create(ctx, models.GroupRequest{Name: "Výbor", GoogleAsMembersAuthority: true})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, "google_as_members_authority")

	group, err := svc.Create(ctx, models.GroupRequest{Name: "Výbor", GoogleEmail: strPtr("vybor@example.com"), GoogleAsMembersAuthority: true})
	require.NoError(t, err)

	_, err = svc.AddMembers(ctx, group.ID, models.GroupMembersRequest{PersonIDs: []int64{1}})
	assert.ErrorIs(t, err, appErrors.ErrStateConflict)

	_, err = svc.Update(ctx, 99, models.GroupRequest{Name: "Nic"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
