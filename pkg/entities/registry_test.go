package entities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	createdTable string
	createdRow   map[string]any
	updatedTable string
	updatedID    string
	updatedRow   map[string]any
}

func (s *fakeStore) CreateEntityRow(_ context.Context, table string, fields map[string]any) (string, error) {
	s.createdTable = table
	s.createdRow = fields

	return "row-1", nil
}

func (s *fakeStore) UpdateEntityRowByID(_ context.Context, table, id string, fields map[string]any) error {
	s.updatedTable = table
	s.updatedID = id
	s.updatedRow = fields

	return nil
}

func strptr(s string) *string { return &s }

func TestLookup_UnknownEntityFailsClosed(t *testing.T) {
	_, err := Lookup("users")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedEntity)
}

func TestCreate_DropsNonWhitelistedFields(t *testing.T) {
	store := &fakeStore{}
	scope := Scope{DistrictID: strptr("d1"), SchoolID: strptr("sc1")}

	id, err := Create(context.Background(), store, "notifications", map[string]any{
		"user_id":  "u-9",
		"title":    "Alert",
		"is_admin": true, // not whitelisted, must be dropped
	}, scope)

	require.NoError(t, err)
	assert.Equal(t, "row-1", id)
	assert.Equal(t, "notifications", store.createdTable)
	assert.NotContains(t, store.createdRow, "is_admin")
	assert.Equal(t, "u-9", store.createdRow["user_id"])
}

func TestCreate_InjectedTenantScopeWinsOverCallerValues(t *testing.T) {
	store := &fakeStore{}
	scope := Scope{DistrictID: strptr("d1")}

	_, err := Create(context.Background(), store, "tasks", map[string]any{
		"title":       "Follow up",
		"district_id": "forged-district",
	}, scope)

	require.NoError(t, err)
	assert.Equal(t, "d1", store.createdRow["district_id"])
}

func TestCreate_UnknownEntity(t *testing.T) {
	store := &fakeStore{}

	_, err := Create(context.Background(), store, "users", map[string]any{"name": "x"}, Scope{})

	assert.ErrorIs(t, err, ErrUnsupportedEntity)
	assert.Empty(t, store.createdTable)
}

func TestUpdateByPK(t *testing.T) {
	store := &fakeStore{}
	scope := Scope{DistrictID: strptr("d1")}

	err := UpdateByPK(context.Background(), store, "student_flags",
		map[string]any{"id": "flag-3"},
		map[string]any{"level": "high", "secret": "x"},
		scope)

	require.NoError(t, err)
	assert.Equal(t, "student_flags", store.updatedTable)
	assert.Equal(t, "flag-3", store.updatedID)
	assert.Equal(t, "high", store.updatedRow["level"])
	assert.NotContains(t, store.updatedRow, "secret")
	assert.Equal(t, "d1", store.updatedRow["district_id"])
}

func TestUpdateByPK_MissingID(t *testing.T) {
	store := &fakeStore{}

	err := UpdateByPK(context.Background(), store, "tasks",
		map[string]any{}, map[string]any{"status": "done"}, Scope{})

	assert.ErrorIs(t, err, ErrMissingPrimaryKey)
	assert.Empty(t, store.updatedTable)
}

func TestPickAllowedFields(t *testing.T) {
	entry, err := Lookup("notifications")
	require.NoError(t, err)

	picked := entry.PickAllowedFields(map[string]any{
		"title":    "t",
		"body":     "b",
		"password": "nope",
	})

	assert.Equal(t, map[string]any{"title": "t", "body": "b"}, picked)
}
