package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
)

func newUserServiceForTest(users *fakeUserRepo, classes *fakeClassRepo) UserService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewUserService(users, classes, validate, testLogger())
}

func TestUserUpdatePromotionLeavesClass(t *testing.T) {
	classID := uint(1)
	users := newFakeUserRepo(models.User{ID: 1, Username: "alice", Role: models.RoleStudent, ClassID: &classID})
	svc := newUserServiceForTest(users, newFakeClassRepo(models.Class{ID: classID}))

	role := "teacher"
	updated, err := svc.Update(context.Background(), 1, dto.UserUpdateRequest{Role: &role})
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, updated.Role)
	require.Nil(t, updated.ClassID)
}

func TestUserUpdateEnrollsStudent(t *testing.T) {
	users := newFakeUserRepo(models.User{ID: 1, Username: "alice", Role: models.RoleStudent})
	classes := newFakeClassRepo(models.Class{ID: 2, Name: "1-B"})
	svc := newUserServiceForTest(users, classes)

	updated, err := svc.Update(context.Background(), 1, dto.UserUpdateRequest{ClassID: ptrUint(2)})
	require.NoError(t, err)
	require.NotNil(t, updated.ClassID)
	require.Equal(t, uint(2), *updated.ClassID)
}

func TestUserUpdateUnknownClass(t *testing.T) {
	users := newFakeUserRepo(models.User{ID: 1, Username: "alice", Role: models.RoleStudent})
	svc := newUserServiceForTest(users, newFakeClassRepo())

	_, err := svc.Update(context.Background(), 1, dto.UserUpdateRequest{ClassID: ptrUint(99)})
	require.ErrorIs(t, err, ErrClassNotFound)
}

func TestUserGetUnknown(t *testing.T) {
	svc := newUserServiceForTest(newFakeUserRepo(), newFakeClassRepo())

	_, err := svc.Get(context.Background(), 404)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserListByRole(t *testing.T) {
	users := newFakeUserRepo(
		models.User{ID: 1, Username: "alice", Role: models.RoleStudent},
		models.User{ID: 2, Username: "tanaka", Role: models.RoleTeacher},
	)
	svc := newUserServiceForTest(users, newFakeClassRepo())

	role := models.RoleStudent
	listed, err := svc.List(context.Background(), &role, nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "alice", listed[0].Username)
}
