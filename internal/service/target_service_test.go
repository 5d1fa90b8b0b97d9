package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
)

type fakeTargetRepo struct {
	targets  map[uint][]models.Target
	resolved []models.Assignment
}

func newFakeTargetRepo() *fakeTargetRepo {
	return &fakeTargetRepo{targets: make(map[uint][]models.Target)}
}

func (f *fakeTargetRepo) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Target, error) {
	return append([]models.Target(nil), f.targets[assignmentID]...), nil
}

func (f *fakeTargetRepo) Replace(ctx context.Context, assignmentID uint, targets []models.Target) error {
	f.targets[assignmentID] = append([]models.Target(nil), targets...)
	return nil
}

func (f *fakeTargetRepo) Delete(ctx context.Context, assignmentID uint, targetType models.TargetType, targetID uint) (int64, error) {
	kept := make([]models.Target, 0)
	var removed int64
	for _, target := range f.targets[assignmentID] {
		match := target.TargetType == targetType
		if match && targetType != models.TargetTypeAll {
			match = target.TargetID != nil && *target.TargetID == targetID
		}
		if match {
			removed++
			continue
		}
		kept = append(kept, target)
	}
	f.targets[assignmentID] = kept
	return removed, nil
}

func (f *fakeTargetRepo) ResolveAssignments(ctx context.Context, userID uint) ([]models.Assignment, error) {
	return append([]models.Assignment(nil), f.resolved...), nil
}

type fakeAssignmentRepo struct {
	assignments map[uint]models.Assignment
	choices     map[uint][]models.ChoiceOption
	testCases   map[uint][]models.TestCase
	rules       map[uint][]models.Target
	nextID      uint
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{
		assignments: make(map[uint]models.Assignment),
		choices:     make(map[uint][]models.ChoiceOption),
		testCases:   make(map[uint][]models.TestCase),
		rules:       make(map[uint][]models.Target),
		nextID:      1,
	}
}

func (f *fakeAssignmentRepo) List(ctx context.Context) ([]models.Assignment, error) {
	out := make([]models.Assignment, 0, len(f.assignments))
	for _, assignment := range f.assignments {
		out = append(out, assignment)
	}
	return out, nil
}

func (f *fakeAssignmentRepo) ListWithTargets(ctx context.Context) ([]models.Assignment, error) {
	out := make([]models.Assignment, 0, len(f.assignments))
	for id, assignment := range f.assignments {
		assignment.Targets = append([]models.Target(nil), f.rules[id]...)
		out = append(out, assignment)
	}
	return out, nil
}

func (f *fakeAssignmentRepo) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, ok := f.assignments[id]
	if !ok {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	assignment.Choices = append([]models.ChoiceOption(nil), f.choices[id]...)
	assignment.TestCases = append([]models.TestCase(nil), f.testCases[id]...)
	return assignment, nil
}

func (f *fakeAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	assignment.ID = f.nextID
	f.nextID++
	for i := range assignment.Choices {
		assignment.Choices[i].AssignmentID = assignment.ID
	}
	for i := range assignment.TestCases {
		assignment.TestCases[i].AssignmentID = assignment.ID
	}
	f.choices[assignment.ID] = assignment.Choices
	f.testCases[assignment.ID] = assignment.TestCases
	stored := *assignment
	stored.Choices = nil
	stored.TestCases = nil
	f.assignments[assignment.ID] = stored
	return nil
}

func (f *fakeAssignmentRepo) Update(ctx context.Context, assignment *models.Assignment) error {
	stored := *assignment
	stored.Choices = nil
	stored.TestCases = nil
	f.assignments[assignment.ID] = stored
	return nil
}

func (f *fakeAssignmentRepo) Delete(ctx context.Context, id uint) error {
	delete(f.assignments, id)
	return nil
}

func (f *fakeAssignmentRepo) ListChoices(ctx context.Context, assignmentID uint) ([]models.ChoiceOption, error) {
	return append([]models.ChoiceOption(nil), f.choices[assignmentID]...), nil
}

func (f *fakeAssignmentRepo) GetChoice(ctx context.Context, choiceID, assignmentID uint) (models.ChoiceOption, error) {
	for _, choice := range f.choices[assignmentID] {
		if choice.ID == choiceID {
			return choice, nil
		}
	}
	return models.ChoiceOption{}, gorm.ErrRecordNotFound
}

func (f *fakeAssignmentRepo) ReplaceChoices(ctx context.Context, assignmentID uint, choices []models.ChoiceOption) error {
	for i := range choices {
		choices[i].AssignmentID = assignmentID
		choices[i].ID = uint(i + 1)
	}
	f.choices[assignmentID] = choices
	return nil
}

func (f *fakeAssignmentRepo) ListTestCases(ctx context.Context, assignmentID uint) ([]models.TestCase, error) {
	return append([]models.TestCase(nil), f.testCases[assignmentID]...), nil
}

func (f *fakeAssignmentRepo) GetTestCase(ctx context.Context, id uint) (models.TestCase, error) {
	for _, cases := range f.testCases {
		for _, testCase := range cases {
			if testCase.ID == id {
				return testCase, nil
			}
		}
	}
	return models.TestCase{}, gorm.ErrRecordNotFound
}

func (f *fakeAssignmentRepo) CreateTestCase(ctx context.Context, testCase *models.TestCase) error {
	testCase.ID = f.nextID
	f.nextID++
	f.testCases[testCase.AssignmentID] = append(f.testCases[testCase.AssignmentID], *testCase)
	return nil
}

func (f *fakeAssignmentRepo) UpdateTestCase(ctx context.Context, testCase *models.TestCase) error {
	cases := f.testCases[testCase.AssignmentID]
	for i := range cases {
		if cases[i].ID == testCase.ID {
			cases[i] = *testCase
		}
	}
	return nil
}

func (f *fakeAssignmentRepo) DeleteTestCase(ctx context.Context, id uint) error {
	for assignmentID, cases := range f.testCases {
		kept := cases[:0]
		for _, testCase := range cases {
			if testCase.ID != id {
				kept = append(kept, testCase)
			}
		}
		f.testCases[assignmentID] = kept
	}
	return nil
}

func (f *fakeAssignmentRepo) ReplaceTestCases(ctx context.Context, assignmentID uint, cases []models.TestCase) error {
	f.testCases[assignmentID] = cases
	return nil
}

type fakeUserRepo struct {
	users map[uint]models.User
}

func newFakeUserRepo(users ...models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[uint]models.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (f *fakeUserRepo) List(ctx context.Context, filter repository.UserFilter) ([]models.User, error) {
	wanted := make(map[uint]struct{}, len(filter.IDs))
	for _, id := range filter.IDs {
		wanted[id] = struct{}{}
	}

	out := make([]models.User, 0)
	for _, user := range f.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.ClassID != nil && (user.ClassID == nil || *user.ClassID != *filter.ClassID) {
			continue
		}
		if filter.Unassigned && user.ClassID != nil {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[user.ID]; !ok {
				continue
			}
		}
		out = append(out, user)
	}
	return out, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uint) (models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id uint) error {
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) AssignClass(ctx context.Context, classID uint, userIDs []uint) error {
	for _, id := range userIDs {
		if user, ok := f.users[id]; ok && user.Role == models.RoleStudent {
			user.ClassID = &classID
			f.users[id] = user
		}
	}
	return nil
}

func (f *fakeUserRepo) RemoveFromClass(ctx context.Context, classID uint, userIDs []uint) error {
	for _, id := range userIDs {
		if user, ok := f.users[id]; ok && user.ClassID != nil && *user.ClassID == classID {
			user.ClassID = nil
			f.users[id] = user
		}
	}
	return nil
}

type fakeClassRepo struct {
	classes map[uint]models.Class
}

func newFakeClassRepo(classes ...models.Class) *fakeClassRepo {
	repo := &fakeClassRepo{classes: make(map[uint]models.Class)}
	for _, class := range classes {
		repo.classes[class.ID] = class
	}
	return repo
}

func (f *fakeClassRepo) List(ctx context.Context) ([]models.Class, error) {
	out := make([]models.Class, 0, len(f.classes))
	for _, class := range f.classes {
		out = append(out, class)
	}
	return out, nil
}

func (f *fakeClassRepo) GetByID(ctx context.Context, id uint) (models.Class, error) {
	class, ok := f.classes[id]
	if !ok {
		return models.Class{}, gorm.ErrRecordNotFound
	}
	return class, nil
}

func (f *fakeClassRepo) Create(ctx context.Context, class *models.Class) error {
	class.ID = uint(len(f.classes) + 1)
	f.classes[class.ID] = *class
	return nil
}

func (f *fakeClassRepo) Update(ctx context.Context, class *models.Class) error {
	f.classes[class.ID] = *class
	return nil
}

func (f *fakeClassRepo) Delete(ctx context.Context, id uint) error {
	delete(f.classes, id)
	return nil
}

func (f *fakeClassRepo) Reorder(ctx context.Context, orderedIDs []uint) error {
	for index, id := range orderedIDs {
		if class, ok := f.classes[id]; ok {
			class.DisplayOrder = index
			f.classes[id] = class
		}
	}
	return nil
}

func (f *fakeClassRepo) MaxDisplayOrder(ctx context.Context) (int, error) {
	max := -1
	for _, class := range f.classes {
		if class.DisplayOrder > max {
			max = class.DisplayOrder
		}
	}
	return max, nil
}

func newTargetServiceForTest(targets *fakeTargetRepo, assignments *fakeAssignmentRepo, users *fakeUserRepo, classes *fakeClassRepo) TargetService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewTargetService(targets, assignments, users, classes, validate, testLogger())
}

func TestTargetServiceResolveUsersAllType(t *testing.T) {
	classID := uint(1)
	users := newFakeUserRepo(
		models.User{ID: 1, Username: "alice", Role: models.RoleStudent, ClassID: &classID},
		models.User{ID: 2, Username: "bob", Role: models.RoleStudent},
		models.User{ID: 3, Username: "carol", Role: models.RoleTeacher},
	)
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10, Title: "Loops"}
	targets := newFakeTargetRepo()
	targets.targets[10] = []models.Target{{AssignmentID: 10, TargetType: models.TargetTypeAll}}

	svc := newTargetServiceForTest(targets, assignments, users, newFakeClassRepo())

	resolved, err := svc.ResolveUsers(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	for _, user := range resolved {
		require.Equal(t, models.RoleStudent, user.Role)
	}
}

func TestTargetServiceResolveUsersUnionDedupe(t *testing.T) {
	classID := uint(1)
	users := newFakeUserRepo(
		models.User{ID: 1, Username: "alice", Role: models.RoleStudent, ClassID: &classID},
		models.User{ID: 2, Username: "bob", Role: models.RoleStudent},
	)
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}
	targets := newFakeTargetRepo()
	// Alice is reached both through her class and directly.
	targets.targets[10] = []models.Target{
		{AssignmentID: 10, TargetType: models.TargetTypeClass, TargetID: ptrUint(classID)},
		{AssignmentID: 10, TargetType: models.TargetTypeUser, TargetID: ptrUint(1)},
		{AssignmentID: 10, TargetType: models.TargetTypeUser, TargetID: ptrUint(2)},
	}

	svc := newTargetServiceForTest(targets, assignments, users, newFakeClassRepo(models.Class{ID: classID}))

	resolved, err := svc.ResolveUsers(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
}

func TestTargetServiceResolveUsersEmptyTargets(t *testing.T) {
	users := newFakeUserRepo(models.User{ID: 1, Role: models.RoleStudent})
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}

	svc := newTargetServiceForTest(newFakeTargetRepo(), assignments, users, newFakeClassRepo())

	resolved, err := svc.ResolveUsers(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, resolved)
}

func TestTargetServiceReplaceAllIsExclusive(t *testing.T) {
	users := newFakeUserRepo()
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}
	targets := newFakeTargetRepo()
	targets.targets[10] = []models.Target{
		{AssignmentID: 10, TargetType: models.TargetTypeUser, TargetID: ptrUint(1)},
	}

	svc := newTargetServiceForTest(targets, assignments, users, newFakeClassRepo())

	result, err := svc.Replace(context.Background(), 10, dto.TargetReplaceRequest{TargetType: "all"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "all", result[0].TargetType)
	require.Nil(t, result[0].TargetID)
}

func TestTargetServiceReplaceNoneClears(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}
	targets := newFakeTargetRepo()
	targets.targets[10] = []models.Target{{AssignmentID: 10, TargetType: models.TargetTypeAll}}

	svc := newTargetServiceForTest(targets, assignments, newFakeUserRepo(), newFakeClassRepo())

	result, err := svc.Replace(context.Background(), 10, dto.TargetReplaceRequest{TargetType: "none"})
	require.NoError(t, err)
	require.Empty(t, result)
	require.Empty(t, targets.targets[10])
}

func TestTargetServiceReplaceRejectsUnknownClass(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}

	svc := newTargetServiceForTest(newFakeTargetRepo(), assignments, newFakeUserRepo(), newFakeClassRepo())

	_, err := svc.Replace(context.Background(), 10, dto.TargetReplaceRequest{TargetType: "classes", TargetIDs: []uint{99}})
	require.ErrorIs(t, err, ErrClassNotFound)
}

func TestTargetServiceReplaceRejectsStaffTarget(t *testing.T) {
	users := newFakeUserRepo(models.User{ID: 5, Role: models.RoleTeacher})
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}

	svc := newTargetServiceForTest(newFakeTargetRepo(), assignments, users, newFakeClassRepo())

	_, err := svc.Replace(context.Background(), 10, dto.TargetReplaceRequest{TargetType: "users", TargetIDs: []uint{5}})
	require.Error(t, err)
}

func TestTargetServiceUnassignMissing(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}

	svc := newTargetServiceForTest(newFakeTargetRepo(), assignments, newFakeUserRepo(), newFakeClassRepo())

	err := svc.Unassign(context.Background(), 10, models.TargetTypeUser, 7)
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestTargetServiceIsAssignedExcludesStaff(t *testing.T) {
	users := newFakeUserRepo(
		models.User{ID: 1, Role: models.RoleStudent},
		models.User{ID: 9, Role: models.RoleTeacher},
	)
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}
	targets := newFakeTargetRepo()
	targets.targets[10] = []models.Target{
		{AssignmentID: 10, TargetType: models.TargetTypeAll},
	}

	svc := newTargetServiceForTest(targets, assignments, users, newFakeClassRepo())

	assigned, err := svc.IsAssigned(context.Background(), 1, 10)
	require.NoError(t, err)
	require.True(t, assigned)

	// An all-type rule reaches every student, never staff.
	assigned, err = svc.IsAssigned(context.Background(), 9, 10)
	require.NoError(t, err)
	require.False(t, assigned)
}

func TestTargetServiceIsAssignedLiveMembership(t *testing.T) {
	classID := uint(3)
	users := newFakeUserRepo(models.User{ID: 1, Role: models.RoleStudent, ClassID: &classID})
	assignments := newFakeAssignmentRepo()
	assignments.assignments[10] = models.Assignment{ID: 10}
	targets := newFakeTargetRepo()
	targets.targets[10] = []models.Target{
		{AssignmentID: 10, TargetType: models.TargetTypeClass, TargetID: ptrUint(classID)},
	}

	svc := newTargetServiceForTest(targets, assignments, users, newFakeClassRepo(models.Class{ID: classID}))

	assigned, err := svc.IsAssigned(context.Background(), 1, 10)
	require.NoError(t, err)
	require.True(t, assigned)

	// Leaving the class revokes visibility immediately.
	require.NoError(t, users.RemoveFromClass(context.Background(), classID, []uint{1}))

	assigned, err = svc.IsAssigned(context.Background(), 1, 10)
	require.NoError(t, err)
	require.False(t, assigned)
}
