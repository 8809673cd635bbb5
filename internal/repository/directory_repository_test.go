package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func TestSubjectRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name, teacher_id, created_at, updated_at FROM subjects WHERE id = $1")).
		WithArgs("math").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "teacher_id", "created_at", "updated_at"}).
			AddRow("math", "MATH101", "Calculus", "t1", now, now))

	subject, err := repo.FindByID(context.Background(), "math")
	require.NoError(t, err)
	assert.Equal(t, "t1", subject.TeacherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryListAndCreate(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM subjects WHERE 1=1 AND teacher_id = $1 AND (LOWER(code) LIKE $2 OR LOWER(name) LIKE $3) ORDER BY code ASC LIMIT 20 OFFSET 0")).
		WithArgs("t1", "%calc%", "%calc%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "teacher_id", "created_at", "updated_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM subjects")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subjects")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, total, err := repo.List(context.Background(), models.SubjectFilter{TeacherID: "t1", Search: "Calc"})
	require.NoError(t, err)
	assert.Zero(t, total)

	err = repo.Create(context.Background(), &models.Subject{Code: "MATH101", Name: "Calculus", TeacherID: "t1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepository(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewRoomRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM rooms ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("A101").AddRow("B202"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rooms (id, code, capacity)")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ids, err := repo.RoomIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A101", "B202"}, ids)

	room := &models.Room{Code: "C303", Capacity: 30}
	require.NoError(t, repo.Create(context.Background(), room))
	assert.NotEmpty(t, room.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryDirectories(t *testing.T) {
	ctx := context.Background()
	subjects := NewMemorySubjectRepository(models.Subject{ID: "math", Code: "MATH101", Name: "Calculus", TeacherID: "t1"})

	found, err := subjects.FindByID(ctx, "math")
	require.NoError(t, err)
	assert.Equal(t, "t1", found.TeacherID)

	exists, err := subjects.ExistsByCode(ctx, "math101")
	require.NoError(t, err)
	assert.True(t, exists)

	list, total, err := subjects.List(ctx, models.SubjectFilter{Search: "calc"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)

	_, err = subjects.FindByID(ctx, "physics")
	assert.True(t, IsNotFound(err))

	rooms := NewMemoryRoomRepository(models.Room{ID: "B202", Code: "B202"})
	require.NoError(t, rooms.Create(ctx, &models.Room{ID: "A101", Code: "A101"}))
	assert.ErrorIs(t, rooms.Create(ctx, &models.Room{Code: "a101"}), ErrDuplicate)

	ids, err := rooms.RoomIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A101", "B202"}, ids)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]string
	assert.Error(t, repo.Get(context.Background(), "k", &dest))
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "k*"))
	n, err := repo.Incr(context.Background(), "gen")
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, repo.Close())
}
