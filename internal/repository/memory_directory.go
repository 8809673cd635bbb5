package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// MemorySubjectRepository keeps subjects in process memory.
type MemorySubjectRepository struct {
	mu       sync.RWMutex
	subjects map[string]models.Subject
}

// NewMemorySubjectRepository returns a store seeded with subjects.
func NewMemorySubjectRepository(seed ...models.Subject) *MemorySubjectRepository {
	repo := &MemorySubjectRepository{subjects: make(map[string]models.Subject)}
	for _, s := range seed {
		repo.subjects[s.ID] = s
	}
	return repo
}

// List mirrors SubjectRepository.List.
func (r *MemorySubjectRepository) List(_ context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var out []models.Subject
	for _, s := range r.subjects {
		if filter.TeacherID != "" && s.TeacherID != filter.TeacherID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.Code), search) && !strings.Contains(strings.ToLower(s.Name), search) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	total := len(out)
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

// FindByID returns a subject or sql.ErrNoRows.
func (r *MemorySubjectRepository) FindByID(_ context.Context, id string) (*models.Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

// ExistsByCode checks uniqueness of a subject code.
func (r *MemorySubjectRepository) ExistsByCode(_ context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subjects {
		if strings.EqualFold(s.Code, code) {
			return true, nil
		}
	}
	return false, nil
}

// Create stores a subject.
func (r *MemorySubjectRepository) Create(_ context.Context, subject *models.Subject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	if _, exists := r.subjects[subject.ID]; exists {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	subject.CreatedAt, subject.UpdatedAt = now, now
	r.subjects[subject.ID] = *subject
	return nil
}

// MemoryRoomRepository keeps rooms in process memory.
type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]models.Room
}

// NewMemoryRoomRepository returns a store seeded with rooms.
func NewMemoryRoomRepository(seed ...models.Room) *MemoryRoomRepository {
	repo := &MemoryRoomRepository{rooms: make(map[string]models.Room)}
	for _, room := range seed {
		repo.rooms[room.ID] = room
	}
	return repo
}

// List returns every room ordered by code.
func (r *MemoryRoomRepository) List(_ context.Context) ([]models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// RoomIDs returns the ids of every room.
func (r *MemoryRoomRepository) RoomIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Create stores a room.
func (r *MemoryRoomRepository) Create(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	for _, existing := range r.rooms {
		if existing.ID == room.ID || strings.EqualFold(existing.Code, room.Code) {
			return ErrDuplicate
		}
	}
	r.rooms[room.ID] = *room
	return nil
}
