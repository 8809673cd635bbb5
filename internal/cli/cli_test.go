package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/app"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:       config.EnvDevelopment,
		Database:  config.DatabaseConfig{Driver: config.DriverMemory},
		JWT:       config.JWTConfig{Secret: "cli-secret"},
		Feed:      config.FeedConfig{Secret: "cli-secret", TTL: time.Hour, Weeks: 4},
		Timetable: config.TimetableConfig{WeekDays: 6, MaxOccurrences: 20},
	}
}

func newTestCLI(t *testing.T) (*CLI, *bytes.Buffer) {
	t.Helper()
	DisableColor()
	cfg := testConfig()
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.Subjects.Create(ctx, service.CreateSubjectRequest{ID: "math", Code: "MATH101", Name: "Calculus", TeacherID: "t1"})
	require.NoError(t, err)
	_, err = a.Subjects.Create(ctx, service.CreateSubjectRequest{ID: "phys", Code: "PHYS101", Name: "Physics", TeacherID: "t2"})
	require.NoError(t, err)

	c := New(cfg, zap.NewNop()).WithApp(a)
	var out bytes.Buffer
	c.SetOutput(&out)
	return c, &out
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "placements.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(c *CLI, args ...string) error {
	c.SetArgs(args)
	return c.Execute(context.Background())
}

const twoSessions = `items:
  - {date: 2025-03-03, start: "08:30", end: "10:00", subject: math, room: A101, group: G1}
  - {date: 2025-03-03, start: "10:10", end: "11:40", subject: math, room: A101, group: G1}
`

func TestImportThenWeek(t *testing.T) {
	c, out := newTestCLI(t)

	require.NoError(t, run(c, "import", "--file", writeFile(t, twoSessions)))
	assert.Contains(t, out.String(), "created 2 entries")

	out.Reset()
	require.NoError(t, run(c, "week", "--date", "2025-03-05", "--group", "G1"))
	text := out.String()
	assert.Contains(t, text, "WEEK 2025-03-03 - 2025-03-08")
	assert.Contains(t, text, "08:30-11:40")
	assert.Contains(t, text, "x2")
	assert.Contains(t, text, "1 blocks")
}

func TestCheckReportsConflicts(t *testing.T) {
	c, out := newTestCLI(t)
	require.NoError(t, run(c, "import", "--file", writeFile(t, twoSessions)))

	out.Reset()
	err := run(c, "check", "--file", writeFile(t, `items:
  - {date: 2025-03-03, start: "09:00", end: "10:00", subject: phys, room: A101, group: G2}
  - {date: 2025-03-04, start: "09:00", end: "10:00", subject: phys, room: A101, group: G2}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 placements")
	text := out.String()
	assert.Contains(t, text, "CONFLICT")
	assert.Contains(t, text, "ROOM with 2025-03-03 08:30-10:00")
	assert.Contains(t, text, "OK")

	out.Reset()
	require.NoError(t, run(c, "check", "--file", writeFile(t, `items:
  - {date: 2025-03-05, start: "09:00", end: "10:00", subject: phys, room: A101, group: G2}
`)))
	assert.Contains(t, out.String(), "all 1 placements fit")
}

func TestCheckReportsCollisionsWithinFile(t *testing.T) {
	c, out := newTestCLI(t)

	err := run(c, "check", "--file", writeFile(t, `items:
  - {date: 2025-03-03, start: "08:30", end: "10:00", subject: math, room: A101, group: G1}
  - {date: 2025-03-03, start: "09:00", end: "10:30", subject: phys, room: A101, group: G2}
  - {date: 2025-03-03, start: "25:00", end: "26:00", subject: phys, room: B202, group: G2}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 placements")
	text := out.String()
	assert.Contains(t, text, "  0 OK")
	assert.Contains(t, text, "  1 CONFLICT")
	assert.Contains(t, text, "ROOM with 2025-03-03 08:30-10:00")
	assert.Contains(t, text, "  2 INVALID")
	assert.NotContains(t, text, "placements fit")

	out.Reset()
	require.NoError(t, run(c, "week", "--date", "2025-03-03"))
	assert.Contains(t, out.String(), "0 blocks")
}

func TestImportAllOrNothing(t *testing.T) {
	c, out := newTestCLI(t)

	err := run(c, "import", "--file", writeFile(t, `items:
  - {date: 2025-03-03, start: "08:30", end: "10:00", subject: math, room: A101, group: G1}
  - {date: 2025-03-03, start: "09:00", end: "10:30", subject: phys, room: A101, group: G2}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import rejected")

	out.Reset()
	require.NoError(t, run(c, "week", "--date", "2025-03-03"))
	assert.Contains(t, out.String(), "0 blocks")
}

func TestSlotsAndToken(t *testing.T) {
	c, out := newTestCLI(t)

	require.NoError(t, run(c, "slots"))
	assert.Contains(t, out.String(), "08:30  10:00")
	assert.Contains(t, out.String(), "5 slots")

	out.Reset()
	require.NoError(t, run(c, "token", "--user", "ana", "--role", "teacher", "--teacher", "t1"))
	token := strings.TrimSpace(strings.Split(out.String(), "\n")[0])

	auth := service.NewAuthService(nil, nil, service.AuthConfig{AccessTokenSecret: "cli-secret"})
	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "t1", claims.TeacherID)

	err = run(c, "token", "--user", "bob", "--role", "STUDENT")
	assert.Error(t, err)

	err = run(c, "migrate", "up")
	assert.Error(t, err)
}
