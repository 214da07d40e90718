package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cadence/internal/config"
	"cadence/internal/db"
	"cadence/internal/domain"
	"cadence/internal/engine"
	"cadence/internal/migrate"
	"cadence/internal/recurrence"
	"cadence/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("u1"))
	eng.Now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func strp(s string) *string { return &s }

func pp(s *string) **string { return &s }

func mkWeekly(t *testing.T, env testEnv, days ...int) domain.TaskSeries {
	t.Helper()
	if len(days) == 0 {
		days = []int{1, 3, 5}
	}
	s, err := env.Engine.CreateSeries(env.Ctx, engine.SeriesCreateOptions{
		UserID:         "u1",
		Title:          "Gym",
		RecurrenceType: domain.RecurrenceWeekly,
		DaysOfWeek:     days,
		StartDate:      "2024-01-01",
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("create weekly series: %v", err)
	}
	return s
}

func mkDaily(t *testing.T, env testEnv, timesPerDay int, endDate *string) domain.TaskSeries {
	t.Helper()
	s, err := env.Engine.CreateSeries(env.Ctx, engine.SeriesCreateOptions{
		UserID:         "u1",
		Title:          "Meds",
		RecurrenceType: domain.RecurrenceDaily,
		TimesPerDay:    timesPerDay,
		StartDate:      "2024-01-01",
		EndDate:        endDate,
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("create daily series: %v", err)
	}
	return s
}

func agenda(t *testing.T, env testEnv, start, end string) []domain.AgendaItem {
	t.Helper()
	items, err := env.Engine.OccurrencesForRange(env.Ctx, "u1", start, end)
	if err != nil {
		t.Fatalf("agenda %s..%s: %v", start, end, err)
	}
	return items
}

func TestWeeklyAgendaWindow(t *testing.T) {
	env := newTestEnv(t)
	mkWeekly(t, env) // Mon/Wed/Fri, 2024-01-01 is a Monday
	items := agenda(t, env, "2024-01-01", "2024-01-14")
	if len(items) != 6 {
		t.Fatalf("expected 6 occurrences over two weeks, got %d", len(items))
	}
	want := []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-08", "2024-01-10", "2024-01-12"}
	for i, item := range items {
		if item.Date != want[i] {
			t.Fatalf("item %d: got %s want %s", i, item.Date, want[i])
		}
	}
}

func TestDailyBoundedSeries(t *testing.T) {
	env := newTestEnv(t)
	mkDaily(t, env, 1, strp("2024-01-10"))
	items := agenda(t, env, "2024-01-05", "2024-01-20")
	if len(items) != 6 {
		t.Fatalf("expected 6 occurrences (05..10), got %d", len(items))
	}
	if items[0].Date != "2024-01-05" || items[len(items)-1].Date != "2024-01-10" {
		t.Fatalf("range not clipped to series bounds: %s..%s", items[0].Date, items[len(items)-1].Date)
	}
}

func TestTimesPerDayInstances(t *testing.T) {
	env := newTestEnv(t)
	mkDaily(t, env, 3, nil)
	items := agenda(t, env, "2024-01-02", "2024-01-02")
	if len(items) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(items))
	}
	for i, item := range items {
		if item.Instance != i+1 {
			t.Fatalf("instance %d: got %d", i, item.Instance)
		}
	}
}

func TestDeleteOccurrenceIdempotent(t *testing.T) {
	env := newTestEnv(t)
	s := mkDaily(t, env, 1, nil)
	if err := env.Engine.DeleteOccurrence(env.Ctx, "u1", s.ID, "2024-01-03", "tester"); err != nil {
		t.Fatalf("delete occurrence: %v", err)
	}
	if err := env.Engine.DeleteOccurrence(env.Ctx, "u1", s.ID, "2024-01-03", "tester"); err != nil {
		t.Fatalf("retried delete must be a no-op: %v", err)
	}
	items := agenda(t, env, "2024-01-03", "2024-01-03")
	if len(items) != 0 {
		t.Fatalf("expected empty day after delete, got %d items", len(items))
	}
}

func TestMoveRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	// Wed -> Thu, then back.
	if err := env.Engine.Move(env.Ctx, "u1", s.ID, "2024-01-03", "2024-01-04", engine.OverrideChange{}, "tester"); err != nil {
		t.Fatalf("move out: %v", err)
	}
	items := agenda(t, env, "2024-01-03", "2024-01-04")
	if len(items) != 1 || items[0].Date != "2024-01-04" || !items[0].Detached {
		t.Fatalf("expected single detached occurrence on the 4th, got %+v", items)
	}
	if err := env.Engine.Move(env.Ctx, "u1", s.ID, "2024-01-04", "2024-01-03", engine.OverrideChange{}, "tester"); err != nil {
		t.Fatalf("move back: %v", err)
	}
	items = agenda(t, env, "2024-01-03", "2024-01-04")
	if len(items) != 1 || items[0].Date != "2024-01-03" {
		t.Fatalf("round trip must restore the original date with no residual skip, got %+v", items)
	}
}

func TestMoveRetryConverges(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	// Simulate a move that crashed after its first write: the target is
	// already detached but the source was never skipped.
	now := "2024-01-15T12:00:00Z"
	pre := domain.OccurrenceOverride{
		SeriesID: s.ID, Date: "2024-01-04", Detached: true,
		MovedFrom: strp("2024-01-03"), CreatedAt: now, UpdatedAt: now,
	}
	if err := env.Engine.Repo.UpsertOverride(env.Ctx, nil, pre); err != nil {
		t.Fatalf("seed partial move: %v", err)
	}
	if err := env.Engine.Move(env.Ctx, "u1", s.ID, "2024-01-03", "2024-01-04", engine.OverrideChange{}, "tester"); err != nil {
		t.Fatalf("retry of partial move must converge: %v", err)
	}
	// And a retry of the fully applied move converges too.
	if err := env.Engine.Move(env.Ctx, "u1", s.ID, "2024-01-03", "2024-01-04", engine.OverrideChange{}, "tester"); err != nil {
		t.Fatalf("retry of complete move must converge: %v", err)
	}
	items := agenda(t, env, "2024-01-03", "2024-01-04")
	if len(items) != 1 || items[0].Date != "2024-01-04" {
		t.Fatalf("expected exactly one occurrence on the 4th, got %+v", items)
	}
}

func TestMoveConflict(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	if err := env.Engine.Move(env.Ctx, "u1", s.ID, "2024-01-03", "2024-01-02", engine.OverrideChange{}, "tester"); err != nil {
		t.Fatalf("first move: %v", err)
	}
	err := env.Engine.Move(env.Ctx, "u1", s.ID, "2024-01-05", "2024-01-02", engine.OverrideChange{}, "tester")
	var conflict engine.MoveConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected move conflict, got %v", err)
	}
	// The failed move must not have skipped its source.
	items := agenda(t, env, "2024-01-05", "2024-01-05")
	if len(items) != 1 {
		t.Fatalf("source of conflicting move must survive, got %+v", items)
	}
}

func TestCompletionCounterBounds(t *testing.T) {
	env := newTestEnv(t)
	s := mkDaily(t, env, 2, nil)
	ref := engine.CompletionRef{SeriesID: s.ID, Date: "2024-01-03", Instance: 1}
	if err := env.Engine.SetCompletion(env.Ctx, "u1", ref, true, "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	c, err := env.Engine.Repo.GetCounter(env.Ctx, s.ID, "2024-01-01")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if c.ActualCount != 1 {
		t.Fatalf("actual count: got %d want 1", c.ActualCount)
	}
	if c.PlannedCount != 14 {
		t.Fatalf("planned count: got %d want 14 (7 days x 2)", c.PlannedCount)
	}
	// Completing an already complete instance moves nothing.
	if err := env.Engine.SetCompletion(env.Ctx, "u1", ref, true, "tester"); err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	c, _ = env.Engine.Repo.GetCounter(env.Ctx, s.ID, "2024-01-01")
	if c.ActualCount != 1 {
		t.Fatalf("actual count after duplicate complete: got %d want 1", c.ActualCount)
	}
	// Uncomplete twice; the counter bottoms out at zero.
	if err := env.Engine.SetCompletion(env.Ctx, "u1", ref, false, "tester"); err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if err := env.Engine.SetCompletion(env.Ctx, "u1", ref, false, "tester"); err != nil {
		t.Fatalf("duplicate uncomplete: %v", err)
	}
	c, _ = env.Engine.Repo.GetCounter(env.Ctx, s.ID, "2024-01-01")
	if c.ActualCount != 0 {
		t.Fatalf("actual count must never go below zero, got %d", c.ActualCount)
	}
}

func TestIndependentTaskToggleNoCounter(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "u1", Title: "Renew passport", Date: "2024-01-09", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := env.Engine.SetCompletion(env.Ctx, "u1", engine.CompletionRef{TaskID: task.ID}, true, "tester"); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM period_counters`).Scan(&n); err != nil {
		t.Fatalf("count counters: %v", err)
	}
	if n != 0 {
		t.Fatalf("independent task completion must touch no counter, found %d rows", n)
	}
	items := agenda(t, env, "2024-01-09", "2024-01-09")
	if len(items) != 1 || !items[0].Completed {
		t.Fatalf("expected one completed item, got %+v", items)
	}
}

func TestSplitSeriesDisjoint(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	if err := env.Engine.MarkSkip(env.Ctx, "u1", s.ID, "2024-01-10", "tester"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	succ, err := env.Engine.SplitSeries(env.Ctx, "u1", s.ID, "2024-01-08", engine.SplitOptions{}, "tester")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	old, err := env.Engine.Repo.GetSeries(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("reload old: %v", err)
	}
	if old.EndDate == nil || *old.EndDate != "2024-01-07" {
		t.Fatalf("old series must end the day before the split, got %v", old.EndDate)
	}
	// The skip dated past the split follows the successor.
	ovs, err := env.Engine.Repo.ListOverridesForSeries(env.Ctx, succ.ID)
	if err != nil {
		t.Fatalf("list successor overrides: %v", err)
	}
	if len(ovs) != 1 || ovs[0].Date != "2024-01-10" {
		t.Fatalf("expected reassigned skip on successor, got %+v", ovs)
	}
	items := agenda(t, env, "2024-01-01", "2024-01-14")
	for _, item := range items {
		if item.Date < "2024-01-08" && *item.SeriesID != s.ID {
			t.Fatalf("date %s attributed to wrong series", item.Date)
		}
		if item.Date >= "2024-01-08" && *item.SeriesID != succ.ID {
			t.Fatalf("date %s attributed to wrong series", item.Date)
		}
		if item.Date == "2024-01-10" {
			t.Fatalf("skipped occurrence leaked through the split")
		}
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 occurrences (3 old + 2 successor), got %d", len(items))
	}
}

func TestDeleteFutureOccurrences(t *testing.T) {
	env := newTestEnv(t)
	s := mkDaily(t, env, 1, nil)
	if err := env.Engine.DeleteFutureOccurrences(env.Ctx, "u1", s.ID, "2024-01-05", "tester"); err != nil {
		t.Fatalf("delete future: %v", err)
	}
	items := agenda(t, env, "2024-01-01", "2024-01-10")
	if len(items) != 4 {
		t.Fatalf("expected 4 remaining occurrences, got %d", len(items))
	}
	// Clamping at or before the start removes the series entirely.
	s2 := mkWeekly(t, env)
	if err := env.Engine.DeleteFutureOccurrences(env.Ctx, "u1", s2.ID, "2024-01-01", "tester"); err != nil {
		t.Fatalf("delete future at start: %v", err)
	}
	if _, err := env.Engine.UpdateSeries(env.Ctx, "u1", s2.ID, repo.SeriesUpdate{Title: strp("x")}, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("emptied series must read as gone, got %v", err)
	}
}

func TestOverrideMergesFields(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	if _, err := env.Engine.UpsertOverride(env.Ctx, "u1", s.ID, "2024-01-03", engine.OverrideChange{Title: strp("Leg day")}, "tester"); err != nil {
		t.Fatalf("override title: %v", err)
	}
	if _, err := env.Engine.UpsertOverride(env.Ctx, "u1", s.ID, "2024-01-03", engine.OverrideChange{TimeStart: pp(strp("07:30"))}, "tester"); err != nil {
		t.Fatalf("override time: %v", err)
	}
	o, err := env.Engine.Repo.GetOverride(env.Ctx, s.ID, "2024-01-03")
	if err != nil {
		t.Fatalf("get override: %v", err)
	}
	if o.Title == nil || *o.Title != "Leg day" {
		t.Fatalf("first edit lost in merge: %+v", o)
	}
	if o.TimeStart == nil || *o.TimeStart != "07:30" {
		t.Fatalf("second edit missing: %+v", o)
	}
}

func TestOverrideRequiresOccurrence(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	_, err := env.Engine.UpsertOverride(env.Ctx, "u1", s.ID, "2024-01-02", engine.OverrideChange{Title: strp("x")}, "tester")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for non-occurrence date, got %v", err)
	}
}

func TestAgendaOrdering(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateSeries(env.Ctx, engine.SeriesCreateOptions{
		UserID: "u1", Title: "Breakfast", RecurrenceType: domain.RecurrenceDaily,
		TimeStart: strp("09:00"), StartDate: "2024-01-01", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "u1", Title: "Zebra chores", Date: "2024-01-02", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "u1", Title: "Aerobics", Date: "2024-01-02", TimeStart: strp("07:00"), ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "u1", Title: "Banking", Date: "2024-01-02", TimeStart: strp("07:00"), ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	items := agenda(t, env, "2024-01-02", "2024-01-02")
	got := make([]string, len(items))
	for i, item := range items {
		got[i] = item.Title
	}
	want := []string{"Aerobics", "Banking", "Breakfast", "Zebra chores"}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v want %v", got, want)
		}
	}
}

func TestCacheInvalidatedOnWrite(t *testing.T) {
	env := newTestEnv(t)
	s := mkDaily(t, env, 1, nil)
	before := agenda(t, env, "2024-01-01", "2024-01-07")
	if len(before) != 7 {
		t.Fatalf("expected 7 items, got %d", len(before))
	}
	// Same range again is served without error (from cache).
	again := agenda(t, env, "2024-01-01", "2024-01-07")
	if len(again) != 7 {
		t.Fatalf("cached read: got %d items", len(again))
	}
	if err := env.Engine.MarkSkip(env.Ctx, "u1", s.ID, "2024-01-04", "tester"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	after := agenda(t, env, "2024-01-01", "2024-01-07")
	if len(after) != 6 {
		t.Fatalf("write must invalidate the cached range, got %d items", len(after))
	}
}

func TestConvertToRecurringCarriesCompletion(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "u1", Title: "Stretch", Date: "2024-01-02", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetCompletion(env.Ctx, "u1", engine.CompletionRef{TaskID: task.ID}, true, "tester"); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	s, err := env.Engine.ConvertToRecurring(env.Ctx, "u1", task.ID, recurrence.Rule{Type: domain.RecurrenceDaily}, "tester")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	items := agenda(t, env, "2024-01-02", "2024-01-03")
	if len(items) != 2 {
		t.Fatalf("expected 2 series occurrences and no standalone task, got %+v", items)
	}
	if items[0].SeriesID == nil || *items[0].SeriesID != s.ID || !items[0].Completed {
		t.Fatalf("completion did not carry to the first occurrence: %+v", items[0])
	}
	if items[1].Completed {
		t.Fatalf("later occurrences must start incomplete")
	}
}

func TestConvertToIndependentKeepsOneDate(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	if _, err := env.Engine.UpsertOverride(env.Ctx, "u1", s.ID, "2024-01-03", engine.OverrideChange{Title: strp("Solo session")}, "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetCompletion(env.Ctx, "u1", engine.CompletionRef{SeriesID: s.ID, Date: "2024-01-03"}, true, "tester"); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.ConvertToIndependent(env.Ctx, "u1", s.ID, "2024-01-03", "tester")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if task == nil {
		t.Fatalf("keep date after start must return the materialized task")
	}
	if task.Title != "Solo session" || !task.Completed {
		t.Fatalf("override fields and completion must carry: %+v", task)
	}
	items := agenda(t, env, "2024-01-01", "2024-01-14")
	if len(items) != 2 {
		t.Fatalf("expected the pre-keep occurrence plus the kept task, got %+v", items)
	}
	if items[0].Date != "2024-01-01" || items[0].SeriesID == nil || *items[0].SeriesID != s.ID {
		t.Fatalf("occurrences before the keep date must survive: %+v", items[0])
	}
	if items[1].TaskID == nil || *items[1].TaskID != task.ID {
		t.Fatalf("expected the kept task at the keep date, got %+v", items[1])
	}
}

func TestConvertToIndependentAtStartDeletesSeries(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	task, err := env.Engine.ConvertToIndependent(env.Ctx, "u1", s.ID, "2024-01-01", "tester")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if task != nil {
		t.Fatalf("keep date at the start must delete outright with nothing kept, got %+v", task)
	}
	if items := agenda(t, env, "2024-01-01", "2024-01-14"); len(items) != 0 {
		t.Fatalf("deleted series must project nothing, got %+v", items)
	}
	if err := env.Engine.MarkSkip(env.Ctx, "u1", s.ID, "2024-01-03", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted series must read as not found, got %v", err)
	}
}

func TestConvertToRecurringDetachesOriginDate(t *testing.T) {
	env := newTestEnv(t)
	// 2024-01-02 is a Tuesday; a Monday-only rule never projects it.
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "u1", Title: "Laundry", Date: "2024-01-02", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetCompletion(env.Ctx, "u1", engine.CompletionRef{TaskID: task.ID}, true, "tester"); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	s, err := env.Engine.ConvertToRecurring(env.Ctx, "u1", task.ID, recurrence.Rule{
		Type:       domain.RecurrenceWeekly,
		DaysOfWeek: []int{1},
	}, "tester")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	items := agenda(t, env, "2024-01-02", "2024-01-02")
	if len(items) != 1 {
		t.Fatalf("origin date must stay visible as a detached occurrence, got %+v", items)
	}
	if items[0].SeriesID == nil || *items[0].SeriesID != s.ID || !items[0].Detached {
		t.Fatalf("expected a detached series occurrence at the origin date: %+v", items[0])
	}
	if !items[0].Completed {
		t.Fatalf("completion must carry to the detached origin occurrence")
	}
	week2 := agenda(t, env, "2024-01-08", "2024-01-08")
	if len(week2) != 1 || week2[0].Detached {
		t.Fatalf("rule must project the following Monday normally, got %+v", week2)
	}
}

func TestOwnershipReadsAsNotFound(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	err := env.Engine.MarkSkip(env.Ctx, "u2", s.ID, "2024-01-03", "intruder")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign series must read as not found, got %v", err)
	}
	if _, err := env.Engine.SplitSeries(env.Ctx, "u2", s.ID, "2024-01-08", engine.SplitOptions{}, "intruder"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign split must read as not found, got %v", err)
	}
}

func TestEmptyWeeklyRejectedAtWrite(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateSeries(env.Ctx, engine.SeriesCreateOptions{
		UserID: "u1", Title: "x", RecurrenceType: domain.RecurrenceWeekly,
		StartDate: "2024-01-01", ActorID: "tester",
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("weekly rule without weekdays must be rejected, got %v", err)
	}
}

func TestMutationEventsLogged(t *testing.T) {
	env := newTestEnv(t)
	s := mkWeekly(t, env)
	_ = env.Engine.MarkSkip(env.Ctx, "u1", s.ID, "2024-01-03", "tester")
	_ = env.Engine.Move(env.Ctx, "u1", s.ID, "2024-01-05", "2024-01-06", engine.OverrideChange{}, "tester")
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM events WHERE user_id='u1'`).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n < 4 {
		t.Fatalf("expected create+skip+move events, got %d", n)
	}
}
