package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// previewRows builds named rows the way a scan would, one per file.
func previewRows(t *testing.T, dir string, dates map[string]ResolvedDate, order ...string) []PreviewRow {
	t.Helper()
	claims := NewClaimSet()
	rows := make([]PreviewRow, 0, len(order))
	for _, name := range order {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			writeFile(t, path, []byte(name))
		}
		row := PreviewRow{OldName: name, Path: path, Date: dates[name]}
		rows = append(rows, nameRow(row, DefaultNamingOptions(), claims))
	}
	return rows
}

func dated(y int, mo time.Month, d int) ResolvedDate {
	return ResolvedDate{Time: local(y, mo, d, 10, 0, 0), Found: true, Source: ProvExifRead}
}

type recorded struct {
	renamed, skipped, failed []string
}

func (r *recorded) RecordRenamed(src, dest string) error {
	r.renamed = append(r.renamed, filepath.Base(src)+">"+filepath.Base(dest))
	return nil
}

func (r *recorded) RecordSkipped(src, reason string) error {
	r.skipped = append(r.skipped, filepath.Base(src)+":"+reason)
	return nil
}

func (r *recorded) RecordFailed(src string, perr *ProcessError) error {
	r.failed = append(r.failed, filepath.Base(src)+":"+string(perr.Category))
	return nil
}

func TestRename_ThenUndoRestoresEverything(t *testing.T) {
	dir := t.TempDir()
	dates := map[string]ResolvedDate{
		"a.jpg": dated(2023, 4, 13),
		"b.jpg": dated(2023, 4, 13),
		"c.jpg": dated(2022, 1, 2),
		"d.jpg": Missing(),
	}
	rows := previewRows(t, dir, dates, "a.jpg", "b.jpg", "c.jpg", "d.jpg")

	rec := &recorded{}
	res := Rename(context.Background(), rows, DefaultNamingOptions(), rec, nil)
	if res.Renamed != 3 || res.Skipped != 1 || res.Errors != 0 {
		t.Fatalf("rename result = %+v", res)
	}
	for _, name := range []string{"2023-04-13_10-00-00.jpg", "2023-04-13_10-00-00_1.jpg", "2022-01-02_10-00-00.jpg", "d.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s after rename: %v", name, err)
		}
	}
	if len(rec.renamed) != 3 || len(rec.skipped) != 1 || rec.skipped[0] != "d.jpg:"+skipNoName {
		t.Errorf("recorder = %+v", rec)
	}

	undo := Undo(context.Background(), res.Pairs, nil)
	if undo.Undone != res.Renamed || undo.Errors != 0 {
		t.Fatalf("undo result = %+v", undo)
	}
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("%s not restored: %v", name, err)
		}
		if string(data) != name {
			t.Errorf("%s has content %q", name, data)
		}
	}
}

func TestRename_NeverOverwritesLateArrivals(t *testing.T) {
	dir := t.TempDir()
	rows := previewRows(t, dir, map[string]ResolvedDate{"a.jpg": dated(2023, 4, 13)}, "a.jpg")
	if rows[0].NewName != "2023-04-13_10-00-00.jpg" {
		t.Fatalf("preview name = %q", rows[0].NewName)
	}

	// Someone else takes the name between preview and rename.
	late := filepath.Join(dir, "2023-04-13_10-00-00.jpg")
	writeFile(t, late, []byte("late"))

	res := Rename(context.Background(), rows, DefaultNamingOptions(), nil, nil)
	if res.Renamed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := filepath.Base(res.Pairs[0].Destination); got != "2023-04-13_10-00-00_1.jpg" {
		t.Errorf("destination = %q", got)
	}
	if data, _ := os.ReadFile(late); string(data) != "late" {
		t.Error("existing file was overwritten")
	}
}

func TestRename_SkipsVanishedAndUnchanged(t *testing.T) {
	dir := t.TempDir()
	dates := map[string]ResolvedDate{
		"gone.jpg":                dated(2021, 1, 1),
		"2020-05-05_10-00-00.jpg": dated(2020, 5, 5),
	}
	rows := previewRows(t, dir, dates, "gone.jpg", "2020-05-05_10-00-00.jpg")
	if err := os.Remove(filepath.Join(dir, "gone.jpg")); err != nil {
		t.Fatal(err)
	}

	rec := &recorded{}
	res := Rename(context.Background(), rows, DefaultNamingOptions(), rec, nil)
	if res.Renamed != 0 || res.Skipped != 2 || res.Errors != 0 {
		t.Fatalf("result = %+v", res)
	}
	want := []string{"gone.jpg:" + skipVanished, "2020-05-05_10-00-00.jpg:" + skipUnchanged}
	for i := range want {
		if rec.skipped[i] != want[i] {
			t.Errorf("skipped[%d] = %q, want %q", i, rec.skipped[i], want[i])
		}
	}
}

func TestRename_SkipsErrorAndCancelledRows(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), nil)
	writeFile(t, filepath.Join(dir, "b.jpg"), nil)
	rows := []PreviewRow{
		errorRow(filepath.Join(dir, "a.jpg"), "unreadable"),
		cancelledRow(filepath.Join(dir, "b.jpg")),
	}
	res := Rename(context.Background(), rows, DefaultNamingOptions(), nil, nil)
	if res.Renamed != 0 || res.Skipped != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestRename_UsesCurrentNamingOptions(t *testing.T) {
	dir := t.TempDir()
	rows := previewRows(t, dir, map[string]ResolvedDate{"a.jpg": dated(2023, 4, 13)}, "a.jpg")

	naming := NamingOptions{Template: ParseTemplate("%Y%m%d"), Prefix: "trip_", Pattern: PatternDateOriginal}
	res := Rename(context.Background(), rows, naming, nil, nil)
	if res.Renamed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := filepath.Base(res.Pairs[0].Destination); got != "trip_20230413_a.jpg" {
		t.Errorf("destination = %q", got)
	}
}

func TestRename_StopsWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	rows := previewRows(t, dir, map[string]ResolvedDate{"a.jpg": dated(2023, 4, 13)}, "a.jpg")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Rename(ctx, rows, DefaultNamingOptions(), nil, nil)
	if !res.Cancelled || res.Renamed != 0 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.jpg")); err != nil {
		t.Error("file touched after cancellation")
	}
}

func TestUndo_Preconditions(t *testing.T) {
	dir := t.TempDir()
	src := func(n string) string { return filepath.Join(dir, n) }

	writeFile(t, src("occupied.jpg"), []byte("new"))
	writeFile(t, src("renamed.jpg"), []byte("old"))
	pairs := []RenamePair{
		{Source: src("lost.jpg"), Destination: src("nowhere.jpg")},
		{Source: src("occupied.jpg"), Destination: src("renamed.jpg")},
	}

	res := Undo(context.Background(), pairs, nil)
	if res.Undone != 0 || res.Errors != 2 {
		t.Fatalf("result = %+v", res)
	}
	if data, _ := os.ReadFile(src("occupied.jpg")); string(data) != "new" {
		t.Error("occupied source was overwritten")
	}
	if data, _ := os.ReadFile(src("renamed.jpg")); string(data) != "old" {
		t.Error("destination was moved despite the conflict")
	}
	if got := res.Failures.Total; got != 2 {
		t.Errorf("failures recorded = %d", got)
	}
}

func TestUndo_StopsWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	rows := previewRows(t, dir, map[string]ResolvedDate{
		"a.jpg": dated(2023, 4, 13),
		"b.jpg": dated(2022, 1, 2),
	}, "a.jpg", "b.jpg")
	res := Rename(context.Background(), rows, DefaultNamingOptions(), nil, nil)
	if res.Renamed != 2 {
		t.Fatalf("rename result = %+v", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	undo := Undo(ctx, res.Pairs, nil)
	if !undo.Cancelled || undo.Undone != 0 || len(undo.Restored) != 0 {
		t.Errorf("undo result = %+v", undo)
	}
	for _, p := range res.Pairs {
		if _, err := os.Stat(p.Destination); err != nil {
			t.Errorf("%s moved after cancellation", filepath.Base(p.Destination))
		}
	}
}

func TestUndo_RetryFromJournalAfterFailure(t *testing.T) {
	dir := t.TempDir()
	state := t.TempDir()
	rows := previewRows(t, dir, map[string]ResolvedDate{
		"a.jpg": dated(2023, 4, 13),
		"b.jpg": dated(2022, 1, 2),
	}, "a.jpg", "b.jpg")

	j, err := NewJournal(state, dir)
	if err != nil {
		t.Fatal(err)
	}
	res := Rename(context.Background(), rows, DefaultNamingOptions(), j, nil)
	j.Close()
	if res.Renamed != 2 {
		t.Fatalf("rename result = %+v", res)
	}

	// Block a's old name so the first undo restores only b.
	blocker := filepath.Join(dir, "a.jpg")
	writeFile(t, blocker, []byte("blocker"))
	pairs, err := LoadPairs(j.Path())
	if err != nil {
		t.Fatal(err)
	}
	first := Undo(context.Background(), pairs, nil)
	if first.Undone != 1 || first.Errors != 1 {
		t.Fatalf("first undo = %+v", first)
	}
	if err := AppendUndo(j.Path(), first); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatal(err)
	}
	pairs, err = LoadPairs(j.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 || filepath.Base(pairs[0].Source) != "a.jpg" {
		t.Fatalf("pending pairs = %+v", pairs)
	}
	second := Undo(context.Background(), pairs, nil)
	if second.Undone != 1 || second.Errors != 0 {
		t.Fatalf("second undo = %+v", second)
	}
	if data, _ := os.ReadFile(blocker); string(data) != "a.jpg" {
		t.Errorf("a.jpg content = %q", data)
	}
}
