package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"snipd/internal/snippet"
	"snipd/internal/store"
)

func newStore(t *testing.T) (*store.Store, string) {
	t.Helper()

	dir := t.TempDir()

	return store.New(store.Options{Dir: dir}), dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// Fingerprints use mtime at nanosecond resolution, but keep external
	// edits unambiguous on coarse filesystems.
	if err := os.Chtimes(path, time.Time{}, time.Now().Add(time.Duration(len(content))*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	return path
}

func basicSnippet(trigger, replace string) snippet.Snippet {
	return snippet.Snippet{Trigger: trigger, Replace: replace, Enabled: true}
}

func Test_Create_Then_Get_Returns_The_Snippet(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, basicSnippet(":sig", "Best,\nMe"), ""); err != nil {
		t.Fatal(err)
	}

	entry, err := s.Get(":sig")
	if err != nil {
		t.Fatal(err)
	}

	if entry.Snippet.Replace != "Best,\nMe" {
		t.Fatalf("replace = %q", entry.Snippet.Replace)
	}

	if filepath.Base(entry.File) != store.DefaultFileName {
		t.Fatalf("landed in %s, want the default file", entry.File)
	}

	if _, err := os.Stat(filepath.Join(dir, store.DefaultFileName)); err != nil {
		t.Fatalf("default file missing on disk: %v", err)
	}
}

func Test_Create_Fails_When_Trigger_Already_Resolves(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)
	ctx := context.Background()

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":sig\"\n    replace: existing\n")

	err := s.Create(ctx, basicSnippet(":sig", "new"), "")
	if !errors.Is(err, store.ErrDuplicateTrigger) {
		t.Fatalf("err = %v, want ErrDuplicateTrigger", err)
	}
}

func Test_Create_Rejects_Invalid_Input(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()

	cases := []snippet.Snippet{
		{Trigger: "", Replace: "x", Enabled: true},
		{Trigger: "   ", Replace: "x", Enabled: true},
		{Trigger: ":a", Replace: "", Enabled: true},
		{Trigger: ":a", Replace: "x", DelayMS: -1, Enabled: true},
		{Trigger: ":a", Replace: "x", Backend: "telepathy", Enabled: true},
		{Trigger: ":a", Replace: "x", Uppercase: "sHoUtY", Enabled: true},
	}

	for _, snip := range cases {
		if err := s.Create(ctx, snip, ""); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("snippet %+v: err = %v, want ErrValidation", snip, err)
		}
	}
}

func Test_Update_Preserves_Position_And_Unknown_Keys(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)
	ctx := context.Background()

	path := writeFile(t, dir, "work.yml", strings.Join([]string{
		"matches:",
		"  - trigger: \":first\"",
		"    replace: one",
		"  - trigger: \":second\"",
		"    replace: two",
		"    propagate_case: true",
		"  - trigger: \":third\"",
		"    replace: three",
		"",
	}, "\n"))

	updated := basicSnippet(":second", "two, edited")
	if err := s.Update(ctx, ":second", updated); err != nil {
		t.Fatal(err)
	}

	entry, err := s.Get(":second")
	if err != nil {
		t.Fatal(err)
	}

	if entry.Position != 1 {
		t.Fatalf("position = %d, want the record to stay in place", entry.Position)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(data), "propagate_case: true") {
		t.Fatalf("unknown key dropped by update:\n%s", data)
	}
}

func Test_Update_Fails_When_New_Trigger_Collides(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)
	ctx := context.Background()

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":a\"\n    replace: a\n  - trigger: \":b\"\n    replace: b\n")

	err := s.Update(ctx, ":a", basicSnippet(":b", "renamed onto b"))
	if !errors.Is(err, store.ErrDuplicateTrigger) {
		t.Fatalf("err = %v, want ErrDuplicateTrigger", err)
	}

	// Renaming a trigger onto itself is not a collision.
	if err := s.Update(ctx, ":a", basicSnippet(":a", "same trigger")); err != nil {
		t.Fatal(err)
	}
}

func Test_Update_Fails_NotFound_When_Trigger_Unknown(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)

	err := s.Update(context.Background(), ":ghost", basicSnippet(":ghost", "x"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func Test_Delete_Last_Snippet_Keeps_A_Valid_Empty_File(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)
	ctx := context.Background()

	path := writeFile(t, dir, "solo.yml", "matches:\n  - trigger: \":only\"\n    replace: one\n")

	if err := s.Delete(ctx, ":only"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(":only"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file must survive deleting its last snippet: %v", err)
	}

	file, err := snippet.Decode(path, data)
	if err != nil {
		t.Fatalf("emptied file no longer decodes: %v", err)
	}

	if len(file.Snippets) != 0 {
		t.Fatalf("snippets = %d, want 0", len(file.Snippets))
	}
}

func Test_Mutation_Retries_Once_When_File_Changed_Underneath(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)
	ctx := context.Background()

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":a\"\n    replace: a\n")

	// Populate the snapshot, then edit the file behind the cache's back.
	if _, err := s.List(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":a\"\n    replace: a\n  - trigger: \":b\"\n    replace: b\n")

	// The stale snapshot is detected and retried transparently.
	if err := s.Update(ctx, ":a", basicSnippet(":a", "a, edited")); err != nil {
		t.Fatal(err)
	}

	entry, err := s.Get(":b")
	if err != nil {
		t.Fatalf("external addition lost by retry: %v", err)
	}

	if entry.Snippet.Replace != "b" {
		t.Fatalf("replace = %q", entry.Snippet.Replace)
	}
}

func Test_Mutation_Fails_Conflict_When_Trigger_Vanishes_Underneath(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":gone\"\n    replace: soon\n")

	if _, err := s.List(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "work.yml", "matches: []\n")

	err := s.Delete(context.Background(), ":gone")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

type recordedOp struct {
	op, trigger, file string
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (r *fakeRecorder) Record(_ context.Context, op, trigger, file, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops = append(r.ops, recordedOp{op: op, trigger: trigger, file: file})

	return nil
}

type fakeReloader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeReloader) Reload(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	return r.err
}

func Test_Mutations_Record_History_And_Signal_Reload(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{}
	reloader := &fakeReloader{err: errors.New("runtime offline")}
	s := store.New(store.Options{Dir: t.TempDir(), History: recorder, Reloader: reloader})
	ctx := context.Background()

	// A failing reload must not fail the mutation.
	if err := s.Create(ctx, basicSnippet(":a", "a"), ""); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, ":a"); err != nil {
		t.Fatal(err)
	}

	if len(recorder.ops) != 2 || recorder.ops[0].op != "create" || recorder.ops[1].op != "delete" {
		t.Fatalf("ops = %+v", recorder.ops)
	}

	if reloader.calls != 2 {
		t.Fatalf("reload calls = %d, want 2", reloader.calls)
	}
}

func Test_EnsureDefaultFile_Seeds_Only_An_Empty_Directory(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	if err := s.EnsureDefaultFile(); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 || entries[0].Snippet.Trigger != ":hello" {
		t.Fatalf("entries = %+v, want the starter snippet", entries)
	}

	// A second call must not reseed, and a non-empty directory is left alone.
	if err := s.EnsureDefaultFile(); err != nil {
		t.Fatal(err)
	}

	other := store.New(store.Options{Dir: dir})
	if err := other.EnsureDefaultFile(); err != nil {
		t.Fatal(err)
	}

	entries, err = other.List()
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 {
		t.Fatalf("reseeded: %+v", entries)
	}
}

func Test_Create_Rejects_File_Names_The_Ledger_Would_Never_List(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)
	ctx := context.Background()

	cases := []string{"notes.txt", "work", ".hidden.yml", "sub/dir.yml"}

	for _, name := range cases {
		err := s.Create(ctx, basicSnippet(":ghost", "boo"), name)
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("Create into %q: err = %v, want ErrValidation", name, err)
		}

		if _, statErr := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(statErr) {
			t.Fatalf("Create into %q left a file behind", name)
		}
	}

	// Nothing landed, so the trigger must not resolve either.
	if _, err := s.Get(":ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after rejected creates: err = %v, want ErrNotFound", err)
	}
}

func Test_Create_Accepts_Every_Configured_Extension(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, basicSnippet(":a", "a"), "extra.yaml"); err != nil {
		t.Fatal(err)
	}

	entry, err := s.Get(":a")
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Base(entry.File) != "extra.yaml" {
		t.Fatalf("landed in %s, want extra.yaml", entry.File)
	}
}
