package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snipd/internal/snippet"
	"snipd/internal/store"
)

func packRecord(trigger, replace, file string) store.PackRecord {
	return store.PackRecord{Snippet: basicSnippet(trigger, replace), File: file}
}

func Test_ImportPack_Writes_Once_Per_Touched_File(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	records := []store.PackRecord{
		packRecord(":a1", "a1", "alpha.yml"),
		packRecord(":a2", "a2", "alpha.yml"),
		packRecord(":a3", "a3", "alpha.yml"),
		packRecord(":b1", "b1", "beta.yml"),
		packRecord(":b2", "b2", "beta.yml"),
	}

	result, err := s.ImportPack(context.Background(), records, store.ImportSkip)
	if err != nil {
		t.Fatal(err)
	}

	if result.Created != 5 || result.Skipped != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}

	names, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	var files []string

	for _, e := range names {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}

	if len(files) != 2 {
		t.Fatalf("files = %v, want exactly the two touched files", files)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
}

func Test_ImportPack_Of_Many_Records_Touches_Only_Their_Three_Files(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	files := []string{"alpha.yml", "beta.yml", "gamma.yml"}
	for _, name := range files {
		writeFile(t, dir, name, "matches:\n  - trigger: \":seed-"+name+"\"\n    replace: seed\n")
	}

	records := make([]store.PackRecord, 0, 500)
	for i := 0; i < 500; i++ {
		records = append(records, packRecord(
			fmt.Sprintf(":r%03d", i), "text", files[i%len(files)],
		))
	}

	result, err := s.ImportPack(context.Background(), records, store.ImportSkip)
	if err != nil {
		t.Fatal(err)
	}

	if result.Created != 500 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}

	names, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	var got []string

	for _, e := range names {
		if !e.IsDir() {
			got = append(got, e.Name())
		}
	}

	if len(got) != 3 {
		t.Fatalf("files = %v, want only the three seeded files", got)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}

	// 500 imported + 3 seeds, each seed file still holding its seed first.
	if len(entries) != 503 {
		t.Fatalf("entries = %d, want 503", len(entries))
	}
}

func Test_ImportPack_Skip_Leaves_Existing_Snippets_Untouched(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":sig\"\n    replace: original\n")

	result, err := s.ImportPack(context.Background(), []store.PackRecord{
		packRecord(":sig", "imported", ""),
		packRecord(":new", "brand new", ""),
	}, store.ImportSkip)
	if err != nil {
		t.Fatal(err)
	}

	if result.Created != 1 || result.Skipped != 1 {
		t.Fatalf("result = %+v", result)
	}

	entry, err := s.Get(":sig")
	if err != nil {
		t.Fatal(err)
	}

	if entry.Snippet.Replace != "original" {
		t.Fatalf("replace = %q, skip mode must not overwrite", entry.Snippet.Replace)
	}
}

func Test_ImportPack_Overwrite_Replaces_In_The_Owning_File(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":sig\"\n    replace: original\n")

	// The record names another file, but overwrites land where the
	// trigger already lives.
	result, err := s.ImportPack(context.Background(), []store.PackRecord{
		packRecord(":sig", "imported", "elsewhere.yml"),
	}, store.ImportOverwrite)
	if err != nil {
		t.Fatal(err)
	}

	if result.Replaced != 1 || result.Created != 0 {
		t.Fatalf("result = %+v", result)
	}

	entry, err := s.Get(":sig")
	if err != nil {
		t.Fatal(err)
	}

	if entry.Snippet.Replace != "imported" || filepath.Base(entry.File) != "work.yml" {
		t.Fatalf("entry = %+v", entry)
	}

	if _, err := os.Stat(filepath.Join(dir, "elsewhere.yml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stray file created: %v", err)
	}
}

func Test_ImportPack_Collects_Per_Record_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)

	result, err := s.ImportPack(context.Background(), []store.PackRecord{
		packRecord(":good", "fine", ""),
		packRecord("", "no trigger", ""),
		{Snippet: snippet.Snippet{Trigger: ":bad", Enabled: true}},
	}, store.ImportSkip)
	if err != nil {
		t.Fatal(err)
	}

	if result.Created != 1 || len(result.Errors) != 2 {
		t.Fatalf("result = %+v", result)
	}

	for _, impErr := range result.Errors {
		if !errors.Is(impErr.Err, store.ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", impErr.Err)
		}
	}
}

func Test_ImportPack_Aborts_When_Context_Cancelled(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ImportPack(ctx, []store.PackRecord{packRecord(":a", "a", "")}, store.ImportSkip)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, store.DefaultFileName)); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("cancelled import wrote a file: %v", statErr)
	}
}

func Test_Export_Fails_NotFound_Naming_Every_Missing_Trigger(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":a\"\n    replace: a\n")

	_, err := s.Export([]string{":a", ":ghost", ":phantom"}, store.FormatYAML)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	for _, missing := range []string{":ghost", ":phantom"} {
		if !strings.Contains(err.Error(), missing) {
			t.Fatalf("error %q does not name %s", err, missing)
		}
	}
}

func Test_Export_Then_Import_Round_Trips_All_Snippets(t *testing.T) {
	t.Parallel()

	src, srcDir := newStore(t)

	writeFile(t, srcDir, "work.yml", strings.Join([]string{
		"matches:",
		"  - trigger: \":date\"",
		"    replace: \"{{today}}\"",
		"    label: Insert today",
		"    vars:",
		"      - name: today",
		"        type: date",
		"        params:",
		"          format: \"%Y-%m-%d\"",
		"  - trigger: \":shout\"",
		"    replace: hello",
		"    uppercase_style: uppercase",
		"    left_word: true",
		"",
	}, "\n"))

	pack, err := src.Export(nil, store.FormatYAML)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := snippet.DecodePack("pack.yml", pack)
	if err != nil {
		t.Fatal(err)
	}

	records := make([]store.PackRecord, 0, len(decoded))
	for _, snip := range decoded {
		records = append(records, store.PackRecord{Snippet: snip})
	}

	dst, _ := newStore(t)

	result, err := dst.ImportPack(context.Background(), records, store.ImportSkip)
	if err != nil {
		t.Fatal(err)
	}

	if result.Created != 2 {
		t.Fatalf("result = %+v", result)
	}

	entry, err := dst.Get(":date")
	if err != nil {
		t.Fatal(err)
	}

	if len(entry.Snippet.Vars) != 1 || entry.Snippet.Vars[0].Kind != "date" {
		t.Fatalf("vars = %+v", entry.Snippet.Vars)
	}

	shout, err := dst.Get(":shout")
	if err != nil {
		t.Fatal(err)
	}

	if shout.Snippet.Uppercase != snippet.UppercaseUpper || !shout.Snippet.LeftWord {
		t.Fatalf("snippet = %+v", shout.Snippet)
	}
}

func Test_Export_JSON_Carries_Unknown_Keys(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	writeFile(t, dir, "work.yml", "matches:\n  - trigger: \":a\"\n    replace: a\n    propagate_case: true\n")

	out, err := s.Export([]string{":a"}, store.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(out), "\"propagate_case\": true") {
		t.Fatalf("unknown key dropped:\n%s", out)
	}

	decoded, err := snippet.DecodePack("pack.json", out)
	if err != nil {
		t.Fatal(err)
	}

	if len(decoded) != 1 || len(decoded[0].Extra) != 1 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func Test_GlobalVar_CRUD_Round_Trips_Through_The_Default_File(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)
	ctx := context.Background()

	v := snippet.Variable{Name: "today", Type: "date", Params: map[string]any{"format": "%Y-%m-%d"}}
	if err := s.AddGlobalVar(ctx, v); err != nil {
		t.Fatal(err)
	}

	if err := s.AddGlobalVar(ctx, v); !errors.Is(err, store.ErrDuplicateVariable) {
		t.Fatalf("err = %v, want ErrDuplicateVariable", err)
	}

	v.Params["format"] = "%d.%m.%Y"
	if err := s.UpdateGlobalVar(ctx, v); err != nil {
		t.Fatal(err)
	}

	vars, err := s.GlobalVars()
	if err != nil {
		t.Fatal(err)
	}

	if len(vars) != 1 || vars[0].Params["format"] != "%d.%m.%Y" {
		t.Fatalf("vars = %+v", vars)
	}

	data, err := os.ReadFile(filepath.Join(dir, store.DefaultFileName))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(data), "global_vars:") {
		t.Fatalf("default file missing global_vars section:\n%s", data)
	}

	if err := s.DeleteGlobalVar(ctx, "today"); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteGlobalVar(ctx, "today"); !errors.Is(err, store.ErrVariableNotFound) {
		t.Fatalf("err = %v, want ErrVariableNotFound", err)
	}
}

func Test_ImportPack_Fails_Records_Targeting_An_Unlistable_File(t *testing.T) {
	t.Parallel()

	s, dir := newStore(t)

	records := []store.PackRecord{
		packRecord(":ok", "fine", "good.yml"),
		packRecord(":lost", "gone", "notes.txt"),
	}

	result, err := s.ImportPack(context.Background(), records, store.ImportSkip)
	if err != nil {
		t.Fatal(err)
	}

	if result.Created != 1 || len(result.Errors) != 1 {
		t.Fatalf("result = %+v, want one created and one failed record", result)
	}

	if result.Errors[0].Trigger != ":lost" || !errors.Is(result.Errors[0].Err, store.ErrValidation) {
		t.Fatalf("error = %+v, want ErrValidation on :lost", result.Errors[0])
	}

	if _, statErr := os.Stat(filepath.Join(dir, "notes.txt")); !os.IsNotExist(statErr) {
		t.Fatal("notes.txt was written despite never being readable back")
	}
}
