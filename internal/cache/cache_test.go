package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"snipd/internal/cache"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func boolPtr(b bool) *bool { return &b }

func Test_Get_Resolves_First_In_File_Order_When_Trigger_Is_Duplicated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.yml", "matches:\n  - trigger: \":hi\"\n    replace: from-a\n")
	writeFile(t, dir, "b.yml", "matches:\n  - trigger: \":hi\"\n    replace: from-b\n")

	c := cache.New(dir, nil)

	entry, ok, err := c.Get(":hi")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}

	if entry.Snippet.Replace != "from-a" {
		t.Fatalf("replace = %q, want precedence from a.yml", entry.Snippet.Replace)
	}

	dupes, err := c.DuplicateTriggers()
	if err != nil {
		t.Fatal(err)
	}

	if len(dupes[":hi"]) != 2 {
		t.Fatalf("duplicates = %+v, want both entries reported", dupes)
	}
}

func Test_Invalidate_Twice_Causes_One_Rebuild_When_Read_Follows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.yml", "matches:\n  - trigger: \":a\"\n    replace: a\n")

	c := cache.New(dir, nil)

	gen, err := c.Generation()
	if err != nil {
		t.Fatal(err)
	}

	c.Invalidate()
	c.Invalidate()

	gen2, err := c.Generation()
	if err != nil {
		t.Fatal(err)
	}

	if gen2 != gen+1 {
		t.Fatalf("generation advanced by %d, want exactly 1 rebuild", gen2-gen)
	}

	// A read without invalidation must reuse the generation.
	gen3, err := c.Generation()
	if err != nil {
		t.Fatal(err)
	}

	if gen3 != gen2 {
		t.Fatalf("clean read rebuilt: generation %d -> %d", gen2, gen3)
	}
}

func Test_Snapshot_Stays_Stable_When_Cache_Is_Invalidated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "a.yml", "matches:\n  - trigger: \":a\"\n    replace: old\n")

	c := cache.New(dir, nil)

	snap, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, filepath.Base(path), "matches:\n  - trigger: \":a\"\n    replace: new\n")
	c.Invalidate()

	// The borrowed snapshot still serves the old generation.
	entry, ok := snap.Get(":a")
	if !ok || entry.Snippet.Replace != "old" {
		t.Fatalf("borrowed snapshot changed: %+v", entry)
	}

	fresh, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	if fresh.Generation() <= snap.Generation() {
		t.Fatalf("generation did not advance: %d -> %d", snap.Generation(), fresh.Generation())
	}
}

func Test_Search_Applies_Text_And_Filters_When_Querying(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "mail.yml", `matches:
  - trigger: ":sig"
    label: Work Signature
    replace: "Best regards"
  - trigger: ":addr"
    replace: "1 Main St"
    enabled: false
`)
	writeFile(t, dir, "misc.yml", `matches:
  - trigger: ":date"
    replace: "{{today}}"
    vars:
      - name: today
        type: date
`)

	c := cache.New(dir, nil)

	tests := []struct {
		name  string
		query cache.Query
		want  []string
	}{
		{"free text case-insensitive", cache.Query{Text: "SIG"}, []string{":sig"}},
		{"text matches replace", cache.Query{Text: "main st"}, []string{":addr"}},
		{"file equality", cache.Query{File: "misc.yml"}, []string{":date"}},
		{"disabled only", cache.Query{Enabled: boolPtr(false)}, []string{":addr"}},
		{"has variables", cache.Query{HasVars: boolPtr(true)}, []string{":date"}},
		{"label substring", cache.Query{Label: "signature"}, []string{":sig"}},
		{"everything in ledger order", cache.Query{}, []string{":sig", ":addr", ":date"}},
		{"offset and limit", cache.Query{Offset: 1, Limit: 1}, []string{":addr"}},
		{"offset past end", cache.Query{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := c.Search(tt.query)
			if err != nil {
				t.Fatal(err)
			}

			var triggers []string
			for _, e := range got {
				triggers = append(triggers, e.Snippet.Trigger)
			}

			if len(triggers) != len(tt.want) {
				t.Fatalf("got %v, want %v", triggers, tt.want)
			}

			for i := range tt.want {
				if triggers[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", triggers, tt.want)
				}
			}
		})
	}
}

func Test_Warnings_Surface_Per_File_When_Directory_Has_Corrupt_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "good.yml", "matches:\n  - trigger: \":ok\"\n    replace: fine\n")
	writeFile(t, dir, "bad.yml", "matches: [broken\n")

	c := cache.New(dir, nil)

	entries, err := c.List()
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 {
		t.Fatalf("entries = %d, want partial result of 1", len(entries))
	}

	warnings, err := c.Warnings()
	if err != nil {
		t.Fatal(err)
	}

	if len(warnings) != 1 {
		t.Fatalf("warnings = %+v", warnings)
	}
}
