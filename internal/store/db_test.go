package store

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/himawari-lab/pixrank/internal/domain"
	"github.com/himawari-lab/pixrank/internal/hash"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() {
		if cErr := db.Close(); cErr != nil {
			t.Logf("db.Close error: %v", cErr)
		}
	})
	return db
}

func strptr(s string) *string { return &s }

func testPicture(pageNo int) domain.Picture {
	return domain.Picture{
		IllustID:   123456,
		AuthorID:   42,
		AuthorName: "artist",
		Title:      "sunset",
		PageNo:     pageNo,
		PageCount:  1,
		R18:        0,
		AIType:     1,
		URL:        "https://i.pximg.net/img-original/img/123456_p0.jpg",
		Tags: []domain.Tag{
			{Name: "A", TranslatedName: strptr("alpha")},
			{Name: "B"},
		},
	}
}

func TestUpsert_PlainInsertIdempotence(t *testing.T) {
	db := setupTestDB(t)
	pic := testPicture(0)
	key := hash.PictureKey(pic.IllustID, pic.PageNo)

	if !db.Upsert(key, pic, false) {
		t.Fatal("first insert should succeed")
	}

	changed := pic
	changed.Title = "changed"
	if db.Upsert(key, changed, false) {
		t.Error("second plain insert should report failure")
	}

	stored, err := db.GetByID(hash.ID(key))
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Title != "sunset" {
		t.Errorf("duplicate insert must not change fields, title = %q", stored.Title)
	}

	count, err := db.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
}

func TestUpsert_ForcePreservesCompressed(t *testing.T) {
	db := setupTestDB(t)
	pic := testPicture(0)
	key := hash.PictureKey(pic.IllustID, pic.PageNo)
	pid := hash.ID(key)

	if !db.Upsert(key, pic, false) {
		t.Fatal("insert failed")
	}
	if err := db.UpdateLocalPaths(pid, "downloads/a.jpg", "downloads/a_compressed.jpg"); err != nil {
		t.Fatal(err)
	}

	update := pic
	update.Title = "updated"
	update.LocalFilename = "downloads/a.jpg"
	if !db.Upsert(key, update, true) {
		t.Fatal("force upsert failed")
	}

	stored, err := db.GetByID(pid)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Title != "updated" {
		t.Errorf("expected updated title, got %q", stored.Title)
	}
	if stored.LocalFilenameCompressed != "downloads/a_compressed.jpg" {
		t.Errorf("force upsert must preserve local_filename_compressed, got %q", stored.LocalFilenameCompressed)
	}
}

func TestUpsert_TagRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	pic := testPicture(0)
	key := hash.PictureKey(pic.IllustID, pic.PageNo)

	if !db.Upsert(key, pic, false) {
		t.Fatal("insert failed")
	}

	tags, err := db.TagsFor(hash.ID(key))
	if err != nil {
		t.Fatalf("TagsFor failed: %v", err)
	}
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("expected tags {A, B}, got %v", names)
	}
}

func TestUpsert_ForceRebuildsTagLinks(t *testing.T) {
	db := setupTestDB(t)
	pic := testPicture(0)
	key := hash.PictureKey(pic.IllustID, pic.PageNo)

	if !db.Upsert(key, pic, false) {
		t.Fatal("insert failed")
	}

	recrawled := pic
	recrawled.Tags = []domain.Tag{{Name: "B"}, {Name: "C"}}
	if !db.Upsert(key, recrawled, true) {
		t.Fatal("force upsert failed")
	}

	tags, err := db.TagsFor(hash.ID(key))
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "B" || names[1] != "C" {
		t.Errorf("expected re-crawl to drop stale tag links, got %v", names)
	}
}

func TestUpsertTag_SharedAcrossPictures(t *testing.T) {
	db := setupTestDB(t)

	first := testPicture(0)
	second := testPicture(1)
	keyA := hash.PictureKey(first.IllustID, first.PageNo)
	keyB := hash.PictureKey(second.IllustID, second.PageNo)
	if !db.Upsert(keyA, first, false) || !db.Upsert(keyB, second, false) {
		t.Fatal("inserts failed")
	}

	// Re-upserting a tag must not cascade away other pictures' links.
	if _, err := db.UpsertTag("A", strptr("alpha renamed")); err != nil {
		t.Fatalf("UpsertTag failed: %v", err)
	}
	for _, pid := range []uint32{hash.ID(keyA), hash.ID(keyB)} {
		tags, err := db.TagsFor(pid)
		if err != nil {
			t.Fatal(err)
		}
		if len(tags) != 2 {
			t.Errorf("picture %d lost tag links: %v", pid, tags)
		}
	}

	// Identical name always derives the identical id.
	idA, _ := db.UpsertTag("A", nil)
	if idA != hash.ID("A") {
		t.Errorf("tag id not stable: %d != %d", idA, hash.ID("A"))
	}
}

func TestSearchTags(t *testing.T) {
	db := setupTestDB(t)
	pic := testPicture(0)
	pic.Tags = []domain.Tag{
		{Name: "landscape", TranslatedName: strptr("風景")},
		{Name: "portrait"},
	}
	if !db.Upsert(hash.PictureKey(pic.IllustID, pic.PageNo), pic, false) {
		t.Fatal("insert failed")
	}

	tags, err := db.SearchTags([]string{"landscape"})
	if err != nil {
		t.Fatalf("SearchTags failed: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "landscape" {
		t.Errorf("unexpected match: %v", tags)
	}

	// OR-combination over terms, including the translated name column.
	tags, err = db.SearchTags([]string{"風景", "portrait"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 {
		t.Errorf("expected 2 matches, got %v", tags)
	}

	if tags, _ := db.SearchTags([]string{"nothing"}); len(tags) != 0 {
		t.Errorf("expected no match, got %v", tags)
	}
}

func TestQueryRandom(t *testing.T) {
	db := setupTestDB(t)

	r18 := testPicture(0)
	r18.R18 = 1
	safe := testPicture(1)
	safe.IllustID = 777
	safe.AuthorID = 7
	safe.AuthorName = "bob"
	safe.Title = "a quiet evening"
	safe.AIType = 2
	safe.Tags = []domain.Tag{{Name: "scenery"}}
	safe.LocalFilename = "downloads/safe.jpg"

	for _, pic := range []domain.Picture{r18, safe} {
		if !db.Upsert(hash.PictureKey(pic.IllustID, pic.PageNo), pic, false) {
			t.Fatal("seed insert failed")
		}
	}

	// Empty filter samples everything.
	all, err := db.QueryRandom(Filters{R18: 2, Limit: 10})
	if err != nil {
		t.Fatalf("QueryRandom failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 rows, got %d", len(all))
	}

	only, err := db.QueryRandom(Filters{R18: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].R18 != 1 {
		t.Errorf("r18-only filter failed: %v", only)
	}

	id := int64(777)
	byID, err := db.QueryRandom(Filters{R18: 2, Limit: 10, IllustID: &id})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID) != 1 || byID[0].IllustID != 777 {
		t.Errorf("id filter failed: %v", byID)
	}

	byAuthor, err := db.QueryRandom(Filters{R18: 2, Limit: 10, AuthorNames: []string{"bo"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byAuthor) != 1 || byAuthor[0].AuthorName != "bob" {
		t.Errorf("author prefix filter failed: %v", byAuthor)
	}

	byTitle, err := db.QueryRandom(Filters{R18: 2, Limit: 10, Title: "quiet"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTitle) != 1 {
		t.Errorf("title substring filter failed: %v", byTitle)
	}

	ai := 2
	byAI, err := db.QueryRandom(Filters{R18: 2, Limit: 10, AIType: &ai})
	if err != nil {
		t.Fatal(err)
	}
	if len(byAI) != 1 {
		t.Errorf("ai_type filter failed: %v", byAI)
	}

	byTag, err := db.QueryRandom(Filters{R18: 2, Limit: 10, Tags: []string{"scenery"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTag) != 1 || byTag[0].IllustID != 777 {
		t.Errorf("tag filter failed: %v", byTag)
	}

	local, err := db.QueryRandom(Filters{R18: 2, Limit: 10, LocalFileOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(local) != 1 || local[0].LocalFilename == "" {
		t.Errorf("local-file filter failed: %v", local)
	}

	// Limit clamps to the configured cap.
	db.Limits.MaxImages = 1
	capped, err := db.QueryRandom(Filters{R18: 2, Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(capped) != 1 {
		t.Errorf("expected clamp to 1 row, got %d", len(capped))
	}
}

func TestRemoveLocalFile(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()

	local := filepath.Join(dir, "a.jpg")
	compressed := filepath.Join(dir, "a_compressed.jpg")
	for _, f := range []string{local, compressed} {
		if err := os.WriteFile(f, []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	pic := testPicture(0)
	key := hash.PictureKey(pic.IllustID, pic.PageNo)
	pid := hash.ID(key)
	if !db.Upsert(key, pic, false) {
		t.Fatal("insert failed")
	}
	if err := db.UpdateLocalPaths(pid, local, compressed); err != nil {
		t.Fatal(err)
	}

	// Compressed-only removal keeps the original.
	if err := db.RemoveLocalFile(pid, true); err != nil {
		t.Fatalf("RemoveLocalFile failed: %v", err)
	}
	if _, err := os.Stat(compressed); !os.IsNotExist(err) {
		t.Error("expected compressed file to be deleted")
	}
	if _, err := os.Stat(local); err != nil {
		t.Error("expected original file to remain")
	}
	stored, _ := db.GetByID(pid)
	if stored.LocalFilenameCompressed != "" || stored.LocalFilename != local {
		t.Errorf("unexpected columns after compressed-only removal: %+v", stored)
	}

	// Full removal deletes the original and clears both columns.
	if err := db.RemoveLocalFile(pid, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Error("expected original file to be deleted")
	}
	stored, _ = db.GetByID(pid)
	if stored.LocalFilename != "" || stored.LocalFilenameCompressed != "" {
		t.Errorf("expected cleared columns, got %+v", stored)
	}
}

func TestRemoveLocalFile_SoleCopySuppressed(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()

	sole := filepath.Join(dir, "only.jpg")
	if err := os.WriteFile(sole, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	pic := testPicture(0)
	key := hash.PictureKey(pic.IllustID, pic.PageNo)
	pid := hash.ID(key)
	if !db.Upsert(key, pic, false) {
		t.Fatal("insert failed")
	}
	// delete_original compression leaves both columns pointing at one file.
	if err := db.UpdateLocalPaths(pid, sole, sole); err != nil {
		t.Fatal(err)
	}

	if err := db.RemoveLocalFile(pid, true); err != nil {
		t.Fatalf("RemoveLocalFile failed: %v", err)
	}
	if _, err := os.Stat(sole); err != nil {
		t.Error("sole copy must survive a compressed-only removal")
	}
	stored, _ := db.GetByID(pid)
	if stored.LocalFilename != sole {
		t.Errorf("local_filename must not be cleared, got %q", stored.LocalFilename)
	}
}

func TestListWithLocalFile(t *testing.T) {
	db := setupTestDB(t)

	plain := testPicture(0)
	downloaded := testPicture(1)
	downloaded.LocalFilename = "downloads/d.jpg"
	compressed := testPicture(2)
	compressed.LocalFilename = "downloads/c.jpg"

	for _, pic := range []domain.Picture{plain, downloaded, compressed} {
		if !db.Upsert(hash.PictureKey(pic.IllustID, pic.PageNo), pic, false) {
			t.Fatal("seed insert failed")
		}
	}
	cid := hash.ID(hash.PictureKey(compressed.IllustID, compressed.PageNo))
	if err := db.UpdateLocalPaths(cid, "downloads/c.jpg", "downloads/c_compressed.jpg"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.ListWithLocalFile(false)
	if err != nil {
		t.Fatalf("ListWithLocalFile failed: %v", err)
	}
	if len(pending) != 1 || pending[0].LocalFilename != "downloads/d.jpg" {
		t.Errorf("expected only the uncompressed download, got %v", pending)
	}

	all, err := db.ListWithLocalFile(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 downloads, got %d", len(all))
	}
}
