package store

// Schema is applied idempotently on open. The tags_fts virtual table is a
// shadow index over tags; the triggers keep it synchronized inside the same
// transaction as the base row change.
const Schema = `
CREATE TABLE IF NOT EXISTS pictures (
	picture_id INTEGER PRIMARY KEY,
	id INTEGER NOT NULL,
	author_id INTEGER NOT NULL,
	author_name TEXT NOT NULL,
	title TEXT NOT NULL,
	page_no INTEGER NOT NULL,
	page_count INTEGER NOT NULL,
	r18 TINYINT NOT NULL,
	ai_type TINYINT NOT NULL,
	url TEXT NOT NULL,
	local_filename TEXT NOT NULL DEFAULT '',
	local_filename_compressed TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS index_pictures_author_name ON pictures(author_name);
CREATE INDEX IF NOT EXISTS index_pictures_r18 ON pictures(r18);
CREATE INDEX IF NOT EXISTS index_pictures_ai_type ON pictures(ai_type);

CREATE TABLE IF NOT EXISTS tags (
	tag_id INTEGER PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	translated_name TEXT UNIQUE
);

CREATE VIRTUAL TABLE IF NOT EXISTS tags_fts USING FTS5(
	name, translated_name,
	content="tags", content_rowid="tag_id",
	tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS tags_ai AFTER INSERT ON tags BEGIN
	INSERT INTO tags_fts(rowid, name, translated_name) VALUES (new.tag_id, new.name, new.translated_name);
END;

CREATE TRIGGER IF NOT EXISTS tags_ad AFTER DELETE ON tags BEGIN
	INSERT INTO tags_fts(tags_fts, rowid, name, translated_name) VALUES('delete', old.tag_id, old.name, old.translated_name);
END;

CREATE TRIGGER IF NOT EXISTS tags_au AFTER UPDATE ON tags BEGIN
	INSERT INTO tags_fts(tags_fts, rowid, name, translated_name) VALUES('delete', old.tag_id, old.name, old.translated_name);
	INSERT INTO tags_fts(rowid, name, translated_name) VALUES (new.tag_id, new.name, new.translated_name);
END;

CREATE TABLE IF NOT EXISTS picture_tags (
	picture_id INTEGER REFERENCES pictures(picture_id) ON DELETE CASCADE ON UPDATE CASCADE,
	tag_id INTEGER REFERENCES tags(tag_id) ON DELETE CASCADE ON UPDATE CASCADE,
	PRIMARY KEY (picture_id, tag_id)
);

CREATE INDEX IF NOT EXISTS index_picture_tags_picture_id ON picture_tags(picture_id);
CREATE INDEX IF NOT EXISTS index_picture_tags_tag_id ON picture_tags(tag_id);
`
