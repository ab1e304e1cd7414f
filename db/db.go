package db

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/sqlite"
)

var (
	dbClient database.IDatabase
)

var sqllist = []struct {
	name string
	sql  string
}{
	{
		name: "init_dav_entry_tab",
		sql: `
CREATE TABLE IF NOT EXISTS dav_entry_tab (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id    INTEGER NOT NULL,
    parent_entry_id INTEGER NOT NULL,
    file_kind   INTEGER NOT NULL,
    ctime       INTEGER,
    mtime       INTEGER,
    file_size   INTEGER,
    provisional INTEGER NOT NULL DEFAULT 0,
    file_name   TEXT NOT NULL,
    UNIQUE (entry_id),
    UNIQUE (parent_entry_id, file_name)
);
		`,
	},
	{
		name: "init_dav_blob_tab",
		sql: `
CREATE TABLE IF NOT EXISTS dav_blob_tab (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id    INTEGER NOT NULL,
    data        BLOB,
    UNIQUE (entry_id)
);
		`,
	},
	{
		name: "init_dav_meta_tab",
		sql: `
CREATE TABLE IF NOT EXISTS dav_meta_tab (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id    INTEGER NOT NULL,
    version     INTEGER NOT NULL,
    doc         TEXT NOT NULL,
    UNIQUE (entry_id)
);
		`,
	},
}

func InitDB(file string) error {
	ctx := context.Background()
	db, err := sqlite.New(file, func(db database.IDatabase) error {
		for _, item := range sqllist {
			if _, err := db.ExecContext(ctx, item.sql); err != nil {
				return fmt.Errorf("init sql failed, sql:%s, err:%w", item.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	dbClient = db
	return nil
}

func GetClient() database.IDatabase {
	return dbClient
}
