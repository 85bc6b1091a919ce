package database

import (
	"database/sql"
	stdlog "log"

	"github.com/ekazakov-source/statka/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if _, err := DB.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		stdlog.Printf("failed to set pragmas: %v", err)
	}

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL CHECK(role IN ('BUYER','TEAM_LEAD','ADMIN')) DEFAULT 'BUYER',
		is_active INTEGER NOT NULL DEFAULT 1,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS socs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		is_closed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS cabinets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		soc_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('ACTIVE','BANNED')) DEFAULT 'ACTIVE',
		currency TEXT NOT NULL CHECK(currency IN ('USD','EUR')),
		cab_type TEXT NOT NULL CHECK(cab_type IN ('AGENCY','FARM')),
		commission_pct REAL NOT NULL DEFAULT 6.0,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		FOREIGN KEY(soc_id) REFERENCES socs(id)
	);

	CREATE TABLE IF NOT EXISTS fx_rates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		from_currency TEXT NOT NULL CHECK(from_currency IN ('USD','EUR')),
		to_currency TEXT NOT NULL CHECK(to_currency IN ('USD')),
		rate REAL NOT NULL,
		UNIQUE(date, from_currency, to_currency)
	);

	CREATE TABLE IF NOT EXISTS day_locks (
		user_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		locked_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (user_id, date)
	);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user TEXT,
		user_id INTEGER,
		date TEXT,
		geo TEXT,
		vertical TEXT,
		cabinet_id INTEGER,
		spend_raw REAL,
		spend_currency TEXT,
		spend INTEGER,
		spend_usd REAL,
		deps INTEGER,
		revenue INTEGER,
		profit INTEGER,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL DEFAULT (datetime('now')),
		actor_user TEXT NOT NULL,
		action TEXT NOT NULL,
		payload TEXT
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}

	migrateRecordsTable()

	// The natural record identity is a hard external contract: the upsert in
	// the ledger write pipeline relies on this uniqueness constraint.
	_, err = DB.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS ux_records_user_date_geo_vert_cab
		ON records(user_id, date, geo, vertical, cabinet_id)
	`)
	if err != nil {
		stdlog.Fatalf("failed to create records natural key index: %v", err)
	}

	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateRecordsTable adds the columns that older ledgers (integer-only
// spend, no per-cabinet attribution) are missing.
func migrateRecordsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='records'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'records' table", "error", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(records)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'records'", "error", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'records'", "error", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'records'", "error", err)
		}
		return
	}

	addColumn := func(name, definition string) {
		if columnExists[name] {
			return
		}
		if _, err := DB.Exec("ALTER TABLE records ADD COLUMN " + name + " " + definition); err != nil {
			if logger.L != nil {
				logger.L.Error("Error adding column to 'records' table", "column", name, "error", err)
			}
			return
		}
		if logger.L != nil {
			logger.L.Info("Added column to 'records' table", "column", name)
		}
	}

	addColumn("user_id", "INTEGER")
	addColumn("cabinet_id", "INTEGER")
	addColumn("spend_raw", "REAL")
	addColumn("spend_currency", "TEXT")
	addColumn("spend_usd", "REAL")
	addColumn("created_at", "TEXT NOT NULL DEFAULT (datetime('now'))")
	addColumn("updated_at", "TEXT")

	// Pre-cabinet ledgers were keyed without the cabinet dimension.
	if _, err := DB.Exec("DROP INDEX IF EXISTS ux_records_user_date_geo_vert"); err != nil {
		if logger.L != nil {
			logger.L.Error("Error dropping legacy records index", "error", err)
		}
	}
}
