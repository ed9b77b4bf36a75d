package db

// PostgreSQL migrations for the slot store

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_feedscan_slots_table",
		Up: `
			CREATE TABLE IF NOT EXISTS feedscan_slots (
				name TEXT PRIMARY KEY,
				data TEXT NOT NULL,
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS feedscan_slots;
		`,
	},
}
