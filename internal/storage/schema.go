package storage

const schema = `
-- The 'card_states' table stores the current FSRS state of each card, per user.
-- A row is replaced as a whole after every review.
CREATE TABLE IF NOT EXISTS card_states (
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    due TEXT NOT NULL,
    stability REAL NOT NULL,
    difficulty REAL NOT NULL,
    elapsed_days INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    state INTEGER NOT NULL DEFAULT 0, -- 0: New, 1: Learning, 2: Review, 3: Relearning
    last_review TEXT,

    PRIMARY KEY (user_id, card_id)
);

-- The 'review_logs' table is the append-only review history.
CREATE TABLE IF NOT EXISTS review_logs (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    rating INTEGER NOT NULL,
    previous_state INTEGER NOT NULL,
    state INTEGER NOT NULL,
    stability REAL NOT NULL,
    difficulty REAL NOT NULL,
    elapsed_days INTEGER NOT NULL,
    scheduled_days INTEGER NOT NULL,
    due TEXT NOT NULL,
    reviewed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS review_logs_by_card ON review_logs (user_id, card_id, seq);
`
