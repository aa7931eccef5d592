package history

const schema = `
CREATE TABLE IF NOT EXISTS attempt_history (
    branch TEXT NOT NULL,
    unit TEXT NOT NULL,
    attempts TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (branch, unit)
);

CREATE INDEX IF NOT EXISTS idx_attempt_history_branch ON attempt_history(branch);
`
