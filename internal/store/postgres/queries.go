package postgres

const queryInsertRun = `
INSERT INTO runs (id, trigger_kind, scheduled_at, status, failure, exit_code, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryUpdateRunStatus = `
UPDATE runs
SET status = $1,
    started_at = COALESCE($2, started_at)
WHERE id = $3
  AND status NOT IN ('succeeded', 'failed')
`

const queryCompleteRun = `
UPDATE runs
SET status = $1,
    failure = $2,
    exit_code = $3,
    error = $4,
    started_at = COALESCE($5, started_at),
    finished_at = $6
WHERE id = $7
  AND status NOT IN ('succeeded', 'failed')
`

const queryGetRunStatus = `
SELECT status FROM runs WHERE id = $1
`

const queryGetRun = `
SELECT id, trigger_kind, scheduled_at, status, failure, exit_code, error, started_at, finished_at, created_at
FROM runs
WHERE id = $1
`

const queryListRuns = `
SELECT id, trigger_kind, scheduled_at, status, failure, exit_code, error, started_at, finished_at, created_at
FROM runs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`

const queryGetOrphanedRuns = `
SELECT id, trigger_kind, scheduled_at, status, failure, exit_code, error, started_at, finished_at, created_at
FROM runs
WHERE status NOT IN ('succeeded', 'failed')
  AND created_at < $1
ORDER BY created_at ASC
LIMIT $2
`
