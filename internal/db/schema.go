package db

// SchemaSQL contains the database schema initialization SQL. Statements are
// idempotent so the daemon can apply them on every startup.
const SchemaSQL = `
    -- ==========================================================================
    -- JOB LEDGER
    -- ==========================================================================
    -- Durable record of every unit of asynchronous work. Rows are never
    -- deleted; the one-non-terminal-job-per-dedupe-key invariant is enforced
    -- by the transactional enqueue statement, not an index, because terminal
    -- jobs legitimately share dedupe keys with later re-runs.
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS queue_name ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS job_type ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS payload ON job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS dedupe_key ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string ASSERT $value IN ['queued','running','retrying','failed','done'];
    DEFINE FIELD IF NOT EXISTS attempts ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS max_attempts ON job TYPE int DEFAULT 5;
    DEFINE FIELD IF NOT EXISTS next_run_at ON job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS last_error ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS job_dedupe ON job FIELDS dedupe_key;
    DEFINE INDEX IF NOT EXISTS job_queue_status ON job FIELDS queue_name, status;

    -- ==========================================================================
    -- SCOUT WATCH
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS scout_watch SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS provider_id ON scout_watch TYPE string;
    DEFINE FIELD IF NOT EXISTS source_location ON scout_watch TYPE string;
    DEFINE FIELD IF NOT EXISTS search_query ON scout_watch TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS sort_by ON scout_watch TYPE string DEFAULT 'new';
    DEFINE FIELD IF NOT EXISTS time_filter ON scout_watch TYPE string DEFAULT 'day';
    DEFINE FIELD IF NOT EXISTS identity_id ON scout_watch TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS is_active ON scout_watch TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS auto_analyze ON scout_watch TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS min_confidence ON scout_watch TYPE float DEFAULT 0.7;
    DEFINE FIELD IF NOT EXISTS scan_every ON scout_watch TYPE duration DEFAULT 30m;
    DEFINE FIELD IF NOT EXISTS total_posts_seen ON scout_watch TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total_leads_created ON scout_watch TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS last_run_at ON scout_watch TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS last_match_at ON scout_watch TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS watch_active ON scout_watch FIELDS is_active;

    -- ==========================================================================
    -- SCOUT WATCH RUN
    -- ==========================================================================
    -- One open run per watch is enforced by the transactional run-start
    -- statement (status='running' count check).
    DEFINE TABLE IF NOT EXISTS scout_watch_run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS watch ON scout_watch_run TYPE record<scout_watch>;
    DEFINE FIELD IF NOT EXISTS started_at ON scout_watch_run TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON scout_watch_run TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS status ON scout_watch_run TYPE string ASSERT $value IN ['running','completed','failed'];
    DEFINE FIELD IF NOT EXISTS posts_fetched ON scout_watch_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS posts_new ON scout_watch_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS posts_analyzed ON scout_watch_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS leads_created ON scout_watch_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error_message ON scout_watch_run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS search_url ON scout_watch_run TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS run_watch_status ON scout_watch_run FIELDS watch, status;

    -- ==========================================================================
    -- SCOUT WATCH POST
    -- ==========================================================================
    -- (watch, external_post_id) is the dedup boundary: the sole cross-run
    -- invariant. Insert conflict means "already seen".
    DEFINE TABLE IF NOT EXISTS scout_watch_post SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS watch ON scout_watch_post TYPE record<scout_watch>;
    DEFINE FIELD IF NOT EXISTS run ON scout_watch_post TYPE record<scout_watch_run>;
    DEFINE FIELD IF NOT EXISTS external_post_id ON scout_watch_post TYPE string;
    DEFINE FIELD IF NOT EXISTS first_seen_at ON scout_watch_post TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS author ON scout_watch_post TYPE string;
    DEFINE FIELD IF NOT EXISTS author_id ON scout_watch_post TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON scout_watch_post TYPE string;
    DEFINE FIELD IF NOT EXISTS body ON scout_watch_post TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON scout_watch_post TYPE string;
    DEFINE FIELD IF NOT EXISTS analysis_status ON scout_watch_post TYPE string ASSERT $value IN ['pending','analyzing','analyzed','failed'];
    DEFINE FIELD IF NOT EXISTS analysis_recommendation ON scout_watch_post TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS analysis_confidence ON scout_watch_post TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS analysis_dimensions ON scout_watch_post TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS analysis_error ON scout_watch_post TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS lead ON scout_watch_post TYPE option<record<lead>>;

    DEFINE INDEX IF NOT EXISTS post_watch_external ON scout_watch_post FIELDS watch, external_post_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS post_run ON scout_watch_post FIELDS run;

    -- ==========================================================================
    -- USER CONTEXT CACHE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS user_context SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS account_external_id ON user_context TYPE string;
    DEFINE FIELD IF NOT EXISTS provider_id ON user_context TYPE string;
    DEFINE FIELD IF NOT EXISTS interests_summary ON user_context TYPE string;
    DEFINE FIELD IF NOT EXISTS character_summary ON user_context TYPE string;
    DEFINE FIELD IF NOT EXISTS generated_at ON user_context TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS expires_at ON user_context TYPE datetime;

    DEFINE INDEX IF NOT EXISTS context_account ON user_context FIELDS provider_id, account_external_id UNIQUE;

    -- ==========================================================================
    -- EXTERNAL ACCOUNT
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS external_account SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS provider_id ON external_account TYPE string;
    DEFINE FIELD IF NOT EXISTS external_id ON external_account TYPE string;
    DEFINE FIELD IF NOT EXISTS username ON external_account TYPE string;
    DEFINE FIELD IF NOT EXISTS remote_status ON external_account TYPE string ASSERT $value IN ['active','deleted','suspended','unknown'];
    DEFINE FIELD IF NOT EXISTS observed_at ON external_account TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS account_external ON external_account FIELDS provider_id, external_id UNIQUE;

    -- ==========================================================================
    -- LEAD
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS lead SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS provider_id ON lead TYPE string;
    DEFINE FIELD IF NOT EXISTS source_location ON lead TYPE string;
    DEFINE FIELD IF NOT EXISTS external_post_id ON lead TYPE string;
    DEFINE FIELD IF NOT EXISTS author ON lead TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON lead TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON lead TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON lead TYPE string DEFAULT 'new';
    DEFINE FIELD IF NOT EXISTS analysis_recommendation ON lead TYPE string;
    DEFINE FIELD IF NOT EXISTS analysis_confidence ON lead TYPE float;
    DEFINE FIELD IF NOT EXISTS created_at ON lead TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS lead_provider_post ON lead FIELDS provider_id, external_post_id UNIQUE;
`
