package postgres

// queryListSchemas has one %s placeholder for the schema filter clause.
const queryListSchemas = `
	SELECT s.schema_name
	FROM information_schema.schemata s
	WHERE %s
	ORDER BY s.schema_name`

// queryListTables lists base tables and views of one schema with the
// planner's live row estimate. $1 = schema.
const queryListTables = `
	SELECT
		t.table_name,
		COALESCE(s.n_live_tup, 0) AS row_estimate
	FROM information_schema.tables t
	LEFT JOIN pg_stat_user_tables s
		ON s.schemaname = t.table_schema AND s.relname = t.table_name
	WHERE t.table_schema = $1
		AND t.table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY t.table_name`

// --- Analysis queries; %s is the quoted schema.table ---

// querySample reads rows in physical order. $1 = limit.
const querySample = `SELECT * FROM %s LIMIT $1`

const queryCount = `SELECT count(*) AS count FROM %s`

// queryFind has %s for the table and %s for the ORDER BY expression.
// $1 = limit.
const queryFind = `SELECT * FROM %s ORDER BY %s LIMIT $1`

// queryGroupCount has %s for the column, then the table. $1 = limit.
const queryGroupCount = `
	SELECT %s::text AS key, count(*) AS count
	FROM %s
	GROUP BY 1
	ORDER BY 2 DESC, 1 ASC NULLS FIRST
	LIMIT $1`

// queryDayBuckets has %s for the column, then the table, then the column.
// $1 = limit.
const queryDayBuckets = `
	SELECT to_char(date_trunc('day', %s), 'YYYY-MM-DD') AS bucket, count(*) AS count
	FROM %s
	WHERE %s IS NOT NULL
	GROUP BY 1
	ORDER BY 1 DESC
	LIMIT $1`
