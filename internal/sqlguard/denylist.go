/*-------------------------------------------------------------------------
 *
 * denylist.go
 *    Keyword and function deny-list scanning for candidate SQL
 *
 * The scan runs over the raw text, literals and comments included, with
 * whole-word case-insensitive matching so identifiers such as created_at
 * or offset_days do not trip it.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/sqlguard/denylist.go
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import (
	"regexp"
	"strings"
)

/* DeniedKeywords lists every keyword that rejects a statement, grouped by concern */
var DeniedKeywords = []string{
	/* mutation */
	"INSERT", "UPDATE", "DELETE", "MERGE",
	/* schema change */
	"CREATE", "ALTER", "DROP", "TRUNCATE",
	/* procedural */
	"EXEC", "EXECUTE", "CALL",
	/* access control */
	"GRANT", "REVOKE",
	/* transaction control */
	"COMMIT", "ROLLBACK", "SAVEPOINT", "LOCK", "UNLOCK",
	/* session mutation */
	"SET", "RESET",
	/* introspection */
	"SHOW", "DESCRIBE", "EXPLAIN", "ANALYZE",
}

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

var denyPatterns = compileDenyPatterns(DeniedKeywords)

func compileDenyPatterns(keywords []string) []keywordPattern {
	patterns := make([]keywordPattern, 0, len(keywords))
	for _, kw := range keywords {
		patterns = append(patterns, keywordPattern{
			keyword: kw,
			re:      regexp.MustCompile(`(?i)\b` + kw + `\b`),
		})
	}
	return patterns
}

/* ContainsDangerousKeyword reports whether any denied keyword occurs in text */
func ContainsDangerousKeyword(text string) bool {
	for _, p := range denyPatterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

/* DangerousKeywords returns every denied keyword found in text, in deny-list order */
func DangerousKeywords(text string) []string {
	var found []string
	for _, p := range denyPatterns {
		if p.re.MatchString(text) {
			found = append(found, p.keyword)
		}
	}
	return found
}

/*
 * DeniedFunctions lists functions that reach outside the result set: they
 * take locks, signal backends, change settings, touch the server filesystem
 * or open foreign connections. Each entry is a regexp over the function
 * name; pg_sleep is left to the statement timeout.
 */
var DeniedFunctions = []string{
	/* locks */
	`pg_(try_)?advisory_\w+`,
	/* backend and server control */
	`pg_terminate_backend`, `pg_cancel_backend`, `pg_reload_conf`, `pg_rotate_logfile`,
	`pg_switch_wal`, `pg_promote`, `pg_create_restore_point`, `pg_backup_\w+`,
	`pg_(start|stop)_backup`, `pg_create_\w*replication_slot`, `pg_drop_replication_slot`,
	`pg_logical_emit_message`, `pg_notify`,
	/* settings and sequences */
	`set_config`, `setval`, `nextval`,
	/* server filesystem */
	`pg_read_file`, `pg_read_binary_file`, `pg_stat_file`, `pg_ls_\w+`, `lo_\w+`,
	/* foreign connections and dynamic SQL */
	`dblink\w*`, `query_to_xml\w*`,
}

/* An optional closing quote covers "pg_advisory_lock"(1) */
var denyFunctionPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(DeniedFunctions, "|") + `)"?\s*\(`)

/* DeniedFunctionCalls returns the denied functions called in text, lowercased, in order of first appearance */
func DeniedFunctionCalls(text string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, m := range denyFunctionPattern.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			found = append(found, name)
		}
	}
	return found
}
