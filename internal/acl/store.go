// internal/acl/store.go
//
// Group membership lookups.
//
// Context
// -------
// Group grants on forms (`useRightsGroups`, `editorRightsGroups`) are matched
// against the names of the groups a user belongs to:
//
//	user_group        (id PK, name, enabled)
//	user_group_member (user_id, group_id)
//
// The login component calls UserGroups once per successful login and stores
// the result on the session, so access checks never hit the database.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.
package acl

import (
	"context"
	"database/sql"
)

// Migrations creates the group tables.
var Migrations = []string{`
CREATE TABLE IF NOT EXISTS user_group (
    id      BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
    name    VARCHAR(128) NOT NULL,
    enabled BOOLEAN      NOT NULL DEFAULT TRUE,
    UNIQUE KEY uq_user_group_name (name)
)`, `
CREATE TABLE IF NOT EXISTS user_group_member (
    user_id  VARCHAR(36) NOT NULL,
    group_id BIGINT      NOT NULL,
    PRIMARY KEY (user_id, group_id),
    KEY idx_user_group_member_group (group_id)
)`}

// UserGroups returns the group *names* bound to userID.  Disabled groups are
// filtered out.
func UserGroups(ctx context.Context, db *sql.DB, userID string) ([]string, error) {
	const q = `SELECT g.name
                 FROM user_group_member m
                 JOIN user_group g ON g.id = m.group_id
                WHERE m.user_id = ? AND g.enabled = TRUE`

	rows, err := db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]string, 0, 4)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		groups = append(groups, name)
	}
	return groups, rows.Err()
}
