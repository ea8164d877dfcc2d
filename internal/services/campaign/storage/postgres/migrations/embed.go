// Package migrations embeds the SQL migration scripts of the Postgres
// campaign store.
package migrations

import "embed"

// CampaignsFS holds the campaigns, events and snapshots schema.
//
//go:embed campaigns/*.sql
var CampaignsFS embed.FS

// Root is the directory inside CampaignsFS that holds the scripts.
const Root = "campaigns"
