// Package migrations embeds the SQL migration scripts of the SQLite campaign
// store.
package migrations
