// Package database owns the connection handle of a document store: it
// builds the connection URI, starts the asynchronous connection, logs the
// error, open, disconnected and reconnected lifecycle events and re-dials
// once per disconnect. MongoDB is served by the official driver; SQLite,
// MySQL and PostgreSQL are served through the docsql document table.
package database
