/*
Package modelstore persists trained charmarkov models in a SQLite
database.

The store keeps raw transition counts rather than normalized
probabilities, so saving the same corpus twice merges cleanly (counts add,
distributions are unchanged) and loading always re-normalizes from exact
integers. The package is driver-agnostic database/sql code; callers choose
the SQLite driver.
*/
package modelstore
